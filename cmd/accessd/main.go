package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ecclesia-app/ecclesia-access/internal/app"
	"github.com/ecclesia-app/ecclesia-access/internal/audit"
	"github.com/ecclesia-app/ecclesia-access/internal/auth"
	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/members"
	"github.com/ecclesia-app/ecclesia-access/internal/platform/db"
	"github.com/ecclesia-app/ecclesia-access/internal/policy"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/rules"
	"github.com/ecclesia-app/ecclesia-access/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policyCache := policy.NewCache(redisClient, cfg.PolicyCacheTTL)
	if err := policyCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	auditRecorder := audit.NewRecorder(dbpool)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, policyCache)

	profilesRepo := profiles.NewRepository(dbpool)
	profilesService := profiles.NewService(profilesRepo, catalogService, policyCache, auditRecorder, logger)

	membersRepo := members.NewRepository(dbpool)
	membersService := members.NewService(membersRepo, profilesService, policyCache, auditRecorder, logger)

	rulesRepo := rules.NewRepository(dbpool)
	rulesService := rules.NewService(rulesRepo, policyCache, auditRecorder, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	cachedGrants := policy.NewCachedGrants(policyCache, profilesRepo)
	resolver := policy.NewResolver(catalogService, cachedGrants)
	policyService := policy.NewService(resolver, membersRepo, rulesRepo, catalogService, cachedGrants, jobsClient, logger)
	guard := policy.Middleware{Service: policyService, Logger: logger}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Authenticate:    authMiddleware.Authenticate,
		CatalogHandler:  catalog.NewHandler(logger, catalogService, guard),
		ProfilesHandler: profiles.NewHandler(logger, profilesService, guard),
		MembersHandler:  members.NewHandler(logger, membersService, guard),
		RulesHandler:    rules.NewHandler(logger, rulesService, guard),
		PolicyHandler:   policy.NewHandler(logger, policyService, guard),
		AuditHandler:    audit.NewHandler(logger, auditService, guard),
		JobsHandler:     jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
