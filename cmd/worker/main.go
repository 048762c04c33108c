package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ecclesia-app/ecclesia-access/internal/app"
	"github.com/ecclesia-app/ecclesia-access/internal/audit"
	"github.com/ecclesia-app/ecclesia-access/internal/platform/cache"
	"github.com/ecclesia-app/ecclesia-access/internal/platform/db"
	"github.com/ecclesia-app/ecclesia-access/internal/policy"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/rules"
	"github.com/ecclesia-app/ecclesia-access/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker exists to keep the cache warm, so redis is a hard dependency here.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
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

	profilesRepo := profiles.NewRepository(pool)
	cachedGrants := policy.NewCachedGrants(policyCache, profilesRepo)

	rulesRepo := rules.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)

	sweepJob := jobs.NewRuleSweepJob(rulesRepo, policyCache, logger)
	warmupJob := jobs.NewCacheWarmupJob(cachedGrants, pool, logger)
	decisionJob := jobs.NewDecisionLogJob(auditRepo, cfg.DecisionLogKeep, logger)

	sweepTask, err := jobs.NewRuleSweepTask(jobs.RuleSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPolicyRuleSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskPolicyCacheWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskAuditDecisionLog, Handler: decisionJob.Handle},
			{Type: jobs.TaskAuditDecisionPrune, Handler: decisionJob.HandlePrune},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 4 * * *", Task: jobs.NewDecisionPruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
