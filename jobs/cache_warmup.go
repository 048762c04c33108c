package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecclesia-app/ecclesia-access/internal/policy"
)

// CacheWarmupJob precomputes grant caches so the first decision after
// an invalidation does not pay the storage round trip.
type CacheWarmupJob struct {
	Grants *policy.CachedGrants
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(grants *policy.CachedGrants, pool *pgxpool.Pool, logger *slog.Logger) *CacheWarmupJob {
	return &CacheWarmupJob{Grants: grants, Pool: pool, Logger: logger}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Grants == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	profileIDs := payload.ProfileIDs
	if len(profileIDs) == 0 {
		ids, err := j.activeProfileIDs(ctx)
		if err != nil {
			logger.Error("load active profiles", slog.Any("error", err))
			return err
		}
		profileIDs = ids
	}
	if len(profileIDs) == 0 {
		logger.Info("no profiles to warm")
		return nil
	}

	started := time.Now()
	for _, id := range profileIDs {
		warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := j.Grants.Warm(warmCtx, id)
		cancel()
		if err != nil {
			logger.Error("warm profile", slog.Int64("profile_id", id), slog.Any("error", err))
			return err
		}
	}
	logger.Info("completed cache warmup", slog.Int("profiles", len(profileIDs)), slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *CacheWarmupJob) activeProfileIDs(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("cache warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM profiles WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPolicyCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPolicyCacheWarmup))
}
