package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/logger"
)

const defaultProcessedEventRetention = 30 * 24 * time.Hour

type processedEventsPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProcessedEventsCleanupJobParams configures the idempotency-record pruning
// job. Retention must comfortably exceed every provider's webhook retry
// window, or a late retry would reapply an already-processed event.
type ProcessedEventsCleanupJobParams struct {
	Logger    *logger.Logger
	Guard     processedEventsPruner
	Retention time.Duration
}

func NewProcessedEventsCleanupJob(params ProcessedEventsCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultProcessedEventRetention
	}
	return &processedEventsCleanupJob{
		logg:      params.Logger,
		guard:     params.Guard,
		retention: retention,
		now:       time.Now,
	}, nil
}

type processedEventsCleanupJob struct {
	logg      *logger.Logger
	guard     processedEventsPruner
	retention time.Duration
	now       func() time.Time
}

func (j *processedEventsCleanupJob) Name() string { return "processed-events-cleanup" }

func (j *processedEventsCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.guard.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("processed events cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "processed events cleanup complete")
	return nil
}
