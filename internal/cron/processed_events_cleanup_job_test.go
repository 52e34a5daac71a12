package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/logger"
)

type stubPruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (s *stubPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestProcessedEventsCleanupJobUsesConfiguredRetention(t *testing.T) {
	pruner := &stubPruner{deleted: 3}
	job, err := NewProcessedEventsCleanupJob(ProcessedEventsCleanupJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Guard:     pruner,
		Retention: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}

	want := time.Now().UTC().Add(-48 * time.Hour)
	if diff := pruner.cutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %v not near expected %v", pruner.cutoff, want)
	}
}

func TestProcessedEventsCleanupJobPropagatesErrors(t *testing.T) {
	pruner := &stubPruner{err: errors.New("db down")}
	job, err := NewProcessedEventsCleanupJob(ProcessedEventsCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Guard:  pruner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestNewProcessedEventsCleanupJobRequiresGuard(t *testing.T) {
	_, err := NewProcessedEventsCleanupJob(ProcessedEventsCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
	})
	if err == nil {
		t.Fatalf("expected error for missing guard")
	}
}
