package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/db"
	"github.com/briefwire/briefwire-backend/pkg/db/models"
	"gorm.io/gorm"
)

// IdempotencyGuard records which inbound billing events have already been
// applied. There is no lock between IsProcessed and MarkProcessed: two
// concurrent deliveries of the same new event can both pass the check, which
// is accepted because every guarded write is a replay-safe upsert.
type IdempotencyGuard interface {
	// IsProcessed reports whether the key was already applied. Storage
	// failures propagate; billing-sensitive callers fail the request instead
	// of risking a duplicate charge effect.
	IsProcessed(ctx context.Context, key string) (bool, error)
	// MarkProcessed inserts the key, ignoring duplicates. Callers treat
	// failure as log-only; the guarded effect has already committed.
	MarkProcessed(ctx context.Context, key string) error
	// DeleteOlderThan prunes records created before the cutoff and returns
	// the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type idempotencyGuard struct {
	db *gorm.DB
}

// NewIdempotencyGuard returns a database-backed guard.
func NewIdempotencyGuard(db *gorm.DB) IdempotencyGuard {
	return &idempotencyGuard{db: db}
}

func (g *idempotencyGuard) IsProcessed(ctx context.Context, key string) (bool, error) {
	var record models.ProcessedEvent
	err := g.db.WithContext(ctx).
		Where("id = ?", key).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *idempotencyGuard) MarkProcessed(ctx context.Context, key string) error {
	record := models.ProcessedEvent{ID: key}
	err := g.db.WithContext(ctx).Create(&record).Error
	if db.IsUniqueViolation(err, "") {
		// A concurrent delivery of the same event won the insert.
		return nil
	}
	return err
}

func (g *idempotencyGuard) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := g.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ProcessedEvent{})
	return result.RowsAffected, result.Error
}
