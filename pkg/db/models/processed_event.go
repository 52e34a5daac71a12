package models

import "time"

// ProcessedEvent marks an inbound billing event (receipt token or provider
// notification id) as fully applied. Its existence is the idempotency
// barrier; rows may be pruned after the retention window because every
// downstream write is a replay-safe upsert.
type ProcessedEvent struct {
	ID        string    `gorm:"column:id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
