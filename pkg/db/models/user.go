package models

import (
	"time"

	"github.com/briefwire/briefwire-backend/pkg/enums"
	"github.com/google/uuid"
)

// User is the partial identity view the entitlement engine works with. Tier
// is mutated only by the engine as a side effect of entitlement changes.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string     `gorm:"type:text;not null;uniqueIndex"`
	Tier      enums.Tier `gorm:"column:tier;type:user_tier;not null;default:'standard'"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
