package models

import (
	"time"

	"github.com/briefwire/briefwire-backend/pkg/enums"
	"github.com/google/uuid"
)

// Subscription persists one paid entitlement lineage. LineageID is the
// provider's renewal-invariant identifier; exactly one row exists per
// lineage, and UserID is the only field rewritten during an entitlement
// transfer.
type Subscription struct {
	ID            uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Tier          enums.Tier               `gorm:"column:tier;type:user_tier;not null;default:'premium'"`
	Status        enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	Provider      enums.PaymentProvider    `gorm:"column:provider;type:payment_provider;not null"`
	LineageID     string                   `gorm:"column:lineage_id;not null;unique"`
	PlanID        string                   `gorm:"column:plan_id"`
	ValidUntil    time.Time                `gorm:"column:valid_until;not null"`
	WillAutoRenew bool                     `gorm:"column:will_auto_renew;not null;default:true"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
