package providers

import (
	"time"

	"github.com/briefwire/briefwire-backend/pkg/enums"
)

// Notification is the canonical shape every provider webhook is reduced to
// before the entitlement engine sees it.
type Notification struct {
	// NotificationID is the provider's delivery-unique event id, used as the
	// idempotency key for webhook processing.
	NotificationID string
	Provider       enums.PaymentProvider
	Kind           enums.NotificationKind
	LineageID      string
	// PlanID is set when the event names the purchased plan; providers that
	// need it for a state lookup (Google) always include it.
	PlanID string
	// ExpiresAt is set only when the provider includes a fresh expiry in the
	// event payload.
	ExpiresAt *time.Time
	// WillAutoRenew is set only for events that carry renewal intent.
	WillAutoRenew *bool
}
