package enums

import "fmt"

// NotificationKind is the canonical, provider-agnostic event carried by a
// provider webhook after decoding.
type NotificationKind string

const (
	NotificationRenewed            NotificationKind = "renewed"
	NotificationNewlySubscribed    NotificationKind = "newly_subscribed"
	NotificationExpired            NotificationKind = "expired"
	NotificationRenewalFailed      NotificationKind = "renewal_failed"
	NotificationRevoked            NotificationKind = "revoked"
	NotificationGracePeriodExpired NotificationKind = "grace_period_expired"
	NotificationAutoRenewEnabled   NotificationKind = "auto_renew_enabled"
	NotificationAutoRenewDisabled  NotificationKind = "auto_renew_disabled"
)

var validNotificationKinds = []NotificationKind{
	NotificationRenewed,
	NotificationNewlySubscribed,
	NotificationExpired,
	NotificationRenewalFailed,
	NotificationRevoked,
	NotificationGracePeriodExpired,
	NotificationAutoRenewEnabled,
	NotificationAutoRenewDisabled,
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known. Unknown kinds are logged and
// ignored by the engine so new provider events degrade gracefully.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
