package enums

import "fmt"

// Tier is the access level a user currently holds.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

var validTiers = []Tier{TierStandard, TierPremium}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t Tier) IsValid() bool {
	for _, candidate := range validTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTier converts raw input into a Tier.
func ParseTier(value string) (Tier, error) {
	for _, candidate := range validTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tier %q", value)
}
