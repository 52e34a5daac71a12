package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
)

// Verification is the provider-neutral result of a successful purchase check.
// LineageID identifies the subscription lineage across renewals, upgrades, and
// device changes; it is the join key for local records.
type Verification struct {
	LineageID     string
	ExpiresAt     time.Time
	WillAutoRenew bool
}

// Verifier abstracts one payment provider. Implementations canonicalize the
// provider's wire shapes immediately so nothing upstream handles raw payloads.
type Verifier interface {
	// VerifyPurchase checks the client-supplied receipt against the provider
	// and returns the canonical verification result.
	VerifyPurchase(ctx context.Context, receipt, planID string) (*Verification, error)
	// DecodeNotification converts a raw webhook body into the canonical
	// notification shape.
	DecodeNotification(ctx context.Context, payload []byte) (*Notification, error)
}

// Registry resolves a payment provider to its verifier. Providers without
// credentials resolve to an explicit unconfigured variant instead of being
// absent from the map.
type Registry struct {
	entries map[enums.PaymentProvider]Verifier
}

// NewRegistry builds a registry covering every known provider. Entries left
// nil are replaced with the unconfigured variant.
func NewRegistry(entries map[enums.PaymentProvider]Verifier) *Registry {
	all := make(map[enums.PaymentProvider]Verifier, len(enums.PaymentProviders()))
	for _, provider := range enums.PaymentProviders() {
		if v, ok := entries[provider]; ok && v != nil {
			all[provider] = v
			continue
		}
		all[provider] = &unconfiguredVerifier{provider: provider}
	}
	return &Registry{entries: all}
}

// Resolve returns the verifier for the provider. Unknown providers are a
// validation failure; known-but-unconfigured providers return a verifier
// whose every call fails with an internal configuration error.
func (r *Registry) Resolve(provider enums.PaymentProvider) (Verifier, error) {
	if !provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment provider %q", provider))
	}
	verifier, ok := r.entries[provider]
	if !ok {
		return &unconfiguredVerifier{provider: provider}, nil
	}
	return verifier, nil
}

// Configured reports whether the provider has a real verifier behind it.
func (r *Registry) Configured(provider enums.PaymentProvider) bool {
	verifier, ok := r.entries[provider]
	if !ok {
		return false
	}
	_, unconfigured := verifier.(*unconfiguredVerifier)
	return !unconfigured
}

type unconfiguredVerifier struct {
	provider enums.PaymentProvider
}

func (u *unconfiguredVerifier) err() error {
	return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("payment provider %q is not configured", u.provider))
}

func (u *unconfiguredVerifier) VerifyPurchase(ctx context.Context, receipt, planID string) (*Verification, error) {
	return nil, u.err()
}

func (u *unconfiguredVerifier) DecodeNotification(ctx context.Context, payload []byte) (*Notification, error) {
	return nil, u.err()
}
