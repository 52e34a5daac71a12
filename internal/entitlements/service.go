package entitlements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briefwire/briefwire-backend/internal/providers"
	"github.com/briefwire/briefwire-backend/pkg/db/models"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	"github.com/briefwire/briefwire-backend/pkg/logger"
	"github.com/briefwire/briefwire-backend/pkg/metrics"
	"github.com/google/uuid"
)

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier enums.Tier) error
}

type providerRegistry interface {
	Resolve(provider enums.PaymentProvider) (providers.Verifier, error)
}

// PurchaseTransaction is a client-submitted purchase-verification request,
// already authenticated and parsed by the HTTP layer.
type PurchaseTransaction struct {
	Provider        enums.PaymentProvider
	ProviderReceipt string
	PlanID          string
}

// Service is the entitlement state machine. It is the only component with
// transition logic; the store, guard, and verifiers are collaborators.
type Service interface {
	VerifyAndProcessPurchase(ctx context.Context, user *models.User, txn PurchaseTransaction) (*models.Subscription, error)
	HandleProviderNotification(ctx context.Context, notification *providers.Notification) error
}

// ServiceParams groups dependencies for the entitlement service.
type ServiceParams struct {
	Store    Store
	Guard    IdempotencyGuard
	Users    userRepository
	Registry providerRegistry
	Logger   *logger.Logger
	Metrics  *metrics.EntitlementMetrics
}

type service struct {
	store    Store
	guard    IdempotencyGuard
	users    userRepository
	registry providerRegistry
	logger   *logger.Logger
	metrics  *metrics.EntitlementMetrics
	now      func() time.Time
}

// NewService builds the entitlement service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("entitlement store required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repo required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:    params.Store,
		guard:    params.Guard,
		users:    params.Users,
		registry: params.Registry,
		logger:   params.Logger,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// VerifyAndProcessPurchase re-verifies the receipt with the provider and
// reconciles the local entitlement state. The receipt token doubles as the
// idempotency key.
func (s *service) VerifyAndProcessPurchase(ctx context.Context, user *models.User, txn PurchaseTransaction) (*models.Subscription, error) {
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	receipt := strings.TrimSpace(txn.ProviderReceipt)
	if receipt == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider receipt is required")
	}

	ctx = s.logger.WithUserID(ctx, user.ID.String())
	ctx = s.logger.WithProvider(ctx, txn.Provider.String())

	processed, err := s.guard.IsProcessed(ctx, receipt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency record")
	}
	if processed {
		record, err := s.store.FindByUser(ctx, user.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription for replayed receipt")
		}
		if record != nil {
			s.countVerification(txn.Provider, "replayed")
			return record, nil
		}
		// The receipt was applied but no record belongs to this user anymore,
		// e.g. the lineage was transferred away. Re-verifying is read-only
		// against the provider and the steps below are replay-safe.
		s.logger.Warn(ctx, "receipt already processed but no subscription found for user, re-verifying")
	}

	verifier, err := s.registry.Resolve(txn.Provider)
	if err != nil {
		s.countVerification(txn.Provider, "rejected")
		return nil, err
	}

	started := s.now()
	verification, err := verifier.VerifyPurchase(ctx, receipt, txn.PlanID)
	s.observeProviderCall(txn.Provider, s.now().Sub(started))
	if err != nil {
		s.countVerification(txn.Provider, "failed")
		return nil, err
	}
	if verification == nil || verification.ExpiresAt.IsZero() {
		s.countVerification(txn.Provider, "failed")
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider verification returned no expiry")
	}

	// The provider call succeeded; run the remaining steps to completion even
	// if the caller disconnects, so the record and tier cannot diverge.
	ctx = context.WithoutCancel(ctx)
	ctx = s.logger.WithLineageID(ctx, verification.LineageID)

	existing, err := s.store.FindByLineageID(ctx, verification.LineageID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lineage lookup")
	}

	if existing != nil && existing.UserID != user.ID {
		if err := s.transferSubscription(ctx, existing, user); err != nil {
			return nil, err
		}
	}

	status := enums.SubscriptionStatusActive
	if !verification.ExpiresAt.After(s.now()) {
		status = enums.SubscriptionStatusExpired
	}

	record := existing
	if record == nil {
		record = &models.Subscription{
			UserID:    user.ID,
			LineageID: verification.LineageID,
		}
	}
	record.Tier = enums.TierPremium
	record.Status = status
	record.Provider = txn.Provider
	record.PlanID = txn.PlanID
	record.ValidUntil = verification.ExpiresAt
	record.WillAutoRenew = verification.WillAutoRenew

	if existing == nil {
		err = s.store.Create(ctx, record)
	} else {
		err = s.store.Update(ctx, record)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}

	if status == enums.SubscriptionStatusActive && user.Tier != enums.TierPremium {
		if err := s.users.UpdateTier(ctx, user.ID, enums.TierPremium); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upgrade user tier")
		}
		user.Tier = enums.TierPremium
	}

	if err := s.guard.MarkProcessed(ctx, receipt); err != nil {
		// The effect already landed; failing now would only make the caller
		// retry a request whose outcome is committed.
		s.logger.Warn(ctx, fmt.Sprintf("failed to mark receipt processed: %v", err))
	}

	s.countVerification(txn.Provider, "processed")
	s.logger.Info(ctx, fmt.Sprintf("purchase verified, subscription %s", status))
	return record, nil
}

// transferSubscription moves a lineage to a new owner. The previous owner is
// defensively downgraded first; if that downgrade fails the whole transfer
// aborts so two accounts can never hold the same paid lineage.
func (s *service) transferSubscription(ctx context.Context, record *models.Subscription, newUser *models.User) error {
	oldUser, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load previous subscription owner")
	}
	if oldUser == nil {
		s.logger.Warn(ctx, "previous subscription owner no longer exists, skipping downgrade")
	} else if oldUser.Tier != enums.TierStandard {
		if err := s.users.UpdateTier(ctx, oldUser.ID, enums.TierStandard); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "downgrade previous subscription owner")
		}
	}

	record.UserID = newUser.ID
	record.Tier = enums.TierPremium
	if err := s.store.Update(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign subscription owner")
	}

	if s.metrics != nil {
		s.metrics.IncTransfer()
	}
	s.logger.Info(ctx, fmt.Sprintf("subscription transferred to user %s", newUser.ID))
	return nil
}

// HandleProviderNotification applies one canonical webhook notification to
// local state. Unmatched lineages and unknown kinds are logged, not failed.
func (s *service) HandleProviderNotification(ctx context.Context, notification *providers.Notification) error {
	if notification == nil || notification.NotificationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id is required")
	}

	ctx = s.logger.WithProvider(ctx, notification.Provider.String())
	ctx = s.logger.WithLineageID(ctx, notification.LineageID)

	processed, err := s.guard.IsProcessed(ctx, notification.NotificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency record")
	}
	if processed {
		return nil
	}

	if !notification.Kind.IsValid() {
		s.logger.Info(ctx, "ignoring unrecognized provider notification kind")
		return nil
	}

	lineage := notification.LineageID
	expiresAt := notification.ExpiresAt
	willAutoRenew := notification.WillAutoRenew

	// Activating pushes that omit the new expiry (Google RTDNs, Stripe and
	// Square invoice events) cannot be trusted as-is: fetch the authoritative
	// state from the provider before touching local records. The provider's
	// answer also canonicalizes the lineage when the push carried a reissued
	// token. Failing here lets the provider retry the delivery.
	if expiresAt == nil && activatesLineage(notification.Kind) {
		verifier, err := s.registry.Resolve(notification.Provider)
		if err != nil {
			return err
		}
		started := s.now()
		verification, err := verifier.VerifyPurchase(ctx, lineage, notification.PlanID)
		s.observeProviderCall(notification.Provider, s.now().Sub(started))
		if err != nil {
			return err
		}
		if verification == nil || verification.ExpiresAt.IsZero() {
			return pkgerrors.New(pkgerrors.CodeInternal, "provider verification returned no expiry")
		}
		if verification.LineageID != "" {
			lineage = verification.LineageID
			ctx = s.logger.WithLineageID(ctx, lineage)
		}
		expiresAt = &verification.ExpiresAt
		if willAutoRenew == nil {
			renews := verification.WillAutoRenew
			willAutoRenew = &renews
		}
	}

	record, err := s.store.FindByLineageID(ctx, lineage)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lineage lookup")
	}
	if record == nil {
		s.logger.Warn(ctx, "notification lineage matches no local subscription")
		return nil
	}

	// Apply the rest even if the webhook delivery is cancelled mid-flight.
	ctx = context.WithoutCancel(ctx)

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription owner")
	}
	if user == nil {
		s.logger.Warn(ctx, "subscription owner no longer exists")
	}

	before := *record
	var wantTier enums.Tier

	switch notification.Kind {
	case enums.NotificationRenewed, enums.NotificationNewlySubscribed:
		record.Status = enums.SubscriptionStatusActive
		if expiresAt != nil {
			record.ValidUntil = *expiresAt
		}
		if willAutoRenew != nil {
			record.WillAutoRenew = *willAutoRenew
		}
		wantTier = enums.TierPremium
	case enums.NotificationExpired, enums.NotificationRenewalFailed, enums.NotificationGracePeriodExpired:
		record.Status = enums.SubscriptionStatusExpired
		record.WillAutoRenew = false
		wantTier = enums.TierStandard
	case enums.NotificationRevoked:
		record.Status = enums.SubscriptionStatusRevoked
		record.WillAutoRenew = false
		wantTier = enums.TierStandard
	case enums.NotificationAutoRenewEnabled:
		record.WillAutoRenew = true
	case enums.NotificationAutoRenewDisabled:
		record.WillAutoRenew = false
	}

	changed := record.Status != before.Status ||
		record.WillAutoRenew != before.WillAutoRenew ||
		!record.ValidUntil.Equal(before.ValidUntil)
	if changed {
		if err := s.store.Update(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
	}

	if user != nil && wantTier != "" && user.Tier != wantTier {
		if err := s.users.UpdateTier(ctx, user.ID, wantTier); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync user tier")
		}
	}

	if err := s.guard.MarkProcessed(ctx, notification.NotificationID); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("failed to mark notification processed: %v", err))
	}

	if s.metrics != nil {
		s.metrics.IncWebhookEvent(notification.Provider.String(), notification.Kind.String())
	}
	s.logger.Info(ctx, fmt.Sprintf("notification %s applied", notification.Kind))
	return nil
}

// activatesLineage reports whether the kind grants or extends access, i.e.
// whether applying it without a trustworthy expiry would be unsafe.
func activatesLineage(kind enums.NotificationKind) bool {
	return kind == enums.NotificationRenewed || kind == enums.NotificationNewlySubscribed
}

func (s *service) countVerification(provider enums.PaymentProvider, outcome string) {
	if s.metrics != nil {
		s.metrics.IncVerification(provider.String(), outcome)
	}
}

func (s *service) observeProviderCall(provider enums.PaymentProvider, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveProviderCall(provider.String(), duration)
	}
}
