package controllers

import (
	"net/http"
	"time"

	"github.com/briefwire/briefwire-backend/api/middleware"
	"github.com/briefwire/briefwire-backend/api/responses"
	"github.com/briefwire/briefwire-backend/api/validators"
	"github.com/briefwire/briefwire-backend/internal/entitlements"
	"github.com/briefwire/briefwire-backend/pkg/db/models"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	"github.com/briefwire/briefwire-backend/pkg/logger"
)

type verifyPurchaseRequest struct {
	Provider        string `json:"provider" validate:"required"`
	ProviderReceipt string `json:"provider_receipt" validate:"required"`
	PlanID          string `json:"plan_id"`
}

type subscriptionResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Tier          string    `json:"tier"`
	Provider      string    `json:"provider"`
	PlanID        string    `json:"plan_id,omitempty"`
	ValidUntil    time.Time `json:"valid_until"`
	WillAutoRenew bool      `json:"will_auto_renew"`
}

// VerifyPurchase handles client-submitted purchase receipts.
func VerifyPurchase(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body verifyPurchaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		provider, err := enums.ParsePaymentProvider(body.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse provider"))
			return
		}

		record, err := svc.VerifyAndProcessPurchase(r.Context(), user, entitlements.PurchaseTransaction{
			Provider:        provider,
			ProviderReceipt: body.ProviderReceipt,
			PlanID:          body.PlanID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newSubscriptionResponse(record))
	}
}

func newSubscriptionResponse(record *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:            record.ID.String(),
		Status:        record.Status.String(),
		Tier:          record.Tier.String(),
		Provider:      record.Provider.String(),
		PlanID:        record.PlanID,
		ValidUntil:    record.ValidUntil,
		WillAutoRenew: record.WillAutoRenew,
	}
}
