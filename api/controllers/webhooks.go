package controllers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/briefwire/briefwire-backend/api/responses"
	"github.com/briefwire/briefwire-backend/internal/entitlements"
	"github.com/briefwire/briefwire-backend/internal/providers"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	"github.com/briefwire/briefwire-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// ProviderWebhook receives billing notifications for any configured provider.
// The provider name is the path segment so each store can point its webhook
// configuration at its own URL.
func ProviderWebhook(registry *providers.Registry, svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := enums.ParsePaymentProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse provider"))
			return
		}

		verifier, err := registry.Resolve(provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		notification, err := verifier.DecodeNotification(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notification.Provider = provider

		if err := svc.HandleProviderNotification(r.Context(), notification); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
