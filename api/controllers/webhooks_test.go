package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/briefwire/briefwire-backend/internal/providers"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
)

type stubWebhookVerifier struct {
	notification *providers.Notification
	decodeErr    error
}

func (s *stubWebhookVerifier) VerifyPurchase(ctx context.Context, receipt, planID string) (*providers.Verification, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (s *stubWebhookVerifier) DecodeNotification(ctx context.Context, payload []byte) (*providers.Notification, error) {
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}
	return s.notification, nil
}

func webhookRequest(provider, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+provider, strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("provider", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestProviderWebhookAppliesNotification(t *testing.T) {
	verifier := &stubWebhookVerifier{notification: &providers.Notification{
		NotificationID: "note-1",
		Kind:           enums.NotificationRenewed,
		LineageID:      "lineage-1",
	}}
	registry := providers.NewRegistry(map[enums.PaymentProvider]providers.Verifier{
		enums.PaymentProviderApple: verifier,
	})
	svc := &stubEntitlementService{}

	resp := httptest.NewRecorder()
	ProviderWebhook(registry, svc, nil).ServeHTTP(resp, webhookRequest("apple", `{"signedPayload":"x"}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.notifications) != 1 {
		t.Fatalf("expected notification forwarded to the engine")
	}
	if svc.notifications[0].Provider != enums.PaymentProviderApple {
		t.Fatalf("expected provider stamped from the route")
	}
}

func TestProviderWebhookRejectsUnknownProvider(t *testing.T) {
	registry := providers.NewRegistry(nil)
	svc := &stubEntitlementService{}

	resp := httptest.NewRecorder()
	ProviderWebhook(registry, svc, nil).ServeHTTP(resp, webhookRequest("paypal", `{}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.notifications) != 0 {
		t.Fatalf("engine must not be called for unknown providers")
	}
}

func TestProviderWebhookRejectsMalformedPayload(t *testing.T) {
	verifier := &stubWebhookVerifier{decodeErr: pkgerrors.New(pkgerrors.CodeValidation, "bad payload")}
	registry := providers.NewRegistry(map[enums.PaymentProvider]providers.Verifier{
		enums.PaymentProviderGoogle: verifier,
	})
	svc := &stubEntitlementService{}

	resp := httptest.NewRecorder()
	ProviderWebhook(registry, svc, nil).ServeHTTP(resp, webhookRequest("google", `not-json`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestProviderWebhookUnconfiguredProviderFailsClosed(t *testing.T) {
	// The route exists for every known provider, but delivery to an
	// unconfigured one is a deployment error, not a silent drop.
	registry := providers.NewRegistry(nil)
	svc := &stubEntitlementService{}

	resp := httptest.NewRecorder()
	ProviderWebhook(registry, svc, nil).ServeHTTP(resp, webhookRequest("apple", `{}`))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
