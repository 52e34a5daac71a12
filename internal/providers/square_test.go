package providers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	sq "github.com/square/square-go-sdk"
)

type stubSquareClient struct {
	sub *sq.Subscription
	err error
}

func (s *stubSquareClient) GetSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error) {
	return s.sub, s.err
}

func strPtr(v string) *string { return &v }

func TestSquareVerifyPurchase(t *testing.T) {
	status := sq.SubscriptionStatusActive
	client := &stubSquareClient{sub: &sq.Subscription{
		ID:                 strPtr("sq_sub_1"),
		Status:             &status,
		PlanVariationID:    strPtr("plan_var_premium"),
		ChargedThroughDate: strPtr("2026-09-30"),
	}}

	verifier := NewSquareVerifier(client)
	verification, err := verifier.VerifyPurchase(context.Background(), "sq_sub_1", "plan_var_premium")
	if err != nil {
		t.Fatalf("verify purchase: %v", err)
	}
	if verification.LineageID != "sq_sub_1" {
		t.Fatalf("unexpected lineage %q", verification.LineageID)
	}
	want := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	if !verification.ExpiresAt.Equal(want) {
		t.Fatalf("unexpected expiry %v", verification.ExpiresAt)
	}
	if !verification.WillAutoRenew {
		t.Fatalf("expected auto-renew true")
	}
}

func TestSquareVerifyPurchasePlanMismatch(t *testing.T) {
	client := &stubSquareClient{sub: &sq.Subscription{
		ID:              strPtr("sq_sub_1"),
		PlanVariationID: strPtr("plan_var_other"),
	}}

	verifier := NewSquareVerifier(client)
	_, err := verifier.VerifyPurchase(context.Background(), "sq_sub_1", "plan_var_premium")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSquareDecodeNotification(t *testing.T) {
	verifier := NewSquareVerifier(&stubSquareClient{})

	body, _ := json.Marshal(map[string]any{
		"event_id": "sq-evt-1",
		"type":     "subscription.updated",
		"data": map[string]any{
			"object": map[string]any{
				"subscription": map[string]any{
					"id":                   "sq_sub_9",
					"status":               "CANCELED",
					"charged_through_date": "2026-10-15",
				},
			},
		},
	})

	notification, err := verifier.DecodeNotification(context.Background(), body)
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if notification.Kind != enums.NotificationAutoRenewDisabled {
		t.Fatalf("unexpected kind %s", notification.Kind)
	}
	if notification.LineageID != "sq_sub_9" {
		t.Fatalf("unexpected lineage %s", notification.LineageID)
	}
	if notification.ExpiresAt == nil {
		t.Fatalf("expected expiry from charged_through_date")
	}
	if notification.WillAutoRenew == nil || *notification.WillAutoRenew {
		t.Fatalf("expected auto-renew false")
	}
}

func TestSquareDecodeInvoiceEvents(t *testing.T) {
	verifier := NewSquareVerifier(&stubSquareClient{})

	cases := []struct {
		eventType string
		wantKind  enums.NotificationKind
	}{
		{eventType: "invoice.payment_made", wantKind: enums.NotificationRenewed},
		{eventType: "invoice.failed", wantKind: enums.NotificationRenewalFailed},
	}

	for _, tc := range cases {
		body, _ := json.Marshal(map[string]any{
			"event_id": "sq-evt-" + tc.eventType,
			"type":     tc.eventType,
			"data": map[string]any{
				"object": map[string]any{
					"invoice": map[string]any{
						"id":              "inv_1",
						"subscription_id": "sq_sub_9",
					},
				},
			},
		})

		notification, err := verifier.DecodeNotification(context.Background(), body)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.eventType, err)
		}
		if notification.Kind != tc.wantKind {
			t.Fatalf("unexpected kind %s for %s", notification.Kind, tc.eventType)
		}
		if notification.LineageID != "sq_sub_9" {
			t.Fatalf("invoice events must use the subscription reference, got %q", notification.LineageID)
		}
		if notification.ExpiresAt != nil {
			t.Fatalf("invoice events carry no expiry of their own")
		}
	}
}

func TestSquareDecodeUnknownEventYieldsUnknownKind(t *testing.T) {
	verifier := NewSquareVerifier(&stubSquareClient{})

	body, _ := json.Marshal(map[string]any{
		"event_id": "sq-evt-2",
		"type":     "catalog.version.updated",
	})

	notification, err := verifier.DecodeNotification(context.Background(), body)
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if notification.Kind.IsValid() {
		t.Fatalf("expected unknown kind, got %s", notification.Kind)
	}
}
