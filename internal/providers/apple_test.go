package providers

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/config"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
)

func testAppleKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// fakeJWS builds an unsigned JWS-shaped token carrying the payload.
func fakeJWS(t *testing.T, payload any) string {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256"}`))
	claims := base64.RawURLEncoding.EncodeToString(body)
	return fmt.Sprintf("%s.%s.sig", header, claims)
}

func TestAppleVerifyPurchase(t *testing.T) {
	signedTxn := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing bearer token")
		}
		resp := map[string]any{
			"data": []map[string]any{{
				"lastTransactions": []map[string]any{{
					"status":                1,
					"signedTransactionInfo": signedTxn,
				}},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	verifier := NewAppleVerifier(config.AppleConfig{
		KeyID:      "KEY123",
		IssuerID:   "ISSUER",
		BundleID:   "com.briefwire.reader",
		PrivateKey: testAppleKeyPEM(t),
	}, server.Client())
	verifier.baseURL = server.URL

	expires := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	signedTxn = fakeJWS(t, appleTransactionPayload{
		TransactionID:         "txn-9",
		OriginalTransactionID: "orig-1",
		ProductID:             "premium_monthly",
		ExpiresDate:           expires.UnixMilli(),
	})

	verification, err := verifier.VerifyPurchase(context.Background(), "txn-9", "premium_monthly")
	if err != nil {
		t.Fatalf("verify purchase: %v", err)
	}
	if verification.LineageID != "orig-1" {
		t.Fatalf("unexpected lineage %q", verification.LineageID)
	}
	if !verification.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected expiry %v", verification.ExpiresAt)
	}
}

func TestAppleVerifyPurchaseNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	verifier := NewAppleVerifier(config.AppleConfig{
		KeyID:      "KEY123",
		IssuerID:   "ISSUER",
		PrivateKey: testAppleKeyPEM(t),
	}, server.Client())
	verifier.baseURL = server.URL

	_, err := verifier.VerifyPurchase(context.Background(), "missing", "premium_monthly")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAppleDecodeNotification(t *testing.T) {
	verifier := NewAppleVerifier(config.AppleConfig{PrivateKey: testAppleKeyPEM(t)}, nil)

	expires := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	signedTxn := fakeJWS(t, appleTransactionPayload{
		OriginalTransactionID: "orig-7",
		ExpiresDate:           expires.UnixMilli(),
	})
	signedRenewal := fakeJWS(t, appleRenewalPayload{AutoRenewStatus: 1})

	inner := map[string]any{
		"notificationType": "DID_RENEW",
		"notificationUUID": "uuid-42",
		"data": map[string]any{
			"signedTransactionInfo": signedTxn,
			"signedRenewalInfo":     signedRenewal,
		},
	}
	body, _ := json.Marshal(map[string]string{"signedPayload": fakeJWS(t, inner)})

	notification, err := verifier.DecodeNotification(context.Background(), body)
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if notification.Kind != enums.NotificationRenewed {
		t.Fatalf("unexpected kind %s", notification.Kind)
	}
	if notification.NotificationID != "uuid-42" {
		t.Fatalf("unexpected id %s", notification.NotificationID)
	}
	if notification.LineageID != "orig-7" {
		t.Fatalf("unexpected lineage %s", notification.LineageID)
	}
	if notification.ExpiresAt == nil || !notification.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected expiry %v", notification.ExpiresAt)
	}
	if notification.WillAutoRenew == nil || !*notification.WillAutoRenew {
		t.Fatalf("expected auto-renew true")
	}
}

func TestAppleNotificationKindMapping(t *testing.T) {
	tests := []struct {
		notificationType string
		subtype          string
		want             enums.NotificationKind
	}{
		{"SUBSCRIBED", "INITIAL_BUY", enums.NotificationNewlySubscribed},
		{"DID_RENEW", "", enums.NotificationRenewed},
		{"EXPIRED", "VOLUNTARY", enums.NotificationExpired},
		{"DID_FAIL_TO_RENEW", "GRACE_PERIOD", enums.NotificationRenewalFailed},
		{"GRACE_PERIOD_EXPIRED", "", enums.NotificationGracePeriodExpired},
		{"REVOKE", "", enums.NotificationRevoked},
		{"REFUND", "", enums.NotificationRevoked},
		{"DID_CHANGE_RENEWAL_STATUS", "AUTO_RENEW_ENABLED", enums.NotificationAutoRenewEnabled},
		{"DID_CHANGE_RENEWAL_STATUS", "AUTO_RENEW_DISABLED", enums.NotificationAutoRenewDisabled},
		{"CONSUMPTION_REQUEST", "", enums.NotificationKind("")},
	}
	for _, tt := range tests {
		if got := appleNotificationKind(tt.notificationType, tt.subtype); got != tt.want {
			t.Fatalf("%s/%s: expected %q got %q", tt.notificationType, tt.subtype, tt.want, got)
		}
	}
}
