package providers

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/config"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	appleProductionBaseURL = "https://api.storekit.itunes.apple.com"
	appleSandboxBaseURL    = "https://api.storekit-sandbox.itunes.apple.com"
	appleTokenAudience     = "appstoreconnect-v1"
	appleTokenLifetime     = time.Hour
)

// AppleVerifier talks to the App Store Server API. The receipt presented by
// clients is the StoreKit 2 transaction id.
type AppleVerifier struct {
	cfg        config.AppleConfig
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// NewAppleVerifier constructs the Apple provider. Callers must only register
// it when cfg.Configured() is true.
func NewAppleVerifier(cfg config.AppleConfig, httpClient *http.Client) *AppleVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := appleProductionBaseURL
	if strings.EqualFold(strings.TrimSpace(cfg.Env), "sandbox") {
		baseURL = appleSandboxBaseURL
	}
	return &AppleVerifier{
		cfg:        cfg,
		httpClient: httpClient,
		baseURL:    baseURL,
		now:        time.Now,
	}
}

type appleTransactionPayload struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	ExpiresDate           int64  `json:"expiresDate"`
	RevocationDate        int64  `json:"revocationDate"`
}

type appleRenewalPayload struct {
	AutoRenewStatus int    `json:"autoRenewStatus"`
	AutoRenewPlan   string `json:"autoRenewProductId"`
}

type appleStatusResponse struct {
	Data []struct {
		LastTransactions []struct {
			Status                int    `json:"status"`
			SignedTransactionInfo string `json:"signedTransactionInfo"`
			SignedRenewalInfo     string `json:"signedRenewalInfo"`
		} `json:"lastTransactions"`
	} `json:"data"`
}

// VerifyPurchase resolves the transaction's subscription statuses and returns
// the lineage (originalTransactionId), expiry, and renewal intent.
func (v *AppleVerifier) VerifyPurchase(ctx context.Context, receipt, planID string) (*Verification, error) {
	transactionID := strings.TrimSpace(receipt)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "apple receipt is required")
	}

	var status appleStatusResponse
	endpoint := fmt.Sprintf("%s/inApps/v1/subscriptions/%s", v.baseURL, transactionID)
	if err := v.get(ctx, endpoint, &status); err != nil {
		return nil, err
	}

	for _, group := range status.Data {
		for _, last := range group.LastTransactions {
			var txn appleTransactionPayload
			if err := decodeJWSPayload(last.SignedTransactionInfo, &txn); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode apple transaction payload")
			}
			if planID != "" && txn.ProductID != planID {
				continue
			}

			willAutoRenew := false
			if last.SignedRenewalInfo != "" {
				var renewal appleRenewalPayload
				if err := decodeJWSPayload(last.SignedRenewalInfo, &renewal); err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode apple renewal payload")
				}
				willAutoRenew = renewal.AutoRenewStatus == 1
			}

			return &Verification{
				LineageID:     txn.OriginalTransactionID,
				ExpiresAt:     msToTime(txn.ExpiresDate),
				WillAutoRenew: willAutoRenew,
			}, nil
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("apple transaction %s does not match plan %q", transactionID, planID))
}

type appleNotificationEnvelope struct {
	SignedPayload string `json:"signedPayload"`
}

type appleNotificationPayload struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype"`
	NotificationUUID string `json:"notificationUUID"`
	Data             struct {
		SignedTransactionInfo string `json:"signedTransactionInfo"`
		SignedRenewalInfo     string `json:"signedRenewalInfo"`
	} `json:"data"`
}

// DecodeNotification converts an App Store Server Notification V2 body into
// the canonical shape. Unknown notification types map to an empty kind so the
// engine can log and skip them.
func (v *AppleVerifier) DecodeNotification(ctx context.Context, payload []byte) (*Notification, error) {
	var envelope appleNotificationEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode apple notification envelope")
	}
	if envelope.SignedPayload == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "apple notification missing signedPayload")
	}

	var notification appleNotificationPayload
	if err := decodeJWSPayload(envelope.SignedPayload, &notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode apple notification payload")
	}

	out := &Notification{
		NotificationID: notification.NotificationUUID,
		Provider:       enums.PaymentProviderApple,
		Kind:           appleNotificationKind(notification.NotificationType, notification.Subtype),
	}

	if notification.Data.SignedTransactionInfo != "" {
		var txn appleTransactionPayload
		if err := decodeJWSPayload(notification.Data.SignedTransactionInfo, &txn); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode apple notification transaction")
		}
		out.LineageID = txn.OriginalTransactionID
		if txn.ExpiresDate > 0 {
			expires := msToTime(txn.ExpiresDate)
			out.ExpiresAt = &expires
		}
	}

	if notification.Data.SignedRenewalInfo != "" {
		var renewal appleRenewalPayload
		if err := decodeJWSPayload(notification.Data.SignedRenewalInfo, &renewal); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode apple notification renewal")
		}
		willAutoRenew := renewal.AutoRenewStatus == 1
		out.WillAutoRenew = &willAutoRenew
	}

	return out, nil
}

func appleNotificationKind(notificationType, subtype string) enums.NotificationKind {
	switch notificationType {
	case "SUBSCRIBED":
		return enums.NotificationNewlySubscribed
	case "DID_RENEW":
		return enums.NotificationRenewed
	case "EXPIRED":
		return enums.NotificationExpired
	case "DID_FAIL_TO_RENEW":
		return enums.NotificationRenewalFailed
	case "GRACE_PERIOD_EXPIRED":
		return enums.NotificationGracePeriodExpired
	case "REVOKE", "REFUND":
		return enums.NotificationRevoked
	case "DID_CHANGE_RENEWAL_STATUS":
		if subtype == "AUTO_RENEW_ENABLED" {
			return enums.NotificationAutoRenewEnabled
		}
		return enums.NotificationAutoRenewDisabled
	default:
		return enums.NotificationKind("")
	}
}

func (v *AppleVerifier) get(ctx context.Context, endpoint string, target any) error {
	token, err := v.clientToken()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build apple request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call app store server api")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read apple response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeValidation, "apple transaction not found")
	case resp.StatusCode >= 400:
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("apple api returned %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode apple response")
	}
	return nil
}

// clientToken mints the short-lived ES256 token the App Store Server API
// requires on every request.
func (v *AppleVerifier) clientToken() (string, error) {
	key, err := parseECPrivateKey([]byte(v.cfg.PrivateKey))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse apple private key")
	}

	now := v.now().UTC()
	claims := jwt.MapClaims{
		"iss": v.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(appleTokenLifetime).Unix(),
		"aud": appleTokenAudience,
		"bid": v.cfg.BundleID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = v.cfg.KeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign apple client token")
	}
	return signed, nil
}

func parseECPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM block")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if key, ok := parsed.(*ecdsa.PrivateKey); ok {
			return key, nil
		}
		return nil, fmt.Errorf("key is not an EC key")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// decodeJWSPayload unmarshals the claims segment of a JWS. The x5c chain is
// not re-verified here; payloads arrive over the authenticated server API.
func decodeJWSPayload(token string, target any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("malformed JWS: expected 3 segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("decode JWS payload: %w", err)
	}
	return json.Unmarshal(payload, target)
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
