package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/config"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
)

const googlePlayBaseURL = "https://androidpublisher.googleapis.com/androidpublisher/v3"

// GoogleVerifier talks to the Play Developer API. The receipt presented by
// clients is the Play Billing purchase token.
type GoogleVerifier struct {
	cfg        config.GoogleConfig
	httpClient *http.Client
	baseURL    string
}

// NewGoogleVerifier constructs the Google provider. Callers must only
// register it when cfg.Configured() is true.
func NewGoogleVerifier(cfg config.GoogleConfig, httpClient *http.Client) *GoogleVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &GoogleVerifier{cfg: cfg, httpClient: httpClient, baseURL: googlePlayBaseURL}
}

type googleSubscriptionPurchase struct {
	ExpiryTimeMillis    string `json:"expiryTimeMillis"`
	AutoRenewing        bool   `json:"autoRenewing"`
	LinkedPurchaseToken string `json:"linkedPurchaseToken"`
	PaymentState        *int   `json:"paymentState"`
}

// VerifyPurchase looks up the purchase token under the configured package.
// The lineage follows linkedPurchaseToken when Play reissued the token, so
// resubscribes land on the same local record.
func (v *GoogleVerifier) VerifyPurchase(ctx context.Context, receipt, planID string) (*Verification, error) {
	token := strings.TrimSpace(receipt)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "google purchase token is required")
	}
	if strings.TrimSpace(planID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "google plan id is required")
	}

	endpoint := fmt.Sprintf("%s/applications/%s/purchases/subscriptions/%s/tokens/%s",
		v.baseURL, v.cfg.PackageName, planID, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build play api request")
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.AccessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call play developer api")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read play api response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "google purchase token rejected")
	case resp.StatusCode >= 400:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("play api returned %d", resp.StatusCode))
	}

	var purchase googleSubscriptionPurchase
	if err := json.Unmarshal(body, &purchase); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode play api response")
	}

	expiryMillis, err := strconv.ParseInt(purchase.ExpiryTimeMillis, 10, 64)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse play expiry time")
	}

	lineage := token
	if purchase.LinkedPurchaseToken != "" {
		lineage = purchase.LinkedPurchaseToken
	}

	return &Verification{
		LineageID:     lineage,
		ExpiresAt:     msToTime(expiryMillis),
		WillAutoRenew: purchase.AutoRenewing,
	}, nil
}

// Real-time developer notification types, per the Play Billing docs.
const (
	googleSubscriptionRecovered = 1
	googleSubscriptionRenewed   = 2
	googleSubscriptionCanceled  = 3
	googleSubscriptionPurchased = 4
	googleSubscriptionOnHold    = 5
	googleSubscriptionGracePerd = 6
	googleSubscriptionRestarted = 7
	googleSubscriptionRevoked   = 12
	googleSubscriptionExpired   = 13
)

type googleDeveloperNotification struct {
	EventTimeMillis          string `json:"eventTimeMillis"`
	SubscriptionNotification *struct {
		NotificationType int    `json:"notificationType"`
		PurchaseToken    string `json:"purchaseToken"`
		SubscriptionID   string `json:"subscriptionId"`
	} `json:"subscriptionNotification"`
}

type googlePubSubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
}

// DecodeNotification accepts either a Pub/Sub push envelope or a bare
// developer notification body. RTDNs carry no expiry, so the notification is
// returned with a nil ExpiresAt and the plan id needed to fetch the current
// state from the Play API.
func (v *GoogleVerifier) DecodeNotification(ctx context.Context, payload []byte) (*Notification, error) {
	raw := payload
	notificationID := ""

	var envelope googlePubSubEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Message.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode pubsub data")
		}
		raw = decoded
		notificationID = envelope.Message.MessageID
	}

	var developer googleDeveloperNotification
	if err := json.Unmarshal(raw, &developer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode developer notification")
	}
	if developer.SubscriptionNotification == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification is not a subscription event")
	}

	sub := developer.SubscriptionNotification
	if notificationID == "" {
		// RTDNs have no UUID of their own; token + event time is delivery-unique.
		notificationID = fmt.Sprintf("%s:%s", sub.PurchaseToken, developer.EventTimeMillis)
	}

	out := &Notification{
		NotificationID: notificationID,
		Provider:       enums.PaymentProviderGoogle,
		Kind:           googleNotificationKind(sub.NotificationType),
		LineageID:      sub.PurchaseToken,
		PlanID:         sub.SubscriptionID,
	}

	switch sub.NotificationType {
	case googleSubscriptionCanceled:
		willAutoRenew := false
		out.WillAutoRenew = &willAutoRenew
	case googleSubscriptionRestarted:
		willAutoRenew := true
		out.WillAutoRenew = &willAutoRenew
	}

	return out, nil
}

func googleNotificationKind(notificationType int) enums.NotificationKind {
	switch notificationType {
	case googleSubscriptionPurchased:
		return enums.NotificationNewlySubscribed
	case googleSubscriptionRenewed, googleSubscriptionRecovered:
		return enums.NotificationRenewed
	case googleSubscriptionExpired:
		return enums.NotificationExpired
	case googleSubscriptionGracePerd:
		return enums.NotificationRenewalFailed
	case googleSubscriptionOnHold:
		return enums.NotificationGracePeriodExpired
	case googleSubscriptionRevoked:
		return enums.NotificationRevoked
	case googleSubscriptionCanceled:
		return enums.NotificationAutoRenewDisabled
	case googleSubscriptionRestarted:
		return enums.NotificationAutoRenewEnabled
	default:
		return enums.NotificationKind("")
	}
}
