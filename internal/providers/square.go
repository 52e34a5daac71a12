package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	sq "github.com/square/square-go-sdk"
)

// SquareSubscriptionClient exposes the subset of Square interactions the
// verifier relies on.
type SquareSubscriptionClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*sq.Subscription, error)
}

// SquareVerifier resolves purchases against the Square Subscriptions API.
// The receipt presented by clients is the subscription id.
type SquareVerifier struct {
	client SquareSubscriptionClient
}

// NewSquareVerifier constructs the Square provider.
func NewSquareVerifier(client SquareSubscriptionClient) *SquareVerifier {
	return &SquareVerifier{client: client}
}

// VerifyPurchase retrieves the subscription and checks the plan variation.
func (v *SquareVerifier) VerifyPurchase(ctx context.Context, receipt, planID string) (*Verification, error) {
	subscriptionID := strings.TrimSpace(receipt)
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square subscription id is required")
	}

	sub, err := v.client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch square subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square subscription not found")
	}
	if planID != "" && derefString(sub.GetPlanVariationID()) != planID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square subscription does not match plan")
	}

	status := sub.GetStatus()
	canceled := status != nil && *status == sq.SubscriptionStatusCanceled

	return &Verification{
		LineageID:     derefString(sub.GetID()),
		ExpiresAt:     squareDate(derefString(sub.GetChargedThroughDate())),
		WillAutoRenew: !canceled && sub.GetCanceledDate() == nil,
	}, nil
}

type squareWebhookEnvelope struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Subscription struct {
				ID                 string  `json:"id"`
				Status             string  `json:"status"`
				ChargedThroughDate string  `json:"charged_through_date"`
				CanceledDate       *string `json:"canceled_date"`
			} `json:"subscription"`
			// Invoice events carry the subscription reference here instead.
			Invoice struct {
				ID             string `json:"id"`
				SubscriptionID string `json:"subscription_id"`
			} `json:"invoice"`
		} `json:"object"`
	} `json:"data"`
}

// DecodeNotification maps subscription webhook events onto the canonical
// kinds using the subscription status carried in the payload.
func (v *SquareVerifier) DecodeNotification(ctx context.Context, payload []byte) (*Notification, error) {
	var envelope squareWebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square webhook")
	}

	sub := envelope.Data.Object.Subscription
	out := &Notification{
		NotificationID: envelope.EventID,
		Provider:       enums.PaymentProviderSquare,
		LineageID:      sub.ID,
	}
	if expires := squareDate(sub.ChargedThroughDate); !expires.IsZero() {
		out.ExpiresAt = &expires
	}

	switch envelope.Type {
	case "subscription.created":
		out.Kind = enums.NotificationNewlySubscribed
	case "subscription.updated":
		switch strings.ToUpper(sub.Status) {
		case "ACTIVE":
			out.Kind = enums.NotificationRenewed
		case "CANCELED":
			out.Kind = enums.NotificationAutoRenewDisabled
			willAutoRenew := false
			out.WillAutoRenew = &willAutoRenew
		case "DEACTIVATED":
			out.Kind = enums.NotificationExpired
		default:
			out.Kind = enums.NotificationKind("")
		}
	case "invoice.payment_made":
		out.Kind = enums.NotificationRenewed
		out.LineageID = envelope.Data.Object.Invoice.SubscriptionID
	case "invoice.failed":
		out.Kind = enums.NotificationRenewalFailed
		out.LineageID = envelope.Data.Object.Invoice.SubscriptionID
	default:
		out.Kind = enums.NotificationKind("")
	}

	return out, nil
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func squareDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
