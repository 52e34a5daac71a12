package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefwire/briefwire-backend/pkg/enums"
	pkgerrors "github.com/briefwire/briefwire-backend/pkg/errors"
	pkgstripe "github.com/briefwire/briefwire-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/subscription"
)

// StripeSubscriptionClient exposes the subset of Stripe operations the
// verifier needs, so tests can stub the API.
type StripeSubscriptionClient interface {
	Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeClientWrapper struct{}

// NewStripeSubscriptionClient wraps the shared Stripe bootstrap client.
func NewStripeSubscriptionClient(api *pkgstripe.Client) StripeSubscriptionClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params == nil {
		params = &stripe.SubscriptionParams{}
	}
	params.Context = ctx
	return subscription.Get(id, params)
}

// StripeVerifier resolves purchases against the Stripe Subscriptions API.
// The receipt presented by clients is the subscription id.
type StripeVerifier struct {
	client StripeSubscriptionClient
}

// NewStripeVerifier constructs the Stripe provider.
func NewStripeVerifier(client StripeSubscriptionClient) *StripeVerifier {
	return &StripeVerifier{client: client}
}

// VerifyPurchase retrieves the subscription and checks that it carries the
// expected price. The subscription id doubles as the lineage.
func (v *StripeVerifier) VerifyPurchase(ctx context.Context, receipt, planID string) (*Verification, error) {
	subscriptionID := strings.TrimSpace(receipt)
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription id is required")
	}

	sub, err := v.client.Get(ctx, subscriptionID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription not found")
	}
	if planID != "" && stripePriceID(sub) != planID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stripe subscription %s does not match plan %q", sub.ID, planID))
	}

	return &Verification{
		LineageID:     sub.ID,
		ExpiresAt:     msToTime(stripePeriodEnd(sub) * 1000),
		WillAutoRenew: !sub.CancelAtPeriodEnd,
	}, nil
}

// DecodeNotification maps Stripe webhook events onto the canonical kinds.
// Lifecycle detail lives on the subscription object embedded in the event.
func (v *StripeVerifier) DecodeNotification(ctx context.Context, payload []byte) (*Notification, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event")
	}
	if event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	out := &Notification{
		NotificationID: event.ID,
		Provider:       enums.PaymentProviderStripe,
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		out.LineageID = sub.ID
		if end := stripePeriodEnd(&sub); end > 0 {
			expires := msToTime(end * 1000)
			out.ExpiresAt = &expires
		}
		willAutoRenew := !sub.CancelAtPeriodEnd

		switch event.Type {
		case stripe.EventTypeCustomerSubscriptionCreated:
			out.Kind = enums.NotificationNewlySubscribed
			out.WillAutoRenew = &willAutoRenew
		case stripe.EventTypeCustomerSubscriptionDeleted:
			out.Kind = enums.NotificationExpired
		default:
			if sub.CancelAtPeriodEnd {
				out.Kind = enums.NotificationAutoRenewDisabled
			} else {
				out.Kind = enums.NotificationAutoRenewEnabled
			}
			out.WillAutoRenew = &willAutoRenew
		}
		return out, nil

	case stripe.EventTypeInvoicePaid:
		out.Kind = enums.NotificationRenewed
		out.LineageID = event.GetObjectValue("subscription")
		return out, nil

	case stripe.EventTypeInvoicePaymentFailed:
		out.Kind = enums.NotificationRenewalFailed
		out.LineageID = event.GetObjectValue("subscription")
		return out, nil

	default:
		// Unknown kinds flow through; the engine logs and skips them.
		out.Kind = enums.NotificationKind("")
		out.LineageID = event.GetObjectValue("id")
		return out, nil
	}
}

func stripePriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func stripePeriodEnd(sub *stripe.Subscription) int64 {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0
	}
	return sub.Items.Data[0].CurrentPeriodEnd
}
