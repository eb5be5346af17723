// Package paymentsvc implements the online payment gateway on top of Stripe Checkout.
package paymentsvc

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/order"
)

const orderIDKey = "order_id"

var ErrMissingSecret = errors.New("stripe webhook secret is not configured")

type (
	sessionCreator interface {
		New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	}

	StripeGateway struct {
		sessions      sessionCreator
		currency      string
		webhookSecret string
	}
)

// NewStripeGateway returns nil when no secret key is configured.
func NewStripeGateway(conf *core.Config) *StripeGateway {
	if conf.Payment.StripeSecretKey == "" {
		return nil
	}
	return &StripeGateway{
		sessions: session.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: conf.Payment.StripeSecretKey,
		},
		currency:      strings.ToLower(conf.Payment.Currency),
		webhookSecret: conf.Payment.StripeWebhookSecret,
	}
}

func (g *StripeGateway) NewCheckoutSession(ctx context.Context, cs order.CheckoutSession) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(cs.Title),
					},
					UnitAmount: stripe.Int64(toMinorUnits(cs.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(cs.SuccessURL),
		CancelURL:         stripe.String(cs.CancelURL),
		ClientReferenceID: stripe.String(cs.OrderID),
	}
	if cs.Email != "" {
		params.CustomerEmail = stripe.String(cs.Email)
	}
	params.AddMetadata(orderIDKey, cs.OrderID)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return "", errors.Wrap(err, "session.New")
	}
	return s.URL, nil
}

func (g *StripeGateway) ParseCompletedCheckout(payload []byte, signature string) (string, bool, error) {
	if g.webhookSecret == "" {
		return "", false, ErrMissingSecret
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", false, errors.Wrap(err, "webhook.ConstructEvent")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return "", false, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return "", false, errors.Wrap(err, "json.Unmarshal")
	}
	orderID := cs.ClientReferenceID
	if orderID == "" {
		orderID = cs.Metadata[orderIDKey]
	}
	if orderID == "" {
		return "", false, errors.New("checkout session has no order reference")
	}
	return orderID, cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
