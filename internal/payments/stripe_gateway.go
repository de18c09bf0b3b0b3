package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"

	pkgstripe "github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway maps gateway orders onto Stripe PaymentIntents.
type StripeGateway struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// NewStripeGateway builds the gateway from the shared Stripe client.
func NewStripeGateway(c *pkgstripe.Client) (*StripeGateway, error) {
	api := c.API()
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return newStripeGateway(api.PaymentIntents, api.Refunds), nil
}

func newStripeGateway(intents stripePaymentIntentAPI, refunds stripeRefundAPI) *StripeGateway {
	return &StripeGateway{intents: intents, refunds: refunds}
}

func (g *StripeGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("receipt", req.Receipt)
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = "gateway-order-" + req.Receipt
	}
	params.SetIdempotencyKey(key)

	intent, err := g.intents.New(params)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return fromIntent(intent), nil
}

func (g *StripeGateway) LookupOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	intent, err := g.intents.Get(gatewayOrderID, params)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	return fromIntent(intent), nil
}

func (g *StripeGateway) Refund(ctx context.Context, call RefundCall) (RefundOutcome, error) {
	params := &stripe.RefundParams{
		Amount: stripe.Int64(call.AmountMinor),
	}
	if strings.HasPrefix(call.PaymentID, "pi_") {
		params.PaymentIntent = stripe.String(call.PaymentID)
	} else {
		params.Charge = stripe.String(call.PaymentID)
	}
	params.Context = ctx
	if key := strings.TrimSpace(call.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	refund, err := g.refunds.New(params)
	if err != nil {
		return RefundOutcome{}, fmt.Errorf("stripe: create refund: %w", err)
	}
	return RefundOutcome{
		ID:          refund.ID,
		AmountMinor: refund.Amount,
		Succeeded:   refund.Status != stripe.RefundStatusFailed && refund.Status != stripe.RefundStatusCanceled,
	}, nil
}

func fromIntent(intent *stripe.PaymentIntent) GatewayOrder {
	order := GatewayOrder{
		ID:          intent.ID,
		AmountMinor: intent.Amount,
		Currency:    strings.ToUpper(string(intent.Currency)),
		State:       GatewayStatePending,
	}
	if intent.LatestCharge != nil {
		order.PaymentID = intent.LatestCharge.ID
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		order.State = GatewayStatePaid
	case stripe.PaymentIntentStatusCanceled:
		order.State = GatewayStateFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined attempt leaves the intent open for another payment method.
		if intent.LastPaymentError != nil {
			order.FailureText = intent.LastPaymentError.Msg
		}
	}
	return order
}
