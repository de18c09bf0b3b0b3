// Package payments talks to the payment gateway and vouches for payment outcomes.
package payments

import "context"

// GatewayState is the gateway's view of a gateway order.
type GatewayState string

const (
	GatewayStatePending GatewayState = "pending"
	GatewayStatePaid    GatewayState = "paid"
	GatewayStateFailed  GatewayState = "failed"
)

// CreateOrderRequest opens a gateway order for a ledger order.
type CreateOrderRequest struct {
	AmountMinor    int64
	Currency       string
	Receipt        string
	IdempotencyKey string
}

// GatewayOrder is the gateway's record of a payable order.
type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	State       GatewayState
	PaymentID   string
	FailureText string
}

// RefundCall asks the gateway to refund a captured payment.
type RefundCall struct {
	PaymentID      string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// RefundOutcome is what the gateway returned for a refund.
type RefundOutcome struct {
	ID          string
	AmountMinor int64
	Succeeded   bool
}

// GatewayClient is the narrow surface of the payment gateway the adapter needs.
type GatewayClient interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	LookupOrder(ctx context.Context, gatewayOrderID string) (GatewayOrder, error)
	Refund(ctx context.Context, call RefundCall) (RefundOutcome, error)
}
