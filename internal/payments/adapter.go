package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/money"
)

const defaultGatewayTimeout = 10 * time.Second

// Callback is the payload a client relays after completing payment with the gateway.
type Callback struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// RefundRequest identifies the payment to refund. OrderID scopes the idempotency key.
type RefundRequest struct {
	OrderID          uuid.UUID
	GatewayPaymentID string
	AmountMinor      int64
	Currency         string
}

// RefundResult is the refund recorded for a payment.
type RefundResult struct {
	RefundID    string
	AmountMinor int64
	Replayed    bool
}

// AdapterParams wires the adapter's collaborators.
type AdapterParams struct {
	Gateway  GatewayClient
	Verifier *SignatureVerifier
	Refunds  RefundStore
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
	Timeout  time.Duration
}

// Adapter is the only component that talks to the gateway or vouches for payments.
type Adapter struct {
	gateway  GatewayClient
	verifier *SignatureVerifier
	refunds  RefundStore
	logg     *logger.Logger
	metrics  *metrics.OrderMetrics
	timeout  time.Duration
	flights  singleflight.Group
}

// NewAdapter validates the collaborators and returns an Adapter.
func NewAdapter(p AdapterParams) (*Adapter, error) {
	if p.Gateway == nil {
		return nil, errors.New("gateway client required")
	}
	if p.Verifier == nil {
		return nil, errors.New("signature verifier required")
	}
	if p.Refunds == nil {
		return nil, errors.New("refund store required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Adapter{
		gateway:  p.Gateway,
		verifier: p.Verifier,
		refunds:  p.Refunds,
		logg:     p.Logger,
		metrics:  p.Metrics,
		timeout:  timeout,
	}, nil
}

// CreateGatewayOrder opens a gateway order for the amount and returns its id.
// Gateway failures surface as GATEWAY_UNAVAILABLE.
func (a *Adapter) CreateGatewayOrder(ctx context.Context, amountMinor int64, currency, receiptID string) (string, error) {
	if amountMinor <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !money.ValidCurrency(currency) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	if strings.TrimSpace(receiptID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "receipt id is required")
	}

	var order GatewayOrder
	err := a.call(ctx, "create_order", func(callCtx context.Context) error {
		var err error
		order, err = a.gateway.CreateOrder(callCtx, CreateOrderRequest{
			AmountMinor:    amountMinor,
			Currency:       currency,
			Receipt:        receiptID,
			IdempotencyKey: "gateway-order-" + receiptID,
		})
		return err
	})
	if err != nil {
		a.logg.Error(a.logg.WithField(ctx, "receipt", receiptID), "payment.gateway_order_failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "create gateway order")
	}
	if order.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway returned no order id")
	}
	return order.ID, nil
}

// VerifyCallback reports whether the callback signature is authentic.
func (a *Adapter) VerifyCallback(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return a.verifier.Verify(gatewayOrderID, gatewayPaymentID, signature)
}

// VerifyPayment checks a completion callback and, when authentic, returns the
// verification the order ledger needs. Mismatches are logged as security events.
func (a *Adapter) VerifyPayment(ctx context.Context, cb Callback) (Verification, bool) {
	if !a.VerifyCallback(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		a.metrics.IncSignatureMismatch()
		logCtx := a.logg.WithFields(ctx, map[string]any{
			"security_event":     true,
			"gateway_order_id":   cb.GatewayOrderID,
			"gateway_payment_id": cb.GatewayPaymentID,
		})
		a.logg.Warn(logCtx, "payment.signature_mismatch")
		return Verification{}, false
	}
	return Verification{
		gatewayOrderID:   cb.GatewayOrderID,
		gatewayPaymentID: cb.GatewayPaymentID,
		signature:        cb.Signature,
		outcome:          OutcomeCompleted,
		source:           SourceCallback,
	}, true
}

// ConfirmWithGateway asks the gateway for the order's state. The bool is false
// while the gateway still reports the payment as pending.
func (a *Adapter) ConfirmWithGateway(ctx context.Context, gatewayOrderID string) (Verification, bool, error) {
	if strings.TrimSpace(gatewayOrderID) == "" {
		return Verification{}, false, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required")
	}

	var order GatewayOrder
	err := a.call(ctx, "lookup_order", func(callCtx context.Context) error {
		var err error
		order, err = a.gateway.LookupOrder(callCtx, gatewayOrderID)
		return err
	})
	if err != nil {
		return Verification{}, false, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "lookup gateway order")
	}

	switch order.State {
	case GatewayStatePaid:
		if order.PaymentID == "" {
			return Verification{}, false, nil
		}
		return Verification{
			gatewayOrderID:   gatewayOrderID,
			gatewayPaymentID: order.PaymentID,
			outcome:          OutcomeCompleted,
			source:           SourceGateway,
		}, true, nil
	case GatewayStateFailed:
		reason := order.FailureText
		if reason == "" {
			reason = "payment failed at gateway"
		}
		return Verification{
			gatewayOrderID:   gatewayOrderID,
			gatewayPaymentID: order.PaymentID,
			outcome:          OutcomeFailed,
			failureReason:    reason,
			source:           SourceGateway,
		}, true, nil
	default:
		return Verification{}, false, nil
	}
}

// RefundKey is the idempotency key used for an order's refund.
func RefundKey(orderID uuid.UUID) string {
	return "refund-" + orderID.String()
}

// Refund refunds a captured payment at most once per order. Concurrent callers
// share one gateway call and later callers replay the stored result.
func (a *Adapter) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.OrderID == uuid.Nil {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if strings.TrimSpace(req.GatewayPaymentID) == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id is required")
	}
	if req.AmountMinor <= 0 {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	key := RefundKey(req.OrderID)
	v, err, _ := a.flights.Do(req.GatewayPaymentID+"|"+key, func() (any, error) {
		return a.refundOnce(ctx, req, key)
	})
	if err != nil {
		return RefundResult{}, err
	}
	result := v.(RefundResult)
	if result.AmountMinor != req.AmountMinor {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund already issued with a different amount").
			WithDetails(map[string]any{"refunded_minor": result.AmountMinor})
	}
	return result, nil
}

func (a *Adapter) refundOnce(ctx context.Context, req RefundRequest, key string) (RefundResult, error) {
	existing, err := a.refunds.Find(ctx, req.GatewayPaymentID, key)
	if err != nil {
		return RefundResult{}, pkgerrors.FromDB(err, "load refund")
	}
	if existing != nil {
		return RefundResult{RefundID: existing.GatewayRefundID, AmountMinor: existing.AmountMinor, Replayed: true}, nil
	}

	var outcome RefundOutcome
	err = a.call(ctx, "refund", func(callCtx context.Context) error {
		var err error
		outcome, err = a.gateway.Refund(callCtx, RefundCall{
			PaymentID:      req.GatewayPaymentID,
			AmountMinor:    req.AmountMinor,
			Currency:       req.Currency,
			IdempotencyKey: key,
		})
		return err
	})
	if err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "issue refund")
	}
	if !outcome.Succeeded {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("gateway rejected refund %s", outcome.ID))
	}
	amount := outcome.AmountMinor
	if amount == 0 {
		amount = req.AmountMinor
	}

	record := &models.PaymentRefund{
		OrderID:          req.OrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		IdempotencyKey:   key,
		GatewayRefundID:  outcome.ID,
		AmountMinor:      amount,
		Currency:         req.Currency,
		Status:           enums.RefundStatusSucceeded,
	}
	if err := a.refunds.Save(ctx, record); err != nil {
		a.logg.Error(a.logg.WithOrderID(ctx, req.OrderID.String()), "payment.refund_record_failed", err)
	}
	return RefundResult{RefundID: outcome.ID, AmountMinor: amount}, nil
}

func (a *Adapter) call(ctx context.Context, name string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	a.metrics.ObserveGatewayCall(name, outcome, time.Since(start))
	return err
}
