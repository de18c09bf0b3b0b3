// Package checkout turns a customer's cart into an order with a payable gateway order.
package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type ledger interface {
	CreateOrder(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error)
	AttachGatewayOrder(ctx context.Context, orderID uuid.UUID, gatewayOrderID string) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor authz.Actor) (*models.Order, error)
}

type gatewayOrders interface {
	CreateGatewayOrder(ctx context.Context, amountMinor int64, currency, receiptID string) (string, error)
}

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, input Input) (*Result, error)
	RetryPaymentOrder(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*Result, error)
}

// Input captures what the customer supplies at checkout.
type Input struct {
	Actor           authz.Actor
	ShippingAddress types.Address
	PaymentMethod   enums.PaymentMethod
}

// Result is the created order and the gateway order the client pays against.
type Result struct {
	Order          *models.Order
	GatewayOrderID string
}

type service struct {
	cartRepo cart.Repository
	builder  *cart.Builder
	ledger   ledger
	gateway  gatewayOrders
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(cartRepo cart.Repository, ledger ledger, gateway gatewayOrders, logg *logger.Logger) (Service, error) {
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway adapter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		cartRepo: cartRepo,
		builder:  cart.NewBuilder(),
		ledger:   ledger,
		gateway:  gateway,
		logg:     logg,
	}, nil
}

// Checkout snapshots the cart, creates the order and opens its gateway order.
// When the gateway is down the order remains payment-pending and the error
// carries its id so the client can retry the payment order.
func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if err := authz.Authorize(input.Actor, authz.OpCheckout, authz.Resource{OwnerID: input.Actor.UserID}); err != nil {
		return nil, err
	}

	items, err := s.cartRepo.ListItems(ctx, input.Actor.UserID)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "load cart")
	}
	snap, err := s.builder.Build(input.Actor.UserID, items)
	if err != nil {
		return nil, err
	}

	order, err := s.ledger.CreateOrder(ctx, orders.CreateOrderInput{
		Actor:           input.Actor,
		Snapshot:        snap,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if err := s.cartRepo.Clear(ctx, input.Actor.UserID); err != nil {
		s.logg.Error(logCtx, "checkout.cart_clear_failed", err)
	}

	return s.openGatewayOrder(ctx, order)
}

// RetryPaymentOrder returns the order's gateway order, creating it when the
// first attempt at checkout did not reach the gateway.
func (s *service) RetryPaymentOrder(ctx context.Context, actor authz.Actor, orderID uuid.UUID) (*Result, error) {
	order, err := s.ledger.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, authz.OpRetryPayment, authz.Resource{OwnerID: order.UserID, ShopID: order.ShopID, Status: order.Status}); err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled || order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": string(order.Status), "payment_status": string(order.PaymentStatus)})
	}
	if order.GatewayOrderID != nil && *order.GatewayOrderID != "" {
		return &Result{Order: order, GatewayOrderID: *order.GatewayOrderID}, nil
	}
	return s.openGatewayOrder(ctx, order)
}

func (s *service) openGatewayOrder(ctx context.Context, order *models.Order) (*Result, error) {
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	gatewayOrderID, err := s.gateway.CreateGatewayOrder(ctx, order.TotalMinor, order.Currency, order.ID.String())
	if err != nil {
		s.logg.Error(logCtx, "checkout.gateway_order_failed", err)
		if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeGatewayUnavailable {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "open gateway order").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}

	updated, err := s.ledger.AttachGatewayOrder(ctx, order.ID, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(logCtx, "gateway_order_id", gatewayOrderID), "checkout.gateway_order_opened")
	return &Result{Order: updated, GatewayOrderID: gatewayOrderID}, nil
}
