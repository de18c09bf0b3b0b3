// Package orders is the order ledger: it owns every order and payment status transition.
package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/inventory"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/tracking"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/lock"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryManager holds stock for orders inside the caller's transaction.
type InventoryManager interface {
	Reserve(ctx context.Context, db *gorm.DB, orderID uuid.UUID, lines []inventory.Line) error
	Release(ctx context.Context, db *gorm.DB, orderID uuid.UUID) error
	Commit(ctx context.Context, db *gorm.DB, orderID uuid.UUID) error
}

// Refunder returns captured money through the payment gateway.
type Refunder interface {
	Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error)
}

// TrackingAppender records one tracking entry per transition.
type TrackingAppender interface {
	Append(ctx context.Context, input tracking.AppendInput) (*models.TrackingEvent, error)
}

// EventEmitter stages an outbox event inside the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier queues a customer notification without blocking.
type Notifier interface {
	Dispatch(ctx context.Context, msg notifications.Message) bool
}

// Service exposes the order ledger operations.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	AttachGatewayOrder(ctx context.Context, orderID uuid.UUID, gatewayOrderID string) (*models.Order, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	MarkPaymentCompleted(ctx context.Context, v payments.Verification) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, v payments.Verification) (*models.Order, error)
	RefundCancelled(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor authz.Actor) (*models.Order, error)
	List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error)
}

// ServiceParams wires the ledger's collaborators.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Inventory InventoryManager
	Refunder  Refunder
	Tracking  TrackingAppender
	Notifier  Notifier
	// Events is optional; without it transitions are not published.
	Events  EventEmitter
	Locker  lock.Locker
	Pricing PricingPolicy
	Logger  *logger.Logger
	Metrics *metrics.OrderMetrics
	Now     func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory InventoryManager
	refunder  Refunder
	tracking  TrackingAppender
	notifier  Notifier
	events    EventEmitter
	locker    lock.Locker
	pricing   PricingPolicy
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

// CreateOrderInput carries a validated cart snapshot and checkout details.
type CreateOrderInput struct {
	Actor           authz.Actor
	Snapshot        *cart.Snapshot
	ShippingAddress types.Address
	PaymentMethod   enums.PaymentMethod
}

// AdvanceInput moves an order one step along the fulfillment path.
type AdvanceInput struct {
	OrderID  uuid.UUID
	Actor    authz.Actor
	Next     enums.OrderStatus
	Location *string
	Note     *string
}

// CancelInput cancels an order that has not left the early fulfillment states.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   authz.Actor
	Reason  string
}

// ListParams pages through the orders visible to an actor.
type ListParams struct {
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}

// ListResult is one page of orders.
type ListResult struct {
	Items  []models.Order
	Cursor string
}

// NewService builds the order ledger with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, errors.New("orders repository required")
	case p.Tx == nil:
		return nil, errors.New("transaction runner required")
	case p.Inventory == nil:
		return nil, errors.New("inventory manager required")
	case p.Refunder == nil:
		return nil, errors.New("refunder required")
	case p.Tracking == nil:
		return nil, errors.New("tracking log required")
	case p.Notifier == nil:
		return nil, errors.New("notifier required")
	case p.Locker == nil:
		return nil, errors.New("order locker required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		inventory: p.Inventory,
		refunder:  p.Refunder,
		tracking:  p.Tracking,
		notifier:  p.Notifier,
		events:    p.Events,
		locker:    p.Locker,
		pricing:   p.Pricing,
		logg:      p.Logger,
		metrics:   p.Metrics,
		now:       now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := s.createOrder(ctx, input)
	s.observe("create", err)
	return order, err
}

func (s *service) createOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := authz.Authorize(input.Actor, authz.OpCheckout, authz.Resource{OwnerID: input.Actor.UserID}); err != nil {
		return nil, err
	}
	snap := input.Snapshot
	if snap == nil || len(snap.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	if snap.UserID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot belongs to another user")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	priced := s.pricing.Price(snap.SubtotalMinor())
	now := s.now().UTC()

	items := make([]models.OrderLineItem, 0, len(snap.Lines))
	lines := make([]inventory.Line, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		items = append(items, models.OrderLineItem{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceMinor: line.UnitPriceMinor,
			Qty:            line.Qty,
			TotalMinor:     line.TotalMinor,
		})
		lines = append(lines, inventory.Line{ProductID: line.ProductID, Qty: line.Qty})
	}

	order := &models.Order{
		UserID:          input.Actor.UserID,
		ShopID:          snap.ShopID,
		Currency:        snap.Currency,
		SubtotalMinor:   priced.SubtotalMinor,
		TaxMinor:        priced.TaxMinor,
		ShippingMinor:   priced.ShippingMinor,
		TotalMinor:      priced.TotalMinor,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		Status:          enums.OrderStatusProcessing,
		PaymentStatus:   enums.PaymentStatusPending,
		Version:         1,
		StatusChangedAt: now,
		Items:           items,
		Payment: &models.PaymentRecord{
			AmountMinor: priced.TotalMinor,
			Currency:    snap.Currency,
			Status:      enums.PaymentStatusPending,
		},
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := s.inventory.Reserve(ctx, tx, order.ID, lines); err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, "create", order, "", "", &input.Actor)
	})
	if err != nil {
		return nil, pkgerrors.FromDB(err, "create order")
	}

	s.logTransition(ctx, "create", order.ID, "", string(enums.OrderStatusProcessing), input.Actor)
	s.afterTransition(ctx, order, effect{
		event:        enums.TrackingOrderPlaced,
		actor:        &input.Actor,
		notification: enums.NotificationOrderPlaced,
	})
	return s.repo.FindByID(ctx, order.ID)
}

// AttachGatewayOrder stores the gateway order reference. Repeating it with the
// same id is a no-op; a different id is accepted only while payment is pending.
func (s *service) AttachGatewayOrder(ctx context.Context, orderID uuid.UUID, gatewayOrderID string) (*models.Order, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required")
	}
	return s.withOrderLock(ctx, orderID, func() (*models.Order, error) {
		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.GatewayOrderID != nil && *order.GatewayOrderID == gatewayOrderID {
			return order, nil
		}
		if order.PaymentStatus != enums.PaymentStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled").
				WithDetails(map[string]any{"payment_status": string(order.PaymentStatus)})
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateGuarded(ctx, order.ID, order.Version, map[string]any{
				"gateway_order_id": gatewayOrderID,
			}); err != nil {
				return err
			}
			return repo.UpdatePayment(ctx, order.ID, map[string]any{"gateway_order_id": gatewayOrderID})
		})
		if err != nil {
			return nil, err
		}
		return s.repo.FindByID(ctx, order.ID)
	})
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor authz.Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, authz.OpView, resourceOf(order)); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor authz.Actor, params ListParams) (*ListResult, error) {
	filter := ListFilter{Status: params.Status, Limit: params.Limit}
	switch actor.Role {
	case enums.RoleCustomer:
		userID := actor.UserID
		filter.UserID = &userID
	case enums.RoleVendor:
		if actor.ShopID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor has no shop")
		}
		filter.ShopID = actor.ShopID
	case enums.RoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operation not permitted")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		filter.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list orders")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

// withOrderLock runs fn while holding the order's mutual-exclusion scope.
func (s *service) withOrderLock(ctx context.Context, orderID uuid.UUID, fn func() (*models.Order, error)) (*models.Order, error) {
	release, err := s.locker.Acquire(ctx, orderID.String())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrentUpdate, err, "order is being modified")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	defer release()
	return fn()
}

func resourceOf(order *models.Order) authz.Resource {
	return authz.Resource{OwnerID: order.UserID, ShopID: order.ShopID, Status: order.Status}
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid order transition").
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func invalidPaymentTransition(from, to enums.PaymentStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid payment transition").
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}
