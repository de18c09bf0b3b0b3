package checkout

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type stubLedger struct {
	created  []orders.CreateOrderInput
	attached map[uuid.UUID]string
	orders   map[uuid.UUID]*models.Order
	err      error
}

func newStubLedger() *stubLedger {
	return &stubLedger{attached: map[uuid.UUID]string{}, orders: map[uuid.UUID]*models.Order{}}
}

func (l *stubLedger) CreateOrder(_ context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.created = append(l.created, input)
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        input.Actor.UserID,
		ShopID:        input.Snapshot.ShopID,
		Currency:      input.Snapshot.Currency,
		SubtotalMinor: input.Snapshot.SubtotalMinor(),
		TotalMinor:    input.Snapshot.SubtotalMinor(),
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPending,
	}
	l.orders[order.ID] = order
	return order, nil
}

func (l *stubLedger) AttachGatewayOrder(_ context.Context, orderID uuid.UUID, gatewayOrderID string) (*models.Order, error) {
	order, ok := l.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	l.attached[orderID] = gatewayOrderID
	id := gatewayOrderID
	order.GatewayOrderID = &id
	return order, nil
}

func (l *stubLedger) Get(_ context.Context, orderID uuid.UUID, actor authz.Actor) (*models.Order, error) {
	order, ok := l.orders[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if actor.Role == enums.RoleCustomer && actor.UserID != order.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operation not permitted")
	}
	return order, nil
}

type stubGateway struct {
	calls int
	err   error
}

func (g *stubGateway) CreateGatewayOrder(_ context.Context, amountMinor int64, currency, receiptID string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return "gw_" + receiptID, nil
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	ledger   *stubLedger
	gateway  *stubGateway
	customer authz.Actor
	shopID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	ledger := newStubLedger()
	gateway := &stubGateway{}
	svc, err := NewService(cart.NewRepository(conn), ledger, gateway, logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard}))
	require.NoError(t, err)
	return &fixture{
		db:       conn,
		svc:      svc,
		ledger:   ledger,
		gateway:  gateway,
		customer: authz.Actor{UserID: uuid.New(), Role: enums.RoleCustomer},
		shopID:   uuid.New(),
	}
}

func (f *fixture) addToCart(t *testing.T, priceMinor int64, qty int) models.Product {
	t.Helper()
	product := models.Product{ShopID: f.shopID, Title: "Kettle", PriceMinor: priceMinor, Currency: "INR", IsActive: true}
	require.NoError(t, f.db.Create(&product).Error)
	require.NoError(t, f.db.Create(&models.CartItem{UserID: f.customer.UserID, ProductID: product.ID, Qty: qty}).Error)
	return product
}

func (f *fixture) cartSize(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("user_id = ?", f.customer.UserID).Count(&n).Error)
	return n
}

func checkoutInput(actor authz.Actor) Input {
	return Input{
		Actor:           actor,
		ShippingAddress: types.Address{Name: "R", Phone: "1", Line1: "1 Lane", City: "Goa", State: "GA", PostalCode: "403001"},
		PaymentMethod:   enums.PaymentMethodCard,
	}
}

func TestCheckoutCreatesOrderAndGatewayOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	product := f.addToCart(t, 1500, 2)

	result, err := f.svc.Checkout(context.Background(), checkoutInput(f.customer))
	require.NoError(t, err)
	require.Equal(t, "gw_"+result.Order.ID.String(), result.GatewayOrderID)
	require.Equal(t, result.GatewayOrderID, f.ledger.attached[result.Order.ID])

	require.Len(t, f.ledger.created, 1)
	snap := f.ledger.created[0].Snapshot
	require.Equal(t, f.shopID, snap.ShopID)
	require.Len(t, snap.Lines, 1)
	require.Equal(t, product.ID, snap.Lines[0].ProductID)
	require.Equal(t, int64(3000), snap.Lines[0].TotalMinor)
	require.Zero(t, f.cartSize(t))
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), checkoutInput(f.customer))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	require.Empty(t, f.ledger.created)
	require.Zero(t, f.gateway.calls)
}

func TestCheckoutGatewayFailureKeepsOrderPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addToCart(t, 1500, 1)
	f.gateway.err = pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, errors.New("timeout"), "create gateway order")

	_, err := f.svc.Checkout(context.Background(), checkoutInput(f.customer))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)

	require.Len(t, f.ledger.created, 1)
	var orderID uuid.UUID
	for id := range f.ledger.orders {
		orderID = id
	}
	require.Equal(t, orderID.String(), details["order_id"])
	require.Empty(t, f.ledger.attached)

	f.gateway.err = nil
	retried, err := f.svc.RetryPaymentOrder(context.Background(), f.customer, orderID)
	require.NoError(t, err)
	require.Equal(t, "gw_"+orderID.String(), retried.GatewayOrderID)

	again, err := f.svc.RetryPaymentOrder(context.Background(), f.customer, orderID)
	require.NoError(t, err)
	require.Equal(t, retried.GatewayOrderID, again.GatewayOrderID)
	require.Equal(t, 2, f.gateway.calls)
}

func TestRetryPaymentOrderRejectsSettledOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addToCart(t, 1500, 1)
	result, err := f.svc.Checkout(context.Background(), checkoutInput(f.customer))
	require.NoError(t, err)

	f.ledger.orders[result.Order.ID].PaymentStatus = enums.PaymentStatusCompleted
	_, err = f.svc.RetryPaymentOrder(context.Background(), f.customer, result.Order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	vendorShop := f.shopID
	vendor := authz.Actor{UserID: uuid.New(), Role: enums.RoleVendor, ShopID: &vendorShop}
	f.ledger.orders[result.Order.ID].PaymentStatus = enums.PaymentStatusPending
	_, err = f.svc.RetryPaymentOrder(context.Background(), vendor, result.Order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
