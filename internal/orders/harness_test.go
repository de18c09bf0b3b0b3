package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/inventory"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/tracking"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/lock"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

const callbackSecret = "orders-test-secret"

type stubGateway struct {
	mu          sync.Mutex
	lookup      map[string]payments.GatewayOrder
	refundErr   error
	refundCalls atomic.Int32
}

func (g *stubGateway) CreateOrder(_ context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	return payments.GatewayOrder{ID: "gw_" + req.Receipt, AmountMinor: req.AmountMinor, Currency: req.Currency, State: payments.GatewayStatePending}, nil
}

func (g *stubGateway) LookupOrder(_ context.Context, id string) (payments.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if order, ok := g.lookup[id]; ok {
		return order, nil
	}
	return payments.GatewayOrder{ID: id, State: payments.GatewayStatePending}, nil
}

func (g *stubGateway) Refund(_ context.Context, call payments.RefundCall) (payments.RefundOutcome, error) {
	g.refundCalls.Add(1)
	g.mu.Lock()
	err := g.refundErr
	g.mu.Unlock()
	if err != nil {
		return payments.RefundOutcome{}, err
	}
	return payments.RefundOutcome{ID: "rf_" + call.IdempotencyKey, AmountMinor: call.AmountMinor, Succeeded: true}, nil
}

func (g *stubGateway) failRefunds(err error) {
	g.mu.Lock()
	g.refundErr = err
	g.mu.Unlock()
}

func (g *stubGateway) setLookup(order payments.GatewayOrder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lookup == nil {
		g.lookup = map[string]payments.GatewayOrder{}
	}
	g.lookup[order.ID] = order
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifications.Message
}

func (r *recordingNotifier) Dispatch(_ context.Context, msg notifications.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recordingNotifier) count(kind enums.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msg := range r.msgs {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

type harness struct {
	db       *gorm.DB
	svc      Service
	repo     Repository
	adapter  *payments.Adapter
	verifier *payments.SignatureVerifier
	gateway  *stubGateway
	notes    *recordingNotifier
	tracking *tracking.Log
	shopID   uuid.UUID
	customer authz.Actor
	vendor   authz.Actor
	admin    authz.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})

	verifier, err := payments.NewSignatureVerifier(callbackSecret)
	require.NoError(t, err)
	gw := &stubGateway{}
	adapter, err := payments.NewAdapter(payments.AdapterParams{
		Gateway:  gw,
		Verifier: verifier,
		Refunds:  payments.NewRefundStore(conn),
		Logger:   logg,
		Timeout:  time.Second,
	})
	require.NoError(t, err)

	repo := NewRepository(conn)
	trackingLog := tracking.NewLog(conn)
	notes := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Tx:        db.Wrap(conn),
		Inventory: inventory.NewManager(),
		Refunder:  adapter,
		Tracking:  trackingLog,
		Notifier:  notes,
		Events:    outbox.NewService(outbox.NewRepository(conn), logg),
		Locker:    lock.NewLocal(),
		Pricing: PricingPolicy{
			TaxRate:          decimal.RequireFromString("0.10"),
			ShippingFeeMinor: 2000,
		},
		Logger: logg,
	})
	require.NoError(t, err)

	shopID := uuid.New()
	return &harness{
		db:       conn,
		svc:      svc,
		repo:     repo,
		adapter:  adapter,
		verifier: verifier,
		gateway:  gw,
		notes:    notes,
		tracking: trackingLog,
		shopID:   shopID,
		customer: authz.Actor{UserID: uuid.New(), Role: enums.RoleCustomer},
		vendor:   authz.Actor{UserID: uuid.New(), Role: enums.RoleVendor, ShopID: &shopID},
		admin:    authz.Actor{UserID: uuid.New(), Role: enums.RoleAdmin},
	}
}

func (h *harness) seedProduct(t *testing.T, title string, priceMinor int64, available int) models.Product {
	t.Helper()
	product := models.Product{ShopID: h.shopID, Title: title, PriceMinor: priceMinor, Currency: "INR", IsActive: true}
	require.NoError(t, h.db.Create(&product).Error)
	require.NoError(t, h.db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: available}).Error)
	return product
}

func (h *harness) stock(t *testing.T, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, h.db.First(&item, "product_id = ?", productID).Error)
	return item
}

func snapshotOf(userID, shopID uuid.UUID, lines ...cart.Line) *cart.Snapshot {
	for i := range lines {
		lines[i].TotalMinor = lines[i].UnitPriceMinor * int64(lines[i].Qty)
	}
	return &cart.Snapshot{UserID: userID, ShopID: shopID, Currency: "INR", Lines: lines}
}

func lineFor(p models.Product, qty int) cart.Line {
	return cart.Line{ProductID: p.ID, Name: p.Title, UnitPriceMinor: p.PriceMinor, Qty: qty}
}

func testAddress() types.Address {
	return types.Address{
		Name:       "Asha",
		Phone:      "9999999999",
		Line1:      "12 Market Road",
		City:       "Pune",
		State:      "MH",
		PostalCode: "411001",
		Country:    "IN",
	}
}

// place creates an order for one unit of a fresh product.
func (h *harness) place(t *testing.T) (*models.Order, models.Product) {
	t.Helper()
	product := h.seedProduct(t, "Tea", 10000, 5)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		Actor:           h.customer,
		Snapshot:        snapshotOf(h.customer.UserID, h.shopID, lineFor(product, 1)),
		ShippingAddress: testAddress(),
		PaymentMethod:   enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	return order, product
}

func (h *harness) attach(t *testing.T, order *models.Order) string {
	t.Helper()
	gatewayOrderID := "gw_" + order.ID.String()
	_, err := h.svc.AttachGatewayOrder(context.Background(), order.ID, gatewayOrderID)
	require.NoError(t, err)
	return gatewayOrderID
}

func (h *harness) verified(t *testing.T, gatewayOrderID, paymentID string) payments.Verification {
	t.Helper()
	v, ok := h.adapter.VerifyPayment(context.Background(), payments.Callback{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        h.verifier.Sign(gatewayOrderID, paymentID),
	})
	require.True(t, ok)
	return v
}

// pay attaches a gateway order and records a verified capture.
func (h *harness) pay(t *testing.T, order *models.Order) *models.Order {
	t.Helper()
	gatewayOrderID := h.attach(t, order)
	paid, err := h.svc.MarkPaymentCompleted(context.Background(), h.verified(t, gatewayOrderID, "pi_"+order.ID.String()[:8]))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, paid.PaymentStatus)
	return paid
}

func (h *harness) advanceTo(t *testing.T, orderID uuid.UUID, target enums.OrderStatus) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := h.repo.FindByID(ctx, orderID)
	require.NoError(t, err)
	for order.Status != target {
		next, ok := NextStatus(order.Status)
		require.True(t, ok, "no successor for %s", order.Status)
		order, err = h.svc.Advance(ctx, AdvanceInput{OrderID: orderID, Actor: h.vendor, Next: next})
		require.NoError(t, err)
	}
	return order
}

func (h *harness) events(t *testing.T, orderID uuid.UUID, kind enums.TrackingEventType) int {
	t.Helper()
	rows, err := h.tracking.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	n := 0
	for _, row := range rows {
		if row.Type == kind {
			n++
		}
	}
	return n
}

// transitions decodes the order_status_changed rows staged for orderID in commit order.
func (h *harness) transitions(t *testing.T, orderID uuid.UUID) []payloads.OrderStatusChangedEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.db.
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderStatusChanged, orderID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error)
	out := make([]payloads.OrderStatusChangedEvent, 0, len(rows))
	for _, row := range rows {
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		var event payloads.OrderStatusChangedEvent
		require.NoError(t, json.Unmarshal(envelope.Data, &event))
		out = append(out, event)
	}
	return out
}

var errGatewayDown = errors.New("gateway down")
