package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	internalpayments "github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const testSecret = "callback-test-secret"

type lookupGateway struct {
	order internalpayments.GatewayOrder
	err   error
}

func (g lookupGateway) CreateOrder(context.Context, internalpayments.CreateOrderRequest) (internalpayments.GatewayOrder, error) {
	return internalpayments.GatewayOrder{}, errors.New("not used")
}

func (g lookupGateway) LookupOrder(context.Context, string) (internalpayments.GatewayOrder, error) {
	return g.order, g.err
}

func (g lookupGateway) Refund(context.Context, internalpayments.RefundCall) (internalpayments.RefundOutcome, error) {
	return internalpayments.RefundOutcome{}, errors.New("not used")
}

type noRefunds struct{}

func (noRefunds) Find(context.Context, string, string) (*models.PaymentRefund, error) { return nil, nil }
func (noRefunds) Save(context.Context, *models.PaymentRefund) error { return nil }

type memoryGuard struct {
	seen    map[string]bool
	deleted int
}

func (g *memoryGuard) ProcessOnce(ctx context.Context, consumer, id string, fn func(context.Context) error) (bool, error) {
	key := consumer + ":" + id
	if g.seen[key] {
		return true, nil
	}
	g.seen[key] = true
	if err := fn(ctx); err != nil {
		delete(g.seen, key)
		g.deleted++
		return false, err
	}
	return false, nil
}

type recordingSettler struct {
	completed []internalpayments.Verification
	failed    []internalpayments.Verification
	err       error
}

func (s *recordingSettler) MarkPaymentCompleted(_ context.Context, v internalpayments.Verification) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.completed = append(s.completed, v)
	return &models.Order{ID: uuid.New(), PaymentStatus: enums.PaymentStatusCompleted}, nil
}

func (s *recordingSettler) MarkPaymentFailed(_ context.Context, v internalpayments.Verification) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.failed = append(s.failed, v)
	return &models.Order{ID: uuid.New(), PaymentStatus: enums.PaymentStatusFailed}, nil
}

func newAdapter(t *testing.T, gateway internalpayments.GatewayClient) (*internalpayments.Adapter, *internalpayments.SignatureVerifier) {
	t.Helper()
	verifier, err := internalpayments.NewSignatureVerifier(testSecret)
	require.NoError(t, err)
	adapter, err := internalpayments.NewAdapter(internalpayments.AdapterParams{
		Gateway:  gateway,
		Verifier: verifier,
		Refunds:  noRefunds{},
		Logger:   logger.New(logger.Options{ServiceName: "payments-controller-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return adapter, verifier
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func callbackBody(orderID, paymentID, signature string) string {
	raw, _ := json.Marshal(map[string]string{
		"gateway_order_id":   orderID,
		"gateway_payment_id": paymentID,
		"signature":          signature,
	})
	return string(raw)
}

func TestCallbackAppliesSignedPayment(t *testing.T) {
	adapter, verifier := newAdapter(t, lookupGateway{})
	settler := &recordingSettler{}
	guard := &memoryGuard{seen: map[string]bool{}}
	h := Callback(adapter, settler, guard, nil)

	rec := post(h, callbackBody("gw_1", "pay_1", verifier.Sign("gw_1", "pay_1")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, settler.completed, 1)
	require.Equal(t, "gw_1", settler.completed[0].GatewayOrderID())
	require.Equal(t, "pay_1", settler.completed[0].GatewayPaymentID())
	require.Equal(t, internalpayments.SourceCallback, settler.completed[0].Source())
}

func TestCallbackRejectsTamperedSignature(t *testing.T) {
	adapter, verifier := newAdapter(t, lookupGateway{})
	settler := &recordingSettler{}
	guard := &memoryGuard{seen: map[string]bool{}}
	h := Callback(adapter, settler, guard, nil)

	sig := []byte(verifier.Sign("gw_1", "pay_1"))
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	rec := post(h, callbackBody("gw_1", "pay_1", string(sig)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, settler.completed)
	require.Empty(t, guard.seen, "a forged callback must not claim the idempotency key")
}

func TestCallbackRejectsSignatureForOtherPayment(t *testing.T) {
	adapter, verifier := newAdapter(t, lookupGateway{})
	settler := &recordingSettler{}
	h := Callback(adapter, settler, &memoryGuard{seen: map[string]bool{}}, nil)

	rec := post(h, callbackBody("gw_1", "pay_2", verifier.Sign("gw_1", "pay_1")))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, settler.completed)
}

func TestCallbackDuplicateIsAbsorbed(t *testing.T) {
	adapter, verifier := newAdapter(t, lookupGateway{})
	settler := &recordingSettler{}
	guard := &memoryGuard{seen: map[string]bool{}}
	h := Callback(adapter, settler, guard, nil)
	body := callbackBody("gw_1", "pay_1", verifier.Sign("gw_1", "pay_1"))

	require.Equal(t, http.StatusOK, post(h, body).Code)
	rec := post(h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"duplicate":true`)
	require.Len(t, settler.completed, 1)
}

func TestCallbackReleasesGuardWhenLedgerFails(t *testing.T) {
	adapter, verifier := newAdapter(t, lookupGateway{})
	settler := &recordingSettler{err: pkgerrors.New(pkgerrors.CodeConcurrentUpdate, "order was modified concurrently")}
	guard := &memoryGuard{seen: map[string]bool{}}
	h := Callback(adapter, settler, guard, nil)

	rec := post(h, callbackBody("gw_1", "pay_1", verifier.Sign("gw_1", "pay_1")))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 1, guard.deleted)
	require.Empty(t, guard.seen)
}

func TestCallbackRequiresAllFields(t *testing.T) {
	adapter, _ := newAdapter(t, lookupGateway{})
	h := Callback(adapter, &recordingSettler{}, nil, nil)
	rec := post(h, `{"gateway_order_id":"gw_1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailureMarksFailedFromGateway(t *testing.T) {
	adapter, _ := newAdapter(t, lookupGateway{order: internalpayments.GatewayOrder{
		ID:          "gw_1",
		State:       internalpayments.GatewayStateFailed,
		FailureText: "card declined",
	}})
	settler := &recordingSettler{}
	rec := post(Failure(adapter, settler, nil), `{"gateway_order_id":"gw_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, settler.failed, 1)
	require.Equal(t, "card declined", settler.failed[0].FailureReason())
	require.Empty(t, settler.completed)
}

func TestFailureReportIgnoredWhenGatewaySaysPaid(t *testing.T) {
	adapter, _ := newAdapter(t, lookupGateway{order: internalpayments.GatewayOrder{
		ID:        "gw_1",
		State:     internalpayments.GatewayStatePaid,
		PaymentID: "pay_9",
	}})
	settler := &recordingSettler{}
	rec := post(Failure(adapter, settler, nil), `{"gateway_order_id":"gw_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, settler.failed)
	require.Len(t, settler.completed, 1)
	require.Equal(t, "pay_9", settler.completed[0].GatewayPaymentID())
}

func TestFailurePendingLeavesLedgerUntouched(t *testing.T) {
	adapter, _ := newAdapter(t, lookupGateway{order: internalpayments.GatewayOrder{
		ID:    "gw_1",
		State: internalpayments.GatewayStatePending,
	}})
	settler := &recordingSettler{}
	rec := post(Failure(adapter, settler, nil), `{"gateway_order_id":"gw_1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, settler.failed)
	require.Empty(t, settler.completed)
}

func TestFailureGatewayDownIsServiceUnavailable(t *testing.T) {
	adapter, _ := newAdapter(t, lookupGateway{err: errors.New("connection reset")})
	rec := post(Failure(adapter, &recordingSettler{}, nil), `{"gateway_order_id":"gw_1"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection reset")
}
