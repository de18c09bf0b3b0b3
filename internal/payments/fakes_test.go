package payments

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const testSecret = "callback-secret"

type fakeGateway struct {
	mu          sync.Mutex
	createErr   error
	lookup      map[string]GatewayOrder
	refundErr   error
	refundDelay time.Duration
	refundCalls atomic.Int32
	creates     []CreateOrderRequest
}

func (f *fakeGateway) CreateOrder(_ context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return GatewayOrder{}, f.createErr
	}
	f.creates = append(f.creates, req)
	return GatewayOrder{ID: "gw_" + req.Receipt, AmountMinor: req.AmountMinor, Currency: req.Currency, State: GatewayStatePending}, nil
}

func (f *fakeGateway) LookupOrder(_ context.Context, id string) (GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.lookup[id]
	if !ok {
		return GatewayOrder{ID: id, State: GatewayStatePending}, nil
	}
	return order, nil
}

func (f *fakeGateway) Refund(_ context.Context, call RefundCall) (RefundOutcome, error) {
	f.refundCalls.Add(1)
	if f.refundDelay > 0 {
		time.Sleep(f.refundDelay)
	}
	if f.refundErr != nil {
		return RefundOutcome{}, f.refundErr
	}
	return RefundOutcome{ID: "rf_" + call.IdempotencyKey, AmountMinor: call.AmountMinor, Succeeded: true}, nil
}

func newTestAdapter(t *testing.T, gw GatewayClient) *Adapter {
	t.Helper()
	verifier, err := NewSignatureVerifier(testSecret)
	require.NoError(t, err)
	adapter, err := NewAdapter(AdapterParams{
		Gateway:  gw,
		Verifier: verifier,
		Refunds:  NewRefundStore(dbtest.Open(t)),
		Logger:   logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}),
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	return adapter
}
