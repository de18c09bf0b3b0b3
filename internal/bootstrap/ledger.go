// Package bootstrap assembles the order ledger and its collaborators for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/orderflow-backend/internal/inventory"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/tracking"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/lock"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

const (
	orderLockScope = "order"
	txAttempts     = 3
)

// LedgerParams are the shared clients a ledger is built from.
type LedgerParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	Gateway payments.GatewayClient
	Metrics *metrics.OrderMetrics
}

// Ledger bundles the order ledger with the components callers also use directly.
type Ledger struct {
	Orders        orders.Service
	OrdersRepo    orders.Repository
	Payments      *payments.Adapter
	Tracking      *tracking.Log
	Notifications notifications.Repository
	Outbox        *outbox.Repository
	Dispatcher    *notifications.Dispatcher
}

// NewStripeGateway connects the payment adapter to Stripe.
func NewStripeGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.GatewayClient, error) {
	client, err := stripe.NewClient(ctx, cfg.Stripe, cfg.Gateway.RequestTimeout, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	gateway, err := payments.NewStripeGateway(client)
	if err != nil {
		return nil, err
	}
	return gateway, nil
}

// NewLedger wires the order ledger. The returned Dispatcher must be Run by the caller
// for notifications to leave the queue.
func NewLedger(p LedgerParams) (*Ledger, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("database client required")
	case p.Redis == nil:
		return nil, errors.New("redis client required")
	case p.Gateway == nil:
		return nil, errors.New("payment gateway required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	verifier, err := payments.NewSignatureVerifier(cfg.Gateway.CallbackSecret)
	if err != nil {
		return nil, fmt.Errorf("signature verifier: %w", err)
	}
	adapter, err := payments.NewAdapter(payments.AdapterParams{
		Gateway:  p.Gateway,
		Verifier: verifier,
		Refunds:  payments.NewRefundStore(conn),
		Logger:   p.Logger,
		Metrics:  p.Metrics,
		Timeout:  cfg.Gateway.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("payment adapter: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	notificationsRepo := notifications.NewRepository(conn)
	tx := p.DB.Retrying(txAttempts)
	events := outbox.NewService(outboxRepo, p.Logger)
	deliverer, err := notifications.NewOutboxDeliverer(tx, notificationsRepo, events)
	if err != nil {
		return nil, fmt.Errorf("notification deliverer: %w", err)
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Deliverer: deliverer,
		Logger:    p.Logger,
		Metrics:   p.Metrics,
		QueueSize: cfg.Notifications.QueueSize,
		Workers:   cfg.Notifications.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	locker, err := lock.NewRedis(lock.RedisParams{
		Store:  p.Redis,
		Scope:  orderLockScope,
		TTL:    cfg.Locks.OrderLockTTL,
		Wait:   cfg.Locks.OrderLockWait,
		Logger: p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("order locker: %w", err)
	}
	pricing, err := orders.NewPricingPolicy(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("pricing policy: %w", err)
	}

	trackingLog := tracking.NewLog(conn)
	ordersRepo := orders.NewRepository(conn)
	ledger, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		Tx:        tx,
		Inventory: inventory.NewManager(),
		Refunder:  adapter,
		Tracking:  trackingLog,
		Notifier:  dispatcher,
		Events:    events,
		Locker:    locker,
		Pricing:   pricing,
		Logger:    p.Logger,
		Metrics:   p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("order ledger: %w", err)
	}

	return &Ledger{
		Orders:        ledger,
		OrdersRepo:    ordersRepo,
		Payments:      adapter,
		Tracking:      trackingLog,
		Notifications: notificationsRepo,
		Outbox:        outboxRepo,
		Dispatcher:    dispatcher,
	}, nil
}
