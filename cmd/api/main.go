package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderflow-backend/api/routes"
	"github.com/angelmondragon/orderflow-backend/internal/bootstrap"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/pkg/idempotency"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	boot := context.Background()
	proc := bootstrap.Start(boot, "api")
	cfg, logg := proc.Config, proc.Logger
	redisClient := proc.Redis(boot)

	gateway, err := bootstrap.NewStripeGateway(boot, cfg, logg)
	proc.Must(boot, "payment gateway", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledger, err := bootstrap.NewLedger(bootstrap.LedgerParams{
		Config:  cfg,
		Logger:  logg,
		DB:      proc.DB,
		Redis:   redisClient,
		Gateway: gateway,
		Metrics: metrics.NewOrderMetrics(registry),
	})
	proc.Must(boot, "order ledger", err)

	checkoutService, err := checkout.NewService(cart.NewRepository(proc.DB.DB()), ledger.Orders, ledger.Payments, logg)
	proc.Must(boot, "checkout service", err)
	notificationsService, err := notifications.NewService(ledger.Notifications)
	proc.Must(boot, "notifications service", err)
	callbackGuard, err := idempotency.NewGuard(redisClient, cfg.Eventing.CallbackIdempotencyTTL)
	proc.Must(boot, "callback guard", err)

	addr := ":" + envOr("PORT", cfg.App.Port)
	ctx, stop := proc.SignalContext(map[string]any{"addr": addr, "instance": envOr("DYNO", "local")})
	defer stop()
	logg.Info(ctx, "api.starting")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:            proc.DB,
			Redis:         redisClient,
			Idempotency:   redisClient,
			Registry:      registry,
			Checkout:      checkoutService,
			Orders:        ledger.Orders,
			Tracking:      ledger.Tracking,
			Payments:      ledger.Payments,
			CallbackGuard: callbackGuard,
			Notifications: notificationsService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The dispatcher outlives the server so notifications queued by in-flight requests still drain.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ledger.Dispatcher.Run(dispatchCtx) })
	bootstrap.Serve(gctx, g, server, shutdownTimeout, stopDispatch)

	proc.Exit(ctx, g.Wait())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
