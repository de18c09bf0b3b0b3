package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderflow-backend/internal/bootstrap"
	"github.com/angelmondragon/orderflow-backend/internal/cron"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/lock"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
)

const (
	cronLockScope = "cron"
	cronLockWait  = time.Second
)

func main() {
	boot := context.Background()
	proc := bootstrap.Start(boot, "cron-worker")
	cfg, logg := proc.Config, proc.Logger
	redisClient := proc.Redis(boot)

	gateway, err := bootstrap.NewStripeGateway(boot, cfg, logg)
	proc.Must(boot, "payment gateway", err)

	ledger, err := bootstrap.NewLedger(bootstrap.LedgerParams{
		Config:  cfg,
		Logger:  logg,
		DB:      proc.DB,
		Redis:   redisClient,
		Gateway: gateway,
		Metrics: metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must(boot, "order ledger", err)

	registry, err := buildRegistry(cfg, logg, ledger)
	proc.Must(boot, "cron jobs", err)

	locker, err := lock.NewRedis(lock.RedisParams{
		Store:  redisClient,
		Scope:  cronLockScope,
		TTL:    cfg.Cron.Interval,
		Wait:   cronLockWait,
		Logger: logg,
	})
	proc.Must(boot, "cron locker", err)
	cycleLock, err := cron.NewCycleLock(locker, lockKey(cfg.App.Env))
	proc.Must(boot, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       cycleLock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	proc.Must(boot, "cron service", err)

	ctx, stop := proc.SignalContext(map[string]any{"interval": cfg.Cron.Interval.String()})
	defer stop()
	logg.Info(ctx, "cron_worker.starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ledger.Dispatcher.Run(gctx) })
	g.Go(func() error { return service.Run(gctx) })
	bootstrap.Serve(gctx, g, &http.Server{
		Addr:              cfg.Cron.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}, 5*time.Second)

	proc.Exit(ctx, g.Wait())
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, ledger *bootstrap.Ledger) (*cron.Registry, error) {
	paymentJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:     logg,
		Orders:     ledger.OrdersRepo,
		Ledger:     ledger.Orders,
		Gateway:    ledger.Payments,
		StaleAfter: cfg.Cron.PaymentPendingStaleAfter,
		BatchSize:  cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	trackingJob, err := cron.NewTrackingReconcileJob(cron.TrackingReconcileJobParams{
		Logger:    logg,
		Orders:    ledger.OrdersRepo,
		Tracking:  ledger.Tracking,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		Repository:       ledger.Outbox,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: ledger.Notifications,
	})
	if err != nil {
		return nil, err
	}
	registry := cron.NewRegistry(paymentJob, trackingJob)
	registry.RegisterEvery(outboxJob, cfg.Cron.RetentionEvery)
	registry.RegisterEvery(cleanupJob, cfg.Cron.RetentionEvery)
	return registry, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cycle:%s", env)
}
