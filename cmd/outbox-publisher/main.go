package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderflow-backend/internal/bootstrap"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
	"github.com/angelmondragon/orderflow-backend/pkg/pubsub"
)

const metricsGrace = 5 * time.Second

func main() {
	boot := context.Background()
	proc := bootstrap.Start(boot, "outbox-publisher")
	cfg, logg := proc.Config, proc.Logger

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	proc.Must(boot, "pubsub", err)
	proc.Defer("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must(boot, "event registry", err)

	promRegistry := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         proc.DB,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(proc.DB.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewOutboxMetrics(promRegistry),
	})
	proc.Must(boot, "outbox publisher", err)

	ctx, stop := proc.SignalContext(map[string]any{"metrics_addr": cfg.Outbox.MetricsAddr, "topics": eventRegistry.Topics()})
	defer stop()
	logg.Info(ctx, "outbox_publisher.starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	bootstrap.Serve(gctx, g, &http.Server{
		Addr:              cfg.Outbox.MetricsAddr,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}, metricsGrace)

	proc.Exit(ctx, g.Wait())
}
