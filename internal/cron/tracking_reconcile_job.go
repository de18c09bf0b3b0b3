package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/internal/tracking"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	defaultTrackingLookback = 24 * time.Hour
	reconciledNote          = "tracking reconciled with order status"
)

// TrackingReconcileJobParams configure the tracking drift sweep.
type TrackingReconcileJobParams struct {
	Logger    *logger.Logger
	Orders    changedOrderReader
	Tracking  trackingLog
	Lookback  time.Duration
	BatchSize int
}

type changedOrderReader interface {
	ListChangedSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
}

type trackingLog interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error)
	Append(ctx context.Context, input tracking.AppendInput) (*models.TrackingEvent, error)
}

// NewTrackingReconcileJob builds the job that appends a corrective tracking
// event when a best-effort append was lost after a transition committed.
func NewTrackingReconcileJob(params TrackingReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Tracking == nil {
		return nil, fmt.Errorf("tracking log required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultTrackingLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &trackingReconcileJob{
		logg:     params.Logger,
		orders:   params.Orders,
		tracking: params.Tracking,
		lookback: lookback,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type trackingReconcileJob struct {
	logg     *logger.Logger
	orders   changedOrderReader
	tracking trackingLog
	lookback time.Duration
	batch    int
	now      func() time.Time
}

func (j *trackingReconcileJob) Name() string { return "tracking-reconcile" }

func (j *trackingReconcileJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	rows, err := j.orders.ListChangedSince(ctx, since, j.batch)
	if err != nil {
		return fmt.Errorf("query changed orders: %w", err)
	}

	var (
		errs      error
		corrected int
	)
	for _, order := range rows {
		fixed, err := j.reconcile(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile order %s: %w", order.ID, err))
			continue
		}
		if fixed {
			corrected++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"scanned": len(rows), "corrected": corrected})
	j.logg.Info(logCtx, "tracking reconcile complete")
	return errs
}

func (j *trackingReconcileJob) reconcile(ctx context.Context, order models.Order) (bool, error) {
	events, err := j.tracking.ListByOrder(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if derived, ok := tracking.DeriveStatus(events); ok && derived == order.Status {
		return false, nil
	}
	event, ok := tracking.EventForStatus(order.Status)
	if !ok {
		return false, fmt.Errorf("no tracking event for status %s", order.Status)
	}
	note := reconciledNote
	if _, err := j.tracking.Append(ctx, tracking.AppendInput{
		OrderID:    order.ID,
		Type:       event,
		Note:       &note,
		OccurredAt: order.StatusChangedAt,
	}); err != nil {
		return false, err
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"status":   string(order.Status),
		"event":    string(event),
	})
	j.logg.Warn(logCtx, "tracking.reconciled")
	return true, nil
}
