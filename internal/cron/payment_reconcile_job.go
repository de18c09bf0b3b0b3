package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	defaultPaymentStaleAfter = 30 * time.Minute
	defaultBatchSize         = 100
)

// PaymentReconcileJobParams configure the payment reconciliation sweep.
type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Orders     paymentOrderReader
	Ledger     paymentLedger
	Gateway    gatewayConfirmer
	StaleAfter time.Duration
	BatchSize  int
}

type paymentOrderReader interface {
	ListStalePaymentPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
	ListCancelledAwaitingRefund(ctx context.Context, limit int) ([]models.Order, error)
}

type paymentLedger interface {
	MarkPaymentCompleted(ctx context.Context, v payments.Verification) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, v payments.Verification) (*models.Order, error)
	RefundCancelled(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type gatewayConfirmer interface {
	ConfirmWithGateway(ctx context.Context, gatewayOrderID string) (payments.Verification, bool, error)
}

// NewPaymentReconcileJob builds the job that settles payments whose callback
// never arrived and retries refunds that failed during cancellation.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway confirmer required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultPaymentStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		orders:     params.Orders,
		ledger:     params.Ledger,
		gateway:    params.Gateway,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	orders     paymentOrderReader
	ledger     paymentLedger
	gateway    gatewayConfirmer
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	return multierr.Combine(
		j.settleStalePayments(ctx),
		j.retryRefunds(ctx),
	)
}

func (j *paymentReconcileJob) settleStalePayments(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	rows, err := j.orders.ListStalePaymentPending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale payments: %w", err)
	}

	var (
		errs    error
		settled int
	)
	for _, order := range rows {
		if order.GatewayOrderID == nil {
			continue
		}
		v, final, err := j.gateway.ConfirmWithGateway(ctx, *order.GatewayOrderID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("confirm order %s: %w", order.ID, err))
			continue
		}
		if !final {
			continue
		}
		switch v.Outcome() {
		case payments.OutcomeCompleted:
			_, err = j.ledger.MarkPaymentCompleted(ctx, v)
		case payments.OutcomeFailed:
			_, err = j.ledger.MarkPaymentFailed(ctx, v)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settle order %s: %w", order.ID, err))
			continue
		}
		settled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"scanned": len(rows), "settled": settled})
	j.logg.Info(logCtx, "stale payment sweep complete")
	return errs
}

func (j *paymentReconcileJob) retryRefunds(ctx context.Context) error {
	rows, err := j.orders.ListCancelledAwaitingRefund(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("query unrefunded cancellations: %w", err)
	}

	var (
		errs     error
		refunded int
	)
	for _, order := range rows {
		if _, err := j.ledger.RefundCancelled(ctx, order.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refund order %s: %w", order.ID, err))
			continue
		}
		refunded++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"scanned": len(rows), "refunded": refunded})
	j.logg.Info(logCtx, "refund retry sweep complete")
	return errs
}
