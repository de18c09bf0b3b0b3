package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// MarkPaymentCompleted records a verified capture. Repeating the same outcome
// returns the order unchanged. A capture that arrives after a recorded failure
// still completes the payment. A capture on an already cancelled order is
// recorded and then refunded.
func (s *service) MarkPaymentCompleted(ctx context.Context, v payments.Verification) (*models.Order, error) {
	order, err := s.markPaymentCompleted(ctx, v)
	s.observe("payment_completed", err)
	return order, err
}

func (s *service) markPaymentCompleted(ctx context.Context, v payments.Verification) (*models.Order, error) {
	if !v.Valid() || v.Outcome() != payments.OutcomeCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment completion is not verified")
	}
	target, err := s.repo.FindByGatewayOrderID(ctx, v.GatewayOrderID())
	if err != nil {
		return nil, err
	}

	return s.withOrderLock(ctx, target.ID, func() (*models.Order, error) {
		order, err := s.repo.FindByID(ctx, target.ID)
		if err != nil {
			return nil, err
		}

		switch order.PaymentStatus {
		case enums.PaymentStatusCompleted, enums.PaymentStatusRefunded:
			if order.GatewayPaymentID != nil && *order.GatewayPaymentID == v.GatewayPaymentID() {
				return order, nil
			}
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid by another payment")
		}
		if !CanTransitionPayment(order.PaymentStatus, enums.PaymentStatusCompleted, order.Status) {
			return nil, invalidPaymentTransition(order.PaymentStatus, enums.PaymentStatusCompleted)
		}

		now := s.now().UTC()
		paymentID := v.GatewayPaymentID()
		paymentUpdates := map[string]any{
			"status":             enums.PaymentStatusCompleted,
			"gateway_payment_id": paymentID,
			"completed_at":       now,
		}
		if sig := v.Signature(); sig != "" {
			paymentUpdates["signature"] = sig
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateGuarded(ctx, order.ID, order.Version, map[string]any{
				"payment_status":     enums.PaymentStatusCompleted,
				"gateway_payment_id": paymentID,
			}); err != nil {
				return err
			}
			if err := repo.UpdatePayment(ctx, order.ID, paymentUpdates); err != nil {
				return err
			}
			return s.emitTransition(ctx, tx, "payment_completed", order, order.Status, enums.PaymentStatusCompleted, nil)
		})
		if err != nil {
			return nil, pkgerrors.FromDB(err, "record payment")
		}

		updated, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		s.logPayment(ctx, "payment_completed", updated, order.PaymentStatus, v.Source())
		s.afterTransition(ctx, updated, effect{
			event:        enums.TrackingPaymentCompleted,
			notification: enums.NotificationPaymentCompleted,
		})

		if updated.Status != enums.OrderStatusCancelled {
			return updated, nil
		}
		refunded, err := s.refundAndMark(ctx, updated, nil)
		if err != nil {
			return updated, nil
		}
		return refunded, nil
	})
}

// MarkPaymentFailed records a verified payment failure. Repeating it is a no-op.
func (s *service) MarkPaymentFailed(ctx context.Context, v payments.Verification) (*models.Order, error) {
	order, err := s.markPaymentFailed(ctx, v)
	s.observe("payment_failed", err)
	return order, err
}

func (s *service) markPaymentFailed(ctx context.Context, v payments.Verification) (*models.Order, error) {
	if !v.Valid() || v.Outcome() != payments.OutcomeFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment failure is not verified")
	}
	target, err := s.repo.FindByGatewayOrderID(ctx, v.GatewayOrderID())
	if err != nil {
		return nil, err
	}

	return s.withOrderLock(ctx, target.ID, func() (*models.Order, error) {
		order, err := s.repo.FindByID(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		if order.PaymentStatus == enums.PaymentStatusFailed {
			return order, nil
		}
		if !CanTransitionPayment(order.PaymentStatus, enums.PaymentStatusFailed, order.Status) {
			return nil, invalidPaymentTransition(order.PaymentStatus, enums.PaymentStatusFailed)
		}

		paymentUpdates := map[string]any{"status": enums.PaymentStatusFailed}
		if reason := v.FailureReason(); reason != "" {
			paymentUpdates["failure_reason"] = reason
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateGuarded(ctx, order.ID, order.Version, map[string]any{
				"payment_status": enums.PaymentStatusFailed,
			}); err != nil {
				return err
			}
			if err := repo.UpdatePayment(ctx, order.ID, paymentUpdates); err != nil {
				return err
			}
			return s.emitTransition(ctx, tx, "payment_failed", order, order.Status, enums.PaymentStatusFailed, nil)
		})
		if err != nil {
			return nil, pkgerrors.FromDB(err, "record payment failure")
		}

		updated, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		s.logPayment(ctx, "payment_failed", updated, order.PaymentStatus, v.Source())
		s.afterTransition(ctx, updated, effect{
			event:        enums.TrackingPaymentFailed,
			notification: enums.NotificationPaymentFailed,
		})
		return updated, nil
	})
}

// RefundCancelled retries the refund of a cancelled order whose payment is
// still captured. An order that is already refunded is returned unchanged.
func (s *service) RefundCancelled(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.withOrderLock(ctx, orderID, func() (*models.Order, error) {
		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.PaymentStatus == enums.PaymentStatusRefunded {
			return order, nil
		}
		if !CanTransitionPayment(order.PaymentStatus, enums.PaymentStatusRefunded, order.Status) {
			return nil, invalidPaymentTransition(order.PaymentStatus, enums.PaymentStatusRefunded)
		}
		return s.refundAndMark(ctx, order, nil)
	})
	s.observe("refund", err)
	return order, err
}

// refundAndMark issues the refund and then moves the payment to refunded in a
// second transaction. Callers must hold the order lock.
func (s *service) refundAndMark(ctx context.Context, order *models.Order, actor *authz.Actor) (*models.Order, error) {
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if order.GatewayPaymentID == nil || *order.GatewayPaymentID == "" {
		err := pkgerrors.New(pkgerrors.CodeStateConflict, "captured payment has no gateway payment id")
		s.logg.Error(logCtx, "order.refund_failed", err)
		return nil, err
	}

	result, err := s.refunder.Refund(ctx, payments.RefundRequest{
		OrderID:          order.ID,
		GatewayPaymentID: *order.GatewayPaymentID,
		AmountMinor:      order.TotalMinor,
		Currency:         order.Currency,
	})
	if err != nil {
		s.logg.Error(logCtx, "order.refund_failed", err)
		return nil, err
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateGuarded(ctx, order.ID, order.Version, map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
		}); err != nil {
			return err
		}
		if err := repo.UpdatePayment(ctx, order.ID, map[string]any{
			"status":              enums.PaymentStatusRefunded,
			"refund_id":           result.RefundID,
			"refund_amount_minor": result.AmountMinor,
			"refunded_at":         now,
		}); err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, "refund", order, order.Status, enums.PaymentStatusRefunded, actor)
	})
	if err != nil {
		err = pkgerrors.FromDB(err, "record refund")
		s.logg.Error(logCtx, "order.refund_record_failed", err)
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	s.logPayment(ctx, "refund", updated, enums.PaymentStatusCompleted, "")
	s.afterTransition(ctx, updated, effect{
		event:        enums.TrackingRefunded,
		actor:        actor,
		notification: enums.NotificationOrderRefunded,
	})
	return updated, nil
}

func (s *service) logPayment(ctx context.Context, op string, order *models.Order, from enums.PaymentStatus, source payments.Source) {
	fields := map[string]any{
		"operation": op,
		"order_id":  order.ID.String(),
		"from":      string(from),
		"to":        string(order.PaymentStatus),
	}
	if source != "" {
		fields["verified_by"] = string(source)
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "order.transition")
}
