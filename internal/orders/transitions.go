package orders

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const maxCancelReasonLen = 500

// Advance moves the order to its immediate successor. The state machine is
// checked before the actor so an illegal jump reports as such for every role.
func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.Order, error) {
	order, err := s.withOrderLock(ctx, input.OrderID, func() (*models.Order, error) {
		order, err := s.repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		if !CanAdvance(order.Status, input.Next) {
			return nil, invalidTransition(order.Status, input.Next)
		}
		if err := authz.Authorize(input.Actor, authz.OpAdvance, resourceOf(order)); err != nil {
			return nil, err
		}

		from := order.Status
		now := s.now().UTC()
		updates := map[string]any{
			"status":            input.Next,
			"status_changed_at": now,
		}
		if input.Next == enums.OrderStatusDelivered {
			updates["delivered_at"] = now
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).UpdateGuarded(ctx, order.ID, order.Version, updates); err != nil {
				return err
			}
			if input.Next == enums.OrderStatusDelivered {
				if err := s.inventory.Commit(ctx, tx, order.ID); err != nil {
					return err
				}
			}
			return s.emitTransition(ctx, tx, "advance", order, input.Next, order.PaymentStatus, &input.Actor)
		})
		if err != nil {
			return nil, pkgerrors.FromDB(err, "advance order")
		}

		updated, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		s.logTransition(ctx, "advance", order.ID, string(from), string(input.Next), input.Actor)
		event, _ := statusEvent(input.Next)
		s.afterTransition(ctx, updated, effect{
			event:        event,
			actor:        &input.Actor,
			location:     input.Location,
			note:         input.Note,
			notification: enums.NotificationOrderStatusChanged,
		})
		return updated, nil
	})
	s.observe("advance", err)
	return order, err
}

// Cancel ends an order in one of the early states and returns its stock. A
// captured payment is refunded afterwards; a refund failure leaves the order
// cancelled with the payment still completed for the reconciliation sweep.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	reason := strings.TrimSpace(input.Reason)
	if len(reason) > maxCancelReasonLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason is too long")
	}

	order, err := s.withOrderLock(ctx, input.OrderID, func() (*models.Order, error) {
		order, err := s.repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		if !CanCancel(order.Status) {
			return nil, invalidTransition(order.Status, enums.OrderStatusCancelled)
		}
		if err := authz.Authorize(input.Actor, authz.OpCancel, resourceOf(order)); err != nil {
			return nil, err
		}

		from := order.Status
		now := s.now().UTC()
		updates := map[string]any{
			"status":            enums.OrderStatusCancelled,
			"status_changed_at": now,
			"cancelled_at":      now,
		}
		if reason != "" {
			updates["cancel_reason"] = reason
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).UpdateGuarded(ctx, order.ID, order.Version, updates); err != nil {
				return err
			}
			if err := s.inventory.Release(ctx, tx, order.ID); err != nil {
				return err
			}
			return s.emitTransition(ctx, tx, "cancel", order, enums.OrderStatusCancelled, order.PaymentStatus, &input.Actor)
		})
		if err != nil {
			return nil, pkgerrors.FromDB(err, "cancel order")
		}

		updated, err := s.repo.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		s.logTransition(ctx, "cancel", order.ID, string(from), string(enums.OrderStatusCancelled), input.Actor)
		var note *string
		if reason != "" {
			note = &reason
		}
		s.afterTransition(ctx, updated, effect{
			event:        enums.TrackingCancelled,
			actor:        &input.Actor,
			note:         note,
			notification: enums.NotificationOrderCancelled,
		})

		if updated.PaymentStatus != enums.PaymentStatusCompleted {
			return updated, nil
		}
		refunded, err := s.refundAndMark(ctx, updated, &input.Actor)
		if err != nil {
			return updated, nil
		}
		return refunded, nil
	})
	s.observe("cancel", err)
	return order, err
}
