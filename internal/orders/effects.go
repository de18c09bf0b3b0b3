package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/tracking"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/money"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// effect describes the tracking entry and notification that follow a committed transition.
type effect struct {
	event        enums.TrackingEventType
	actor        *authz.Actor
	location     *string
	note         *string
	notification enums.NotificationType
}

// afterTransition appends exactly one tracking event and dispatches exactly one
// notification. Neither may undo the transition, so failures are only logged.
func (s *service) afterTransition(ctx context.Context, order *models.Order, e effect) {
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())

	if _, err := s.tracking.Append(ctx, tracking.AppendInput{
		OrderID:  order.ID,
		Type:     e.event,
		Actor:    e.actor,
		Location: e.location,
		Note:     e.note,
	}); err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "tracking_event", e.event), "order.tracking_append_failed", err)
	}

	orderID := order.ID
	s.notifier.Dispatch(logCtx, notifications.Message{
		UserID:  order.UserID,
		Type:    e.notification,
		OrderID: &orderID,
		Payload: map[string]string{
			notifications.KeyStatus:        string(order.Status),
			notifications.KeyPaymentStatus: string(order.PaymentStatus),
			notifications.KeyTotalDisplay:  money.Format(order.TotalMinor, order.Currency),
		},
	})
}

// emitTransition stages an order_status_changed event in tx. order is the
// state before the change; empty targets mark a newly created order.
func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, op string, order *models.Order, status enums.OrderStatus, payment enums.PaymentStatus, actor *authz.Actor) error {
	if s.events == nil {
		return nil
	}
	data := payloads.OrderStatusChangedEvent{
		OrderID:           order.ID,
		UserID:            order.UserID,
		ShopID:            order.ShopID,
		Transition:        op,
		FromStatus:        order.Status,
		Status:            status,
		FromPaymentStatus: order.PaymentStatus,
		PaymentStatus:     payment,
		TotalMinor:        order.TotalMinor,
		Currency:          order.Currency,
		ChangedAt:         s.now().UTC(),
	}
	if status == "" {
		data.FromStatus, data.FromPaymentStatus = "", ""
		data.Status, data.PaymentStatus = order.Status, order.PaymentStatus
	}

	event := outbox.DomainEvent{
		EventType:   enums.EventOrderStatusChanged,
		AggregateID: order.ID,
		Data:        data,
		OccurredAt:  data.ChangedAt,
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, ShopID: actor.ShopID, Role: actor.Role}
	}
	return s.events.Emit(ctx, tx, event)
}

func (s *service) logTransition(ctx context.Context, op string, orderID uuid.UUID, from, to string, actor authz.Actor) {
	fields := map[string]any{
		"operation": op,
		"order_id":  orderID.String(),
		"from":      from,
		"to":        to,
	}
	if actor.UserID != uuid.Nil {
		fields["actor_id"] = actor.UserID.String()
		fields["actor_role"] = string(actor.Role)
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "order.transition")
}

func (s *service) observe(op string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		if pkgerrors.IsClientFault(err) {
			outcome = metrics.OutcomeRejected
		}
	}
	s.metrics.ObserveTransition(op, outcome)
}

func statusEvent(status enums.OrderStatus) (enums.TrackingEventType, bool) {
	return tracking.EventForStatus(status)
}
