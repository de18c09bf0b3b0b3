package notifications

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxDeliverer stores the in-app notification and queues it for push delivery
// in the same transaction.
type OutboxDeliverer struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
}

// NewOutboxDeliverer wires the deliverer.
func NewOutboxDeliverer(tx txRunner, repo Repository, publisher outboxPublisher) (*OutboxDeliverer, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if publisher == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &OutboxDeliverer{tx: tx, repo: repo, outbox: publisher}, nil
}

func (d *OutboxDeliverer) Deliver(ctx context.Context, msg Message) error {
	if !msg.Type.IsValid() {
		return errors.New("unknown notification type")
	}
	title, body := msg.render()

	return d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row := &models.Notification{
			UserID:  msg.UserID,
			OrderID: msg.OrderID,
			Type:    msg.Type,
			Title:   title,
			Message: body,
		}
		if err := d.repo.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   row.ID,
			Data: payloads.NotificationRequestedEvent{
				NotificationID: row.ID,
				UserID:         msg.UserID,
				OrderID:        msg.OrderID,
				Type:           msg.Type,
				Title:          title,
				Message:        body,
				Data:           msg.Payload,
			},
		})
	})
}
