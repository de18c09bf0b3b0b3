// Package tracking keeps the append-only per-order tracking history.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const appendAttempts = 5

// AppendInput describes one tracking entry.
type AppendInput struct {
	OrderID    uuid.UUID
	Type       enums.TrackingEventType
	Actor      *authz.Actor
	Location   *string
	Note       *string
	OccurredAt time.Time
}

// Log appends and lists tracking events. It exposes no update or delete.
type Log struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLog binds the log to a database handle.
func NewLog(conn *gorm.DB) *Log {
	return &Log{db: conn, now: time.Now}
}

// Append stores the event with the next sequence number for its order.
func (l *Log) Append(ctx context.Context, input AppendInput) (*models.TrackingEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid tracking event type %q", input.Type))
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = l.now().UTC()
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		event := models.TrackingEvent{
			OrderID:    input.OrderID,
			Type:       input.Type,
			Location:   input.Location,
			Note:       input.Note,
			OccurredAt: occurredAt,
		}
		if input.Actor != nil {
			userID := input.Actor.UserID
			role := input.Actor.Role
			event.ActorUserID = &userID
			event.ActorRole = &role
		}

		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var last int64
			if err := tx.Model(&models.TrackingEvent{}).
				Where("order_id = ?", input.OrderID).
				Select("COALESCE(MAX(sequence), 0)").
				Scan(&last).Error; err != nil {
				return err
			}
			event.Sequence = last + 1
			return tx.Create(&event).Error
		})
		if err == nil {
			return &event, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.FromDB(err, "append tracking event")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "tracking sequence contention")
}

// ListByOrder returns the order's events oldest first.
func (l *Log) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error) {
	var events []models.TrackingEvent
	if err := l.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("sequence ASC").
		Find(&events).Error; err != nil {
		return nil, pkgerrors.FromDB(err, "list tracking events")
	}
	return events, nil
}

// Latest returns the most recent event of an order.
func (l *Log) Latest(ctx context.Context, orderID uuid.UUID) (*models.TrackingEvent, error) {
	var event models.TrackingEvent
	err := l.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("sequence DESC").
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no tracking events")
	}
	if err != nil {
		return nil, pkgerrors.FromDB(err, "load tracking event")
	}
	return &event, nil
}
