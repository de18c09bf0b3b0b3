package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// TrackingEvent is an append-only entry in an order's tracking history.
type TrackingEvent struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_tracking_events_order_sequence"`
	Sequence    int64                   `gorm:"column:sequence;not null;uniqueIndex:ux_tracking_events_order_sequence"`
	Type        enums.TrackingEventType `gorm:"column:type;type:text;not null"`
	ActorUserID *uuid.UUID              `gorm:"column:actor_user_id;type:uuid"`
	ActorRole   *enums.Role             `gorm:"column:actor_role;type:text"`
	Location    *string                 `gorm:"column:location;type:text"`
	Note        *string                 `gorm:"column:note;type:text"`
	OccurredAt  time.Time               `gorm:"column:occurred_at;not null"`
}

func (e *TrackingEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
