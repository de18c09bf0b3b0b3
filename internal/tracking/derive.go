package tracking

import (
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

var statusByEvent = map[enums.TrackingEventType]enums.OrderStatus{
	enums.TrackingOrderPlaced:    enums.OrderStatusProcessing,
	enums.TrackingPacked:         enums.OrderStatusPacked,
	enums.TrackingShipped:        enums.OrderStatusShipped,
	enums.TrackingOutForDelivery: enums.OrderStatusOutForDelivery,
	enums.TrackingDelivered:      enums.OrderStatusDelivered,
	enums.TrackingCancelled:      enums.OrderStatusCancelled,
}

// EventForStatus returns the tracking event recorded when an order enters status.
func EventForStatus(status enums.OrderStatus) (enums.TrackingEventType, bool) {
	for event, s := range statusByEvent {
		if s == status {
			return event, true
		}
	}
	return "", false
}

// DeriveStatus returns the fulfillment status implied by the latest fulfillment
// event. Payment events do not move fulfillment and are skipped.
func DeriveStatus(events []models.TrackingEvent) (enums.OrderStatus, bool) {
	var (
		latest  enums.OrderStatus
		seq     int64
		matched bool
	)
	for _, event := range events {
		status, ok := statusByEvent[event.Type]
		if !ok {
			continue
		}
		if !matched || event.Sequence > seq {
			latest = status
			seq = event.Sequence
			matched = true
		}
	}
	return latest, matched
}
