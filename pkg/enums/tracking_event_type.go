package enums

// TrackingEventType labels an entry of the per-order tracking history.
type TrackingEventType string

const (
	TrackingOrderPlaced      TrackingEventType = "order_placed"
	TrackingPacked           TrackingEventType = "packed"
	TrackingShipped          TrackingEventType = "shipped"
	TrackingOutForDelivery   TrackingEventType = "out_for_delivery"
	TrackingDelivered        TrackingEventType = "delivered"
	TrackingCancelled        TrackingEventType = "cancelled"
	TrackingPaymentCompleted TrackingEventType = "payment_completed"
	TrackingPaymentFailed    TrackingEventType = "payment_failed"
	TrackingRefunded         TrackingEventType = "refunded"
)

var trackingEventTypes = closedSet[TrackingEventType]{
	TrackingOrderPlaced,
	TrackingPacked,
	TrackingShipped,
	TrackingOutForDelivery,
	TrackingDelivered,
	TrackingCancelled,
	TrackingPaymentCompleted,
	TrackingPaymentFailed,
	TrackingRefunded,
}

func (t TrackingEventType) IsValid() bool { return trackingEventTypes.has(t) }

