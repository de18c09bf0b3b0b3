package enums

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateNotification OutboxAggregateType = "notification"
)

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateNotification
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
)

// eventAggregates binds each event type to the only aggregate it may describe.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventNotificationRequested: AggregateNotification,
	EventOrderStatusChanged:    AggregateOrder,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type rows of this event must carry.
func (e OutboxEventType) Aggregate() (OutboxAggregateType, bool) {
	agg, ok := eventAggregates[e]
	return agg, ok
}
