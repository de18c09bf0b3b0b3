package enums

// NotificationType is the event a user is notified about.
type NotificationType string

const (
	NotificationOrderPlaced        NotificationType = "order_placed"
	NotificationOrderStatusChanged NotificationType = "order_status_changed"
	NotificationOrderCancelled     NotificationType = "order_cancelled"
	NotificationPaymentCompleted   NotificationType = "payment_completed"
	NotificationPaymentFailed      NotificationType = "payment_failed"
	NotificationOrderRefunded      NotificationType = "order_refunded"
)

var notificationTypes = closedSet[NotificationType]{
	NotificationOrderPlaced,
	NotificationOrderStatusChanged,
	NotificationOrderCancelled,
	NotificationPaymentCompleted,
	NotificationPaymentFailed,
	NotificationOrderRefunded,
}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }
