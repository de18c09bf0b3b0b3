package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Payload keys carried by order notifications.
const (
	KeyStatus        = "status"
	KeyPaymentStatus = "payment_status"
	KeyTotalDisplay  = "total_display"
	KeyReason        = "reason"
)

// Message is a request to notify one user about one of their orders.
type Message struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	OrderID *uuid.UUID
	Payload map[string]string
}

func (m Message) shortOrderID() string {
	if m.OrderID == nil {
		return ""
	}
	return m.OrderID.String()[:8]
}

// render builds the in-app title and body for the message.
func (m Message) render() (string, string) {
	ref := m.shortOrderID()
	total := m.Payload[KeyTotalDisplay]
	switch m.Type {
	case enums.NotificationOrderPlaced:
		return "Order placed", fmt.Sprintf("Your order %s for %s has been placed.", ref, total)
	case enums.NotificationOrderStatusChanged:
		return "Order update", fmt.Sprintf("Your order %s is now %s.", ref, humanize(m.Payload[KeyStatus]))
	case enums.NotificationOrderCancelled:
		return "Order cancelled", fmt.Sprintf("Your order %s has been cancelled.", ref)
	case enums.NotificationPaymentCompleted:
		return "Payment received", fmt.Sprintf("We received %s for order %s.", total, ref)
	case enums.NotificationPaymentFailed:
		return "Payment failed", fmt.Sprintf("Payment for order %s did not go through.", ref)
	case enums.NotificationOrderRefunded:
		return "Refund issued", fmt.Sprintf("%s has been refunded for order %s.", total, ref)
	default:
		return "Order update", fmt.Sprintf("There is an update on order %s.", ref)
	}
}

func humanize(status string) string {
	switch enums.OrderStatus(status) {
	case enums.OrderStatusOutForDelivery:
		return "out for delivery"
	case "":
		return "updated"
	default:
		return status
	}
}
