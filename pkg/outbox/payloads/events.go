package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// NotificationRequestedEvent asks the delivery service to notify a user about an order.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	OrderID        *uuid.UUID             `json:"order_id,omitempty"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Data           map[string]string      `json:"data,omitempty"`
}

// OrderStatusChangedEvent reports one committed ledger transition. Either the
// fulfillment status or the payment status changed; both are always present
// so consumers can rebuild the order state from the latest event.
type OrderStatusChangedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	UserID            uuid.UUID           `json:"user_id"`
	ShopID            uuid.UUID           `json:"shop_id"`
	Transition        string              `json:"transition"`
	FromStatus        enums.OrderStatus   `json:"from_status,omitempty"`
	Status            enums.OrderStatus   `json:"status"`
	FromPaymentStatus enums.PaymentStatus `json:"from_payment_status,omitempty"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	TotalMinor        int64               `json:"total_minor"`
	Currency          string              `json:"currency"`
	ChangedAt         time.Time           `json:"changed_at"`
}
