package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/money"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

type checkoutRequest struct {
	ShippingAddress types.Address `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method" validate:"required,payment_method"`
}

type advanceRequest struct {
	Status   string  `json:"status" validate:"required,order_status"`
	Location *string `json:"location,omitempty" validate:"omitempty,max=200"`
	Note     *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// OrderResponse is the API view of an order.
type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	ShopID          uuid.UUID           `json:"shop_id"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	Currency        string              `json:"currency"`
	SubtotalMinor   int64               `json:"subtotal_minor"`
	TaxMinor        int64               `json:"tax_minor"`
	ShippingMinor   int64               `json:"shipping_minor"`
	TotalMinor      int64               `json:"total_minor"`
	TotalDisplay    string              `json:"total_display"`
	ShippingAddress types.Address       `json:"shipping_address"`
	GatewayOrderID  *string             `json:"gateway_order_id,omitempty"`
	CancelReason    *string             `json:"cancel_reason,omitempty"`
	Version         int64               `json:"version"`
	Items           []OrderItemResponse `json:"items,omitempty"`
	Payment         *PaymentResponse    `json:"payment,omitempty"`
	StatusChangedAt time.Time           `json:"status_changed_at"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// OrderItemResponse is one priced line of an order.
type OrderItemResponse struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	Qty            int       `json:"qty"`
	TotalMinor     int64     `json:"total_minor"`
}

// PaymentResponse exposes the payment record without gateway signatures.
type PaymentResponse struct {
	Status            enums.PaymentStatus `json:"status"`
	AmountMinor       int64               `json:"amount_minor"`
	GatewayPaymentID  *string             `json:"gateway_payment_id,omitempty"`
	RefundID          *string             `json:"refund_id,omitempty"`
	RefundAmountMinor *int64              `json:"refund_amount_minor,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	RefundedAt        *time.Time          `json:"refunded_at,omitempty"`
}

// CheckoutResponse pairs the new order with the gateway order the client pays against.
type CheckoutResponse struct {
	Order          OrderResponse `json:"order"`
	GatewayOrderID string        `json:"gateway_order_id"`
}

// OrderListResponse is one page of orders.
type OrderListResponse struct {
	Items  []OrderResponse `json:"items"`
	Cursor string          `json:"cursor,omitempty"`
}

// TrackingEventResponse is one entry in an order's tracking history.
type TrackingEventResponse struct {
	Sequence    int64                   `json:"sequence"`
	Type        enums.TrackingEventType `json:"type"`
	ActorUserID *uuid.UUID              `json:"actor_user_id,omitempty"`
	ActorRole   *enums.Role             `json:"actor_role,omitempty"`
	Location    *string                 `json:"location,omitempty"`
	Note        *string                 `json:"note,omitempty"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

func toOrderResponse(order *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		ShopID:          order.ShopID,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		Currency:        order.Currency,
		SubtotalMinor:   order.SubtotalMinor,
		TaxMinor:        order.TaxMinor,
		ShippingMinor:   order.ShippingMinor,
		TotalMinor:      order.TotalMinor,
		TotalDisplay:    money.Format(order.TotalMinor, order.Currency),
		ShippingAddress: order.ShippingAddress,
		GatewayOrderID:  order.GatewayOrderID,
		CancelReason:    order.CancelReason,
		Version:         order.Version,
		StatusChangedAt: order.StatusChangedAt,
		CancelledAt:     order.CancelledAt,
		DeliveredAt:     order.DeliveredAt,
		CreatedAt:       order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:      item.ProductID,
			Name:           item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Qty:            item.Qty,
			TotalMinor:     item.TotalMinor,
		})
	}
	if p := order.Payment; p != nil {
		resp.Payment = &PaymentResponse{
			Status:            p.Status,
			AmountMinor:       p.AmountMinor,
			GatewayPaymentID:  p.GatewayPaymentID,
			RefundID:          p.RefundID,
			RefundAmountMinor: p.RefundAmountMinor,
			CompletedAt:       p.CompletedAt,
			RefundedAt:        p.RefundedAt,
		}
	}
	return resp
}

func toTrackingResponse(events []models.TrackingEvent) []TrackingEventResponse {
	out := make([]TrackingEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TrackingEventResponse{
			Sequence:    e.Sequence,
			Type:        e.Type,
			ActorUserID: e.ActorUserID,
			ActorRole:   e.ActorRole,
			Location:    e.Location,
			Note:        e.Note,
			OccurredAt:  e.OccurredAt,
		})
	}
	return out
}
