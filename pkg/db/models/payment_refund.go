package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// PaymentRefund is the dedupe record for a refund issued against a gateway payment.
type PaymentRefund struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	GatewayPaymentID string             `gorm:"column:gateway_payment_id;type:text;not null;uniqueIndex:ux_payment_refunds_payment_key"`
	IdempotencyKey   string             `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:ux_payment_refunds_payment_key"`
	GatewayRefundID  string             `gorm:"column:gateway_refund_id;type:text;not null"`
	AmountMinor      int64              `gorm:"column:amount_minor;not null"`
	Currency         string             `gorm:"column:currency;type:text;not null"`
	Status           enums.RefundStatus `gorm:"column:status;type:text;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (r *PaymentRefund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
