package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// PaymentRecord mirrors the gateway side of an order's payment.
type PaymentRecord struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	GatewayOrderID    *string             `gorm:"column:gateway_order_id;type:text"`
	GatewayPaymentID  *string             `gorm:"column:gateway_payment_id;type:text"`
	Signature         *string             `gorm:"column:signature;type:text"`
	AmountMinor       int64               `gorm:"column:amount_minor;not null"`
	Currency          string              `gorm:"column:currency;type:text;not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	RefundID          *string             `gorm:"column:refund_id;type:text"`
	RefundAmountMinor *int64              `gorm:"column:refund_amount_minor"`
	FailureReason     *string             `gorm:"column:failure_reason;type:text"`
	CompletedAt       *time.Time          `gorm:"column:completed_at"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
