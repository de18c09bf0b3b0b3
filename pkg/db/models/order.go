package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Order is a customer's purchase from a single shop. Money is stored in minor units.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ShopID           uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	Currency         string              `gorm:"column:currency;type:text;not null"`
	SubtotalMinor    int64               `gorm:"column:subtotal_minor;not null"`
	TaxMinor         int64               `gorm:"column:tax_minor;not null"`
	ShippingMinor    int64               `gorm:"column:shipping_minor;not null"`
	TotalMinor       int64               `gorm:"column:total_minor;not null"`
	ShippingAddress  types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null;index"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;index"`
	GatewayOrderID   *string             `gorm:"column:gateway_order_id;type:text;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id;type:text"`
	CancelReason     *string             `gorm:"column:cancel_reason;type:text"`
	Version          int64               `gorm:"column:version;not null;default:1"`
	StatusChangedAt  time.Time           `gorm:"column:status_changed_at;not null"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	DeliveredAt      *time.Time          `gorm:"column:delivered_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items   []OrderLineItem `gorm:"foreignKey:OrderID;references:ID"`
	Payment *PaymentRecord  `gorm:"foreignKey:OrderID;references:ID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
