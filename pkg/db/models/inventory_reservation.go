package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// InventoryReservation records the stock an order holds for one product.
type InventoryReservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_inventory_reservations_order_product"`
	ProductID uuid.UUID               `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_reservations_order_product"`
	Qty       int                     `gorm:"column:qty;not null"`
	Status    enums.ReservationStatus `gorm:"column:status;type:text;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *InventoryReservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
