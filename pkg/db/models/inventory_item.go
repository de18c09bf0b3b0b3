package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the stock row for one product. AvailableQty is what
// checkout may still reserve; ReservedQty is held by open orders. The schema
// keeps both non-negative.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OnHand is the total physical stock, reserved or not.
func (i InventoryItem) OnHand() int {
	return i.AvailableQty + i.ReservedQty
}
