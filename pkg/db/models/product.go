package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the read model of a catalog entry as seen by checkout.
type Product struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ShopID     uuid.UUID      `gorm:"column:shop_id;type:uuid;not null;index"`
	Title      string         `gorm:"column:title;not null"`
	PriceMinor int64          `gorm:"column:price_minor;not null"`
	Currency   string         `gorm:"column:currency;type:text;not null"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
