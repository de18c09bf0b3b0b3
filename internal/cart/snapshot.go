// Package cart turns a customer's mutable cart into an immutable priced snapshot.
package cart

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Line is one priced product in a snapshot.
type Line struct {
	ProductID      uuid.UUID
	Name           string
	UnitPriceMinor int64
	Qty            int
	TotalMinor     int64
}

// Snapshot is the cart state an order is created from. Prices are copied so
// later catalog changes never reach the order.
type Snapshot struct {
	UserID   uuid.UUID
	ShopID   uuid.UUID
	Currency string
	Lines    []Line
}

// SubtotalMinor sums the line totals.
func (s *Snapshot) SubtotalMinor() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.TotalMinor
	}
	return total
}

// Builder validates cart lines and produces snapshots.
type Builder struct{}

// NewBuilder returns a snapshot builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build validates the cart lines and returns the snapshot. It does not touch storage.
func (b *Builder) Build(userID uuid.UUID, items []models.CartItem) (*Snapshot, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	merged := make(map[uuid.UUID]*Line, len(items))
	order := make([]uuid.UUID, 0, len(items))
	snap := &Snapshot{UserID: userID}

	for _, item := range items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID.String(), "qty": item.Qty})
		}
		product := item.Product
		if product == nil || !product.IsActive || product.DeletedAt.Valid {
			return nil, unavailable(item.ProductID, product)
		}

		currency := strings.ToUpper(strings.TrimSpace(product.Currency))
		if snap.ShopID == uuid.Nil {
			snap.ShopID = product.ShopID
			snap.Currency = currency
		}
		if product.ShopID != snap.ShopID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains products from more than one shop")
		}
		if currency != snap.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains more than one currency")
		}

		if line, ok := merged[product.ID]; ok {
			line.Qty += item.Qty
			line.TotalMinor = line.UnitPriceMinor * int64(line.Qty)
			continue
		}
		merged[product.ID] = &Line{
			ProductID:      product.ID,
			Name:           product.Title,
			UnitPriceMinor: product.PriceMinor,
			Qty:            item.Qty,
			TotalMinor:     product.PriceMinor * int64(item.Qty),
		}
		order = append(order, product.ID)
	}

	snap.Lines = make([]Line, 0, len(order))
	for _, id := range order {
		snap.Lines = append(snap.Lines, *merged[id])
	}
	return snap, nil
}

func unavailable(productID uuid.UUID, product *models.Product) error {
	details := map[string]any{"product_id": productID.String()}
	if product != nil {
		details["name"] = product.Title
	}
	return pkgerrors.New(pkgerrors.CodeProductUnavailable, "product is no longer available").WithDetails(details)
}
