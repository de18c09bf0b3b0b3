// Package inventory holds and returns stock for orders.
package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Line is a quantity of one product to reserve.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Manager reserves, releases and commits stock. Every call runs inside the
// caller's transaction (as a savepoint when one is already open).
type Manager struct{}

// NewManager returns an inventory manager.
func NewManager() *Manager {
	return &Manager{}
}

// Reserve moves stock from available to reserved for every line. Either every
// line is reserved or none is.
func (m *Manager) Reserve(ctx context.Context, db *gorm.DB, orderID uuid.UUID, lines []Line) error {
	if db == nil {
		return errors.New("db required")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range merged {
			res := tx.Model(&models.InventoryItem{}).
				Where("product_id = ? AND available_qty >= ?", line.ProductID, line.Qty).
				Updates(map[string]any{
					"available_qty": gorm.Expr("available_qty - ?", line.Qty),
					"reserved_qty":  gorm.Expr("reserved_qty + ?", line.Qty),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return insufficient(tx, line)
			}

			reservation := models.InventoryReservation{
				OrderID:   orderID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				Status:    enums.ReservationHeld,
			}
			if err := tx.Create(&reservation).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Release returns every held reservation of the order to available stock.
// Released and committed reservations are left alone, so repeating the call is safe.
func (m *Manager) Release(ctx context.Context, db *gorm.DB, orderID uuid.UUID) error {
	return m.settle(ctx, db, orderID, enums.ReservationReleased)
}

// Commit consumes the order's held reservations once the goods have been delivered.
func (m *Manager) Commit(ctx context.Context, db *gorm.DB, orderID uuid.UUID) error {
	return m.settle(ctx, db, orderID, enums.ReservationCommitted)
}

func (m *Manager) settle(ctx context.Context, db *gorm.DB, orderID uuid.UUID, target enums.ReservationStatus) error {
	if db == nil {
		return errors.New("db required")
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held []models.InventoryReservation
		if err := tx.Where("order_id = ? AND status = ?", orderID, enums.ReservationHeld).
			Order("product_id ASC").
			Find(&held).Error; err != nil {
			return err
		}

		for _, reservation := range held {
			res := tx.Model(&models.InventoryReservation{}).
				Where("id = ? AND status = ?", reservation.ID, enums.ReservationHeld).
				Update("status", target)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}

			updates := map[string]any{
				"reserved_qty": gorm.Expr("reserved_qty - ?", reservation.Qty),
			}
			if target == enums.ReservationReleased {
				updates["available_qty"] = gorm.Expr("available_qty + ?", reservation.Qty)
			}
			if err := tx.Model(&models.InventoryItem{}).
				Where("product_id = ?", reservation.ProductID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Reservations lists the reservation rows recorded for an order.
func (m *Manager) Reservations(ctx context.Context, db *gorm.DB, orderID uuid.UUID) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_id ASC").
		Find(&rows).Error
	return rows, err
}

// mergeLines sums quantities per product and orders them by product id so
// concurrent reservations touch rows in the same order.
func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		totals[line.ProductID] += line.Qty
	}

	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Qty: qty})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID.String() < merged[j].ProductID.String()
	})
	return merged, nil
}

func insufficient(tx *gorm.DB, line Line) error {
	details := map[string]any{
		"product_id": line.ProductID.String(),
		"requested":  line.Qty,
	}
	var item models.InventoryItem
	if err := tx.Where("product_id = ?", line.ProductID).Take(&item).Error; err == nil {
		details["available"] = item.AvailableQty
		details["on_hand"] = item.OnHand()
	} else {
		details["available"] = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(details)
}
