package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
)

// RefundStore persists refund results so a repeated refund replays the first one.
type RefundStore interface {
	Find(ctx context.Context, gatewayPaymentID, idempotencyKey string) (*models.PaymentRefund, error)
	Save(ctx context.Context, refund *models.PaymentRefund) error
}

type gormRefundStore struct {
	db *gorm.DB
}

// NewRefundStore returns a RefundStore backed by the payment_refunds table.
func NewRefundStore(conn *gorm.DB) RefundStore {
	return &gormRefundStore{db: conn}
}

// Find returns nil without error when no refund has been recorded.
func (s *gormRefundStore) Find(ctx context.Context, gatewayPaymentID, idempotencyKey string) (*models.PaymentRefund, error) {
	var refund models.PaymentRefund
	err := s.db.WithContext(ctx).
		Where("gateway_payment_id = ? AND idempotency_key = ?", gatewayPaymentID, idempotencyKey).
		Take(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// Save inserts the refund. A concurrent insert of the same key is not an error.
func (s *gormRefundStore) Save(ctx context.Context, refund *models.PaymentRefund) error {
	err := s.db.WithContext(ctx).Create(refund).Error
	if db.IsUniqueViolation(err, "") {
		return nil
	}
	return err
}
