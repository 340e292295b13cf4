package repository

import (
	"context"
	"errors"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// Create inserts the payment. A second insert for the same PaymentRef fails
// with domain.ErrDuplicatePayment; this is the ledger's idempotency guard.
func (r *PaymentRepository) Create(ctx context.Context, p *models.CompletedPayment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicatePayment
	}
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*models.CompletedPayment, error) {
	var p models.CompletedPayment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByRef(ctx context.Context, ref string) (*models.CompletedPayment, error) {
	var p models.CompletedPayment
	err := r.db.WithContext(ctx).Where("payment_ref = ?", ref).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
