package repository

import (
	"context"
	"errors"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"

	"gorm.io/gorm"
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) WithTx(tx *gorm.DB) *ListingRepository {
	return &ListingRepository{db: tx}
}

func (r *ListingRepository) Create(ctx context.Context, l *models.RevenueListing) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *ListingRepository) GetByID(ctx context.Context, id uint) (*models.RevenueListing, error) {
	var l models.RevenueListing
	err := r.db.WithContext(ctx).First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SetDelegate stores or clears (nil) the commission delegate.
func (r *ListingRepository) SetDelegate(ctx context.Context, id uint, delegateID *uint) error {
	return r.db.WithContext(ctx).Model(&models.RevenueListing{}).
		Where("id = ?", id).
		Update("delegate_commission_to_actor_id", delegateID).Error
}
