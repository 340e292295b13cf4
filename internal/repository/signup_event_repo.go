package repository

import (
	"context"
	"time"

	"tutorwise/internal/models"

	"gorm.io/gorm"
)

type SignupEventRepository struct {
	db *gorm.DB
}

func NewSignupEventRepository(db *gorm.DB) *SignupEventRepository {
	return &SignupEventRepository{db: db}
}

func (r *SignupEventRepository) WithTx(tx *gorm.DB) *SignupEventRepository {
	return &SignupEventRepository{db: tx}
}

func (r *SignupEventRepository) Create(ctx context.Context, e *models.SignupEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// ListBetween returns events with from <= created_at < to, oldest first.
func (r *SignupEventRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.SignupEvent, error) {
	var list []models.SignupEvent
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

// ListByReferrersBetween returns attributed events for the given referrers in [from, to).
func (r *SignupEventRepository) ListByReferrersBetween(ctx context.Context, referrerIDs []uint, from, to time.Time) ([]models.SignupEvent, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}
	var list []models.SignupEvent
	err := r.db.WithContext(ctx).
		Select("id", "referrer_actor_id", "created_at").
		Where("referrer_actor_id IN ? AND created_at >= ? AND created_at < ?", referrerIDs, from, to).
		Find(&list).Error
	return list, err
}
