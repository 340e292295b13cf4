package repository

import (
	"context"
	"errors"

	"tutorwise/internal/models"

	"gorm.io/gorm"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) WithTx(tx *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: tx}
}

// GetByOwner returns the actor's code, or nil if none was generated yet.
func (r *ReferralRepository) GetByOwner(ctx context.Context, ownerID uint) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := r.db.WithContext(ctx).Where("owner_actor_id = ?", ownerID).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// GetByCode returns the live code record matching code exactly, or nil.
func (r *ReferralRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Guard against case-insensitive collations.
	if rc.Code != code {
		return nil, nil
	}
	return &rc, nil
}

// CodeExists checks every code ever issued, tombstoned ones included.
func (r *ReferralRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.ReferralCode{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

// Create inserts a code. A duplicate code or owner surfaces as gorm.ErrDuplicatedKey.
func (r *ReferralRepository) Create(ctx context.Context, rc *models.ReferralCode) error {
	return r.db.WithContext(ctx).Create(rc).Error
}

// Tombstone soft-deletes the owner's code; the value stays reserved.
func (r *ReferralRepository) Tombstone(ctx context.Context, ownerID uint) error {
	return r.db.WithContext(ctx).Where("owner_actor_id = ?", ownerID).Delete(&models.ReferralCode{}).Error
}

func (r *ReferralRepository) CreateAttributionRecord(ctx context.Context, rec *models.AttributionRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ReferralRepository) GetAttributionRecord(ctx context.Context, actorID uint) (*models.AttributionRecord, error) {
	var rec models.AttributionRecord
	err := r.db.WithContext(ctx).Where("actor_id = ?", actorID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
