package repository

import (
	"context"
	"errors"
	"time"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"

	"gorm.io/gorm"
)

type ActorRepository struct {
	db *gorm.DB
}

func NewActorRepository(db *gorm.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ActorRepository) WithTx(tx *gorm.DB) *ActorRepository {
	return &ActorRepository{db: tx}
}

func (r *ActorRepository) Create(ctx context.Context, a *models.Actor) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailExists
	}
	return err
}

func (r *ActorRepository) GetByID(ctx context.Context, id uint) (*models.Actor, error) {
	var a models.Actor
	err := r.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrActorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ActorRepository) GetByEmail(ctx context.Context, email string) (*models.Actor, error) {
	var a models.Actor
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrActorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ReferrerOf returns who referred the actor, or nil when organic or unknown.
// Tombstoned actors still count so chains stay walkable after deletion.
func (r *ActorRepository) ReferrerOf(ctx context.Context, actorID uint) (*uint, error) {
	var a models.Actor
	err := r.db.WithContext(ctx).Unscoped().Select("id", "referred_by_actor_id").First(&a, actorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.ReferredByActorID, nil
}

// BindAttribution writes the referral binding only if none was written before.
// It reports false when the actor was already attributed, which callers treat as a no-op.
func (r *ActorRepository) BindAttribution(ctx context.Context, actorID uint, referrerID *uint, method string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Actor{}).
		Where("id = ? AND attributed_at IS NULL AND referred_by_actor_id IS NULL", actorID).
		Updates(map[string]interface{}{
			"referred_by_actor_id": referrerID,
			"attribution_method":   method,
			"attributed_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListReferredBy returns actors whose direct referrer is referrerID.
func (r *ActorRepository) ListReferredBy(ctx context.Context, referrerID uint, limit, offset int) ([]models.Actor, error) {
	var list []models.Actor
	err := r.db.WithContext(ctx).Where("referred_by_actor_id = ?", referrerID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&list).Error
	return list, err
}
