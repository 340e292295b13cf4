package repository

import (
	"context"
	"errors"
	"time"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FraudSignalFilter struct {
	Type        string
	Severity    string
	ReviewState string
	Limit       int
	Offset      int
}

type FraudRepository struct {
	db *gorm.DB
}

func NewFraudRepository(db *gorm.DB) *FraudRepository {
	return &FraudRepository{db: db}
}

// Insert stores the signal unless one with the same subject, type and time bucket
// already exists. It reports whether a row was written.
func (r *FraudRepository) Insert(ctx context.Context, s *models.FraudSignal) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForSubject returns the subject's signals of one type with a time bucket in [from, to].
func (r *FraudRepository) ListForSubject(ctx context.Context, subject uint, typ string, from, to time.Time) ([]models.FraudSignal, error) {
	var list []models.FraudSignal
	err := r.db.WithContext(ctx).
		Where("subject_actor_id = ? AND type = ? AND time_bucket BETWEEN ? AND ?", subject, typ, from, to).
		Order("time_bucket ASC").
		Find(&list).Error
	return list, err
}

func (r *FraudRepository) GetByID(ctx context.Context, id uint) (*models.FraudSignal, error) {
	var s models.FraudSignal
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSignalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *FraudRepository) List(ctx context.Context, f FraudSignalFilter) ([]models.FraudSignal, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.FraudSignal{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.ReviewState != "" {
		q = q.Where("review_state = ?", f.ReviewState)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []models.FraudSignal
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(f.Offset).Find(&list).Error
	return list, total, err
}

// UpdateReview applies a review transition conditional on the current state.
func (r *FraudRepository) UpdateReview(ctx context.Context, id uint, from, to string, reviewer uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.FraudSignal{}).
		Where("id = ? AND review_state = ?", id, from).
		Updates(map[string]interface{}{
			"review_state": to,
			"reviewed_by":  reviewer,
			"reviewed_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
