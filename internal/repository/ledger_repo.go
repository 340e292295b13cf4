package repository

import (
	"context"
	"time"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"

	"gorm.io/gorm"
)

// LedgerFilter narrows a ledger export. Zero values mean "any".
type LedgerFilter struct {
	RecipientActorID *uint
	State            string
	From             time.Time
	To               time.Time
	Limit            int
	Offset           int
}

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithTx(tx *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// CreateEntries inserts the lines of one split together with their initial state events.
func (r *LedgerRepository) CreateEntries(ctx context.Context, entries []models.CommissionEntry, reason string) error {
	if len(entries) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Create(&entries).Error; err != nil {
		return err
	}
	events := make([]models.CommissionStateEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, models.CommissionStateEvent{
			EntryID: e.ID,
			ToState: e.State,
			Reason:  reason,
		})
	}
	return db.Create(&events).Error
}

func (r *LedgerRepository) ListByPayment(ctx context.Context, paymentID uint) ([]models.CommissionEntry, error) {
	var list []models.CommissionEntry
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("line_no ASC").Find(&list).Error
	return list, err
}

func (r *LedgerRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.CommissionEntry, error) {
	var list []models.CommissionEntry
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&list).Error
	return list, err
}

// ListClearable returns entries in clearing whose clears_at has passed.
func (r *LedgerRepository) ListClearable(ctx context.Context, now time.Time, limit int) ([]models.CommissionEntry, error) {
	var list []models.CommissionEntry
	err := r.db.WithContext(ctx).
		Where("state = ? AND clears_at <= ?", domain.EntryClearing, now).
		Order("clears_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// Transition moves one entry between states and appends the state event.
// The update is conditional on the current state so a concurrent transition
// makes this a no-op, reported as false.
func (r *LedgerRepository) Transition(ctx context.Context, entryID uint, from, to, reason string, extra map[string]interface{}) (bool, error) {
	db := r.db.WithContext(ctx)
	updates := map[string]interface{}{"state": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.Model(&models.CommissionEntry{}).
		Where("id = ? AND state = ?", entryID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	ev := models.CommissionStateEvent{EntryID: entryID, FromState: from, ToState: to, Reason: reason}
	if err := db.Create(&ev).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *LedgerRepository) ListStateEvents(ctx context.Context, entryID uint) ([]models.CommissionStateEvent, error) {
	var list []models.CommissionStateEvent
	err := r.db.WithContext(ctx).Where("entry_id = ?", entryID).Order("id ASC").Find(&list).Error
	return list, err
}

// Export lists entries matching the filter, newest first.
func (r *LedgerRepository) Export(ctx context.Context, f LedgerFilter) ([]models.CommissionEntry, error) {
	q := r.db.WithContext(ctx).Model(&models.CommissionEntry{})
	if f.RecipientActorID != nil {
		q = q.Where("recipient_actor_id = ?", *f.RecipientActorID)
	}
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var list []models.CommissionEntry
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(f.Offset).Find(&list).Error
	return list, err
}
