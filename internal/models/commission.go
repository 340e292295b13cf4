package models

import "time"

// CommissionEntry is one ledger line of a payment split. Amount, recipient and
// role never change after insert; corrections are appended as reversal lines.
type CommissionEntry struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	PaymentID         uint       `gorm:"not null;uniqueIndex:idx_entry_payment_line" json:"payment_id"`
	LineNo            int        `gorm:"not null;uniqueIndex:idx_entry_payment_line" json:"line_no"`
	Kind              string     `gorm:"size:10;not null" json:"kind"`
	RecipientActorID  *uint      `gorm:"index" json:"recipient_actor_id"` // nil = platform
	Role              string     `gorm:"size:32;not null" json:"role"`
	Tier              int        `gorm:"not null;default:0" json:"tier"`
	AmountCents       int64      `gorm:"not null" json:"amount_cents"`
	Currency          string     `gorm:"size:3;not null" json:"currency"`
	RateApplied       string     `gorm:"size:16" json:"rate_applied"`
	State             string     `gorm:"size:16;not null;index" json:"state"`
	ClearsAt          *time.Time `gorm:"index" json:"clears_at"`
	ReversalOfEntryID *uint      `json:"reversal_of_entry_id,omitempty"`
	PayoutRef         string     `gorm:"size:64;index" json:"payout_ref,omitempty"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Payment CompletedPayment `gorm:"foreignKey:PaymentID" json:"-"`
}

func (CommissionEntry) TableName() string { return "commission_entries" }

// CommissionStateEvent is the append-only history of entry state changes.
type CommissionStateEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EntryID   uint      `gorm:"not null;index" json:"entry_id"`
	FromState string    `gorm:"size:16" json:"from_state"`
	ToState   string    `gorm:"size:16;not null" json:"to_state"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (CommissionStateEvent) TableName() string { return "commission_state_events" }
