package models

import "time"

// CompletedPayment is the consumed payment-completed event. PaymentRef is the
// gateway's payment id and doubles as the idempotency key for the ledger.
type CompletedPayment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PaymentRef    string    `gorm:"uniqueIndex;size:128;not null" json:"payment_ref"`
	PayerActorID  uint      `gorm:"not null;index" json:"payer_actor_id"`
	EarnerActorID uint      `gorm:"not null;index" json:"earner_actor_id"`
	ListingID     uint      `gorm:"not null;index" json:"listing_id"`
	GrossCents    int64     `gorm:"not null" json:"gross_cents"`
	Currency      string    `gorm:"size:3;not null" json:"currency"`
	CompletedAt   time.Time `gorm:"not null;index" json:"completed_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (CompletedPayment) TableName() string { return "completed_payments" }
