package models

import (
	"time"

	"gorm.io/gorm"
)

// ReferralCode is the unique attribution code owned by an actor.
// Each actor has exactly one code. Codes are tombstoned, never deleted, so they are never reissued.
type ReferralCode struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	OwnerActorID uint           `gorm:"uniqueIndex;not null" json:"owner_actor_id"`
	Code         string         `gorm:"uniqueIndex;size:16;not null" json:"code"`
	CreatedAt    time.Time      `json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Owner Actor `gorm:"foreignKey:OwnerActorID" json:"-"`
}

func (ReferralCode) TableName() string { return "referral_codes" }

// AttributionRecord is the audit trail of an actor's referral binding.
type AttributionRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ActorID         uint      `gorm:"uniqueIndex;not null" json:"actor_id"`
	ReferrerActorID *uint     `gorm:"index" json:"referrer_actor_id"`
	Method          string    `gorm:"size:20;not null" json:"method"`
	Code            string    `gorm:"size:64" json:"code"`
	Version         int       `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

func (AttributionRecord) TableName() string { return "attribution_records" }
