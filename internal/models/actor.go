package models

import (
	"time"

	"gorm.io/gorm"
)

// Actor is a marketplace profile. One actor can earn, refer, or both.
// ReferredByActorID and AttributionMethod are written once, when AttributedAt is set.
type Actor struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Email             string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash      string         `gorm:"size:255" json:"-"`
	DisplayName       string         `gorm:"size:128" json:"display_name"`
	CanEarn           bool           `gorm:"not null" json:"can_earn"`
	CanRefer          bool           `gorm:"not null" json:"can_refer"`
	IsAdmin           bool           `gorm:"not null;default:false" json:"-"`
	ReferredByActorID *uint          `gorm:"index" json:"referred_by_actor_id"`
	AttributionMethod string         `gorm:"size:20;not null;default:'none'" json:"attribution_method"`
	AttributedAt      *time.Time     `json:"attributed_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Actor) TableName() string { return "actors" }

// IsAttributed reports whether attribution already ran for this actor, organic or not.
func (a *Actor) IsAttributed() bool { return a.AttributedAt != nil }
