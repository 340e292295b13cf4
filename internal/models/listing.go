package models

import (
	"time"

	"gorm.io/gorm"
)

// RevenueListing is the part of a marketplace listing the commission engine reads.
type RevenueListing struct {
	ID                          uint           `gorm:"primaryKey" json:"id"`
	OwnerActorID                uint           `gorm:"not null;index" json:"owner_actor_id"`
	Title                       string         `gorm:"size:255" json:"title"`
	DelegateCommissionToActorID *uint          `gorm:"index" json:"delegate_commission_to_actor_id"`
	CreatedAt                   time.Time      `json:"created_at"`
	UpdatedAt                   time.Time      `json:"updated_at"`
	DeletedAt                   gorm.DeletedAt `gorm:"index" json:"-"`

	Owner Actor `gorm:"foreignKey:OwnerActorID" json:"-"`
}

func (RevenueListing) TableName() string { return "revenue_listings" }
