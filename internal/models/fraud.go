package models

import (
	"time"

	"gorm.io/datatypes"
)

// FraudSignal is raised by the detector and reviewed outside the engine.
// (SubjectActorID, Type, TimeBucket) is unique so re-running a scan never duplicates a signal.
type FraudSignal struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	SubjectActorID uint           `gorm:"not null;uniqueIndex:idx_signal_dedupe" json:"subject_actor_id"`
	Type           string         `gorm:"size:32;not null;uniqueIndex:idx_signal_dedupe" json:"type"`
	TimeBucket     time.Time      `gorm:"not null;uniqueIndex:idx_signal_dedupe" json:"time_bucket"`
	Severity       string         `gorm:"size:16;not null;index" json:"severity"`
	Evidence       datatypes.JSON `json:"evidence"`
	ReviewState    string         `gorm:"size:20;not null;default:'open';index" json:"review_state"`
	ReviewedBy     *uint          `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (FraudSignal) TableName() string { return "fraud_signals" }

// SignupEvent captures what the attribution resolver saw for one signup.
type SignupEvent struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ActorID           uint      `gorm:"not null;uniqueIndex" json:"actor_id"`
	ClaimedCode       string    `gorm:"size:64;index" json:"claimed_code"`
	CodeOwnerActorID  *uint     `json:"code_owner_actor_id"`
	ReferrerActorID   *uint     `gorm:"index" json:"referrer_actor_id"`
	Method            string    `gorm:"size:20;not null" json:"method"`
	ClientIP          string    `gorm:"size:45;index" json:"client_ip"`
	DeviceFingerprint string    `gorm:"size:128;index" json:"device_fingerprint"`
	UserAgent         string    `gorm:"size:512" json:"user_agent"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
}

func (SignupEvent) TableName() string { return "signup_events" }
