// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"testing"

	"tutorwise/internal/database"
	"tutorwise/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. A single connection keeps
// every query on the same in-memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// CreateActor inserts an actor, optionally already bound to a referrer.
func CreateActor(t *testing.T, db *gorm.DB, email string, referredBy *uint) *models.Actor {
	t.Helper()
	a := &models.Actor{Email: email, DisplayName: email, CanEarn: true, CanRefer: true, AttributionMethod: "none"}
	if referredBy != nil {
		a.ReferredByActorID = referredBy
		a.AttributionMethod = "manual_entry"
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// CreateListing inserts a listing owned by ownerID with an optional delegate.
func CreateListing(t *testing.T, db *gorm.DB, ownerID uint, delegate *uint) *models.RevenueListing {
	t.Helper()
	l := &models.RevenueListing{OwnerActorID: ownerID, Title: "GCSE Maths", DelegateCommissionToActorID: delegate}
	require.NoError(t, db.Create(l).Error)
	return l
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
