package database

import (
	"tutorwise/config"
	"tutorwise/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		TranslateError: true,                                 // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Models lists every table owned by the engine.
func Models() []interface{} {
	return []interface{}{
		&models.Actor{},
		&models.ReferralCode{},
		&models.AttributionRecord{},
		&models.RevenueListing{},
		&models.CompletedPayment{},
		&models.CommissionEntry{},
		&models.CommissionStateEvent{},
		&models.FraudSignal{},
		&models.SignupEvent{},
		&models.SystemSetting{},
		&models.AuditLog{},
	}
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	if db.Dialector.Name() == "mysql" {
		// Referral codes are case-sensitive; the default MySQL collation is not.
		return db.Exec("ALTER TABLE referral_codes MODIFY code VARCHAR(16) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL").Error
	}
	return nil
}
