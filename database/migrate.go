package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nimbus_backend/internal/config"
	"nimbus_backend/internal/models"
)

var gormDB *gorm.DB

// ConnectGorm opens the shared GORM handle using the configured DSN.
func ConnectGorm() (*gorm.DB, error) {
	if gormDB != nil {
		return gormDB, nil
	}

	cfg := config.GetConfig()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to GORM: %w", err)
	}

	gormDB = db
	return db, nil
}

// AutoMigrate creates or updates the schema for every model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.MembershipPlan{},
		&models.UserMembership{},
		&models.PaymentRecord{},
		&models.UserUsageLimit{},
		&models.WebhookEvent{},
	)
}
