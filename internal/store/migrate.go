package store

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rmitchellscott/epdkit/internal/logging"
)

// RunMigrations runs any pending database migrations using gormigrate.
// A fresh database takes the auto-migrated schema directly; databases
// created by earlier releases replay the listed steps.
func RunMigrations() error {
	logging.InfoWithComponent(logging.ComponentDatabase, "Running database migrations")

	m := gormigrate.New(DB, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202507150000_add_device_description",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&Device{}, "description") {
					return nil
				}
				return tx.Exec("ALTER TABLE devices ADD COLUMN description TEXT").Error
			},
			Rollback: func(tx *gorm.DB) error {
				// SQLite cannot drop columns in place; leave it.
				return nil
			},
		},
		{
			ID: "202508010000_index_conversion_created_at",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasIndex(&Conversion{}, "CreatedAt") {
					return nil
				}
				return tx.Migrator().CreateIndex(&Conversion{}, "CreatedAt")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropIndex(&Conversion{}, "CreatedAt")
			},
		},
	})

	m.InitSchema(func(tx *gorm.DB) error {
		for _, model := range GetAllModels() {
			if err := tx.AutoMigrate(model); err != nil {
				return fmt.Errorf("failed to migrate %T: %w", model, err)
			}
		}
		return nil
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Pick up model changes not covered by a listed migration.
	for _, model := range GetAllModels() {
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to auto-migrate %T: %w", model, err)
		}
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Migrations completed")
	return nil
}
