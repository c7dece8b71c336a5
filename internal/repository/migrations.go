package repository

import (
	"fmt"

	"github.com/calctree/engine/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema of every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addRootParentCheck,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// addRootParentCheck makes postgres reject rows whose is_root flag disagrees
// with parent_id. SQLite cannot add constraints to an existing table.
func addRootParentCheck(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_calculations_root_parent') THEN
				ALTER TABLE calculations
					ADD CONSTRAINT chk_calculations_root_parent CHECK ((parent_id IS NULL) = is_root);
			END IF;
		END $$;
	`).Error
}
