package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/institutovalente/registry-bridge/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_integration_configs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ConfigModel{}); err != nil {
					return err
				}
				// Partial unique index: at most one active config at a time.
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_configs_single_active ON integration_configs ((is_active)) WHERE is_active`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ConfigModel{})
			},
		},
		{
			ID: "000002_create_integration_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.AttemptModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_attempts_status_created ON integration_attempts (status, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_attempts_user_id ON integration_attempts (user_id)`,
					`CREATE INDEX IF NOT EXISTS idx_attempts_due_retry ON integration_attempts (next_eligible_at) WHERE status = 'retry'`,
					`CREATE INDEX IF NOT EXISTS idx_attempts_stale_pending ON integration_attempts (updated_at) WHERE status = 'pending'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.AttemptModel{})
			},
		},
	})

	return m.Migrate()
}
