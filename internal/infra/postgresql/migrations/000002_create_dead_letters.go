package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createDeadLettersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_dead_letters",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeadLetterModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_dead_letters_message_id ON dead_letters (message_id)`,
				`CREATE INDEX IF NOT EXISTS idx_dead_letters_created_at ON dead_letters (created_at DESC)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeadLetterModel{})
		},
	}
}
