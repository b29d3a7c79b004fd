package database

import (
	"fmt"
	"log/slog"

	"geminichat/internal/microservices/http-api/models"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func buildMigrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "2026101401_chat_logs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ChatRoom{}, &models.ChatMessage{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&models.ChatMessage{}, &models.ChatRoom{})
			},
		},
		{
			ID: "2026101402_chat_messages_message_id_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_chat_messages_message_id ON chat_messages (message_id)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_chat_messages_message_id").Error
			},
		},
	}
}

// RunMigrations applies every pending schema migration
func RunMigrations(db *gorm.DB, logger *slog.Logger) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, buildMigrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")
	return nil
}
