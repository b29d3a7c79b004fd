package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/http-api/models"
)

const sqlInsertBatch = 100

// SQLStore keeps one row per message plus a header row per room.
// Works on any gorm dialect that ConnectDB migrated.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Load(ctx context.Context, roomID string) ([]chatroom.Message, error) {
	db := s.db.WithContext(ctx)

	var room models.ChatRoom
	if err := db.First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chatroom.ErrNotFound
		}
		return nil, err
	}

	var rows []models.ChatMessage
	if err := db.Where("room_id = ?", roomID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) != room.MessageCount {
		// a writer died between header and rows
		return nil, fmt.Errorf("%w: header says %d messages, found %d",
			chatroom.ErrCorrupt, room.MessageCount, len(rows))
	}

	messages := make([]chatroom.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, fromRow(row))
	}
	return messages, nil
}

// Save replaces the stored log of roomID in one transaction
func (s *SQLStore) Save(ctx context.Context, roomID string, messages []chatroom.Message) error {
	rows := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		rows = append(rows, toRow(roomID, m))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header := models.ChatRoom{ID: roomID, MessageCount: len(rows), UpdatedAt: time.Now()}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"message_count", "updated_at"}),
		}).Create(&header).Error
		if err != nil {
			return fmt.Errorf("upsert chat room: %w", err)
		}

		if err := tx.Where("room_id = ?", roomID).Delete(&models.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("clear chat messages: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, sqlInsertBatch).Error; err != nil {
			return fmt.Errorf("insert chat messages: %w", err)
		}
		return nil
	})
}

// Delete drops a room log and its header
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Delete(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", roomID).Delete(&models.ChatRoom{}).Error
	})
}

func toRow(roomID string, m chatroom.Message) models.ChatMessage {
	row := models.ChatMessage{
		RoomID:    roomID,
		Seq:       m.Seq,
		MessageID: m.ID,
		Sender:    string(m.Sender),
		Text:      m.Text,
		CreatedAt: m.Timestamp,
	}
	if m.Attachment != nil {
		row.MimeType = m.Attachment.MimeType
		row.Attachment = m.Attachment.Data
	}
	return row
}

func fromRow(row models.ChatMessage) chatroom.Message {
	m := chatroom.Message{
		ID:        row.MessageID,
		Seq:       row.Seq,
		Sender:    chatroom.Sender(row.Sender),
		Text:      row.Text,
		Timestamp: row.CreatedAt,
	}
	if row.MimeType != "" || len(row.Attachment) > 0 {
		m.Attachment = &chatroom.Attachment{MimeType: row.MimeType, Data: row.Attachment}
	}
	return m
}
