package models

import "time"

// ChatRoom is the header row of a persisted room log
type ChatRoom struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	MessageCount int       `gorm:"not null;default:0" json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

type ChatMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID     string    `gorm:"size:64;not null;uniqueIndex:idx_chat_messages_room_seq,priority:1" json:"room_id"`
	Seq        int64     `gorm:"not null;uniqueIndex:idx_chat_messages_room_seq,priority:2" json:"seq"`
	MessageID  string    `gorm:"size:64;not null" json:"message_id"`
	Sender     string    `gorm:"size:16;not null" json:"sender"`
	Text       string    `gorm:"type:text" json:"text"`
	MimeType   string    `gorm:"size:128" json:"mime_type,omitempty"`
	Attachment []byte    `json:"attachment,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`

	// Associations
	Room *ChatRoom `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
