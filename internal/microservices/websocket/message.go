package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/http-api/dto"
)

// Message protocol definitions

type MessageType string

const (
	TypeChat    MessageType = "chat"    // message appended to the log; inbound: user sends
	TypeTyping  MessageType = "typing"  // assistant typing indicator changed
	TypeSystem  MessageType = "system"  // notices and errors
	TypeHistory MessageType = "history" // visible window snapshot
	TypeLoading MessageType = "loading" // older page in flight
	TypeOlder   MessageType = "older"   // inbound: reveal one older page
)

// Message structure for WebSocket communication
type Message struct {
	Type      MessageType           `json:"type"`
	RoomID    string                `json:"room_id"`
	Message   *dto.MessageResponse  `json:"message,omitempty"`  // chat frames
	Messages  []dto.MessageResponse `json:"messages,omitempty"` // history frames
	State     *chatroom.ViewState   `json:"state,omitempty"`
	Content   string                `json:"content,omitempty"` // inbound chat text or system notice
	Image     string                `json:"image,omitempty"`   // inbound chat attachment as data URL
	Timestamp time.Time             `json:"timestamp"`
}

// specify the message for system
func NewSystemMessage(roomID, content string) *Message {
	return &Message{
		Type:      TypeSystem,
		RoomID:    roomID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func NewHistoryMessage(roomID string, window []chatroom.Message, state chatroom.ViewState) *Message {
	return &Message{
		Type:      TypeHistory,
		RoomID:    roomID,
		Messages:  dto.FromMessages(window),
		State:     &state,
		Timestamp: time.Now().UTC(),
	}
}

// FromEvent maps a controller event onto the frame broadcast to the room
func FromEvent(e chatroom.Event) *Message {
	state := e.State
	msg := &Message{
		RoomID:    e.RoomID,
		State:     &state,
		Timestamp: time.Now().UTC(),
	}
	switch e.Type {
	case chatroom.EventMessageAppended:
		msg.Type = TypeChat
		if e.Message != nil {
			m := dto.FromMessage(*e.Message)
			msg.Message = &m
		}
	case chatroom.EventTypingStarted, chatroom.EventTypingStopped:
		msg.Type = TypeTyping
	case chatroom.EventLoadingOlder:
		msg.Type = TypeLoading
	case chatroom.EventWindowExpanded:
		msg.Type = TypeHistory
		msg.Messages = dto.FromMessages(e.Window)
	case chatroom.EventPersistFailed:
		msg.Type = TypeSystem
		msg.Content = "messages could not be saved"
	default:
		return nil
	}
	return msg
}

// ToJSON: marshal Message struct to JSON
func (m *Message) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("Failed to marshal message to JSON", "error", err)
		return nil, err
	}
	return data, nil
}

// MessageFromJSON: unmarshal JSON data to Message struct
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
