package storage

import (
	"encoding/json"
	"fmt"

	"geminichat/internal/microservices/chatroom"
)

const keyPrefix = "chat-messages-"

// Key is the storage key of one room log, shared by every key/value backend
func Key(roomID string) string {
	return keyPrefix + roomID
}

// encode serialises a whole room log. Attachment bytes become base64.
func encode(messages []chatroom.Message) ([]byte, error) {
	if messages == nil {
		messages = []chatroom.Message{}
	}
	return json.Marshal(messages)
}

func decode(blob []byte) ([]chatroom.Message, error) {
	var messages []chatroom.Message
	if err := json.Unmarshal(blob, &messages); err != nil {
		return nil, fmt.Errorf("%w: %w", chatroom.ErrCorrupt, err)
	}
	if messages == nil {
		// a stored JSON null is not a log
		return nil, fmt.Errorf("%w: null log", chatroom.ErrCorrupt)
	}
	return messages, nil
}
