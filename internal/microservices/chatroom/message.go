package chatroom

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message log types for a single chat room

type Sender string

const (
	SenderUser      Sender = "user"      // message typed by the user
	SenderAssistant Sender = "assistant" // simulated AI reply or seeded message
)

// Attachment is an image payload sent together with a user message
type Attachment struct {
	MimeType string `json:"mime_type"` // sniffed content type, e.g. image/png
	Data     []byte `json:"data"`      // raw image bytes (base64 in JSON)
}

// Message is one entry of the append-only room log
type Message struct {
	ID         string      `json:"id"`                   // UUIDv7, unique across rooms
	Seq        int64       `json:"seq"`                  // per-room monotonic counter
	Sender     Sender      `json:"sender"`               // user | assistant
	Text       string      `json:"text"`                 // may be empty only with an attachment
	Timestamp  time.Time   `json:"timestamp"`            // non-decreasing within a room
	Attachment *Attachment `json:"attachment,omitempty"` // user messages only
}

// HasContent reports whether the message carries text or an image
func HasContent(text string, attachment *Attachment) bool {
	return strings.TrimSpace(text) != "" || (attachment != nil && len(attachment.Data) > 0)
}

// newMessageID returns a time ordered, collision resistant identifier.
// uuid.NewV7 only fails when the random source fails; fall back to v4 then.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// cloneMessages returns a deep copy so callers never share the log backing array
func cloneMessages(src []Message) []Message {
	if src == nil {
		return nil
	}
	out := make([]Message, len(src))
	for i, m := range src {
		out[i] = m
		if m.Attachment != nil {
			att := *m.Attachment
			att.Data = append([]byte(nil), m.Attachment.Data...)
			out[i].Attachment = &att
		}
	}
	return out
}

// isOrdered checks the append-only invariant of a loaded log
func isOrdered(log []Message) bool {
	for i := 1; i < len(log); i++ {
		if log[i].Timestamp.Before(log[i-1].Timestamp) {
			return false
		}
		if log[i].Seq != 0 && log[i].Seq <= log[i-1].Seq {
			return false
		}
	}
	return true
}
