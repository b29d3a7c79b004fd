package dto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"geminichat/internal/microservices/chatroom"
)

// MaxImageBytes bounds a decoded attachment
const MaxImageBytes = 5 << 20

var (
	ErrInvalidDataURL = errors.New("image must be a base64 data URL")
	ErrNotImage       = errors.New("attachment is not an image")
	ErrImageTooLarge  = errors.New("image exceeds the size limit")
)

// SendMessageRequest for posting a user message; Image is a data URL as
// produced by a browser FileReader
type SendMessageRequest struct {
	Text  string `json:"text" binding:"max=8000"`
	Image string `json:"image,omitempty"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image,omitempty"`
}

// WindowResponse is the visible part of a room plus the view flags
type WindowResponse struct {
	Messages []MessageResponse  `json:"messages"`
	State    chatroom.ViewState `json:"state"`
}

type SendMessageResponse struct {
	Message   MessageResponse    `json:"message"`
	State     chatroom.ViewState `json:"state"`
	Persisted bool               `json:"persisted"`
}

func FromMessage(m chatroom.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		Seq:       m.Seq,
		Sender:    string(m.Sender),
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
	if m.Attachment != nil && len(m.Attachment.Data) > 0 {
		resp.Image = FormatDataURL(m.Attachment)
	}
	return resp
}

func FromMessages(messages []chatroom.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, FromMessage(m))
	}
	return out
}

func NewWindowResponse(window []chatroom.Message, state chatroom.ViewState) WindowResponse {
	return WindowResponse{Messages: FromMessages(window), State: state}
}

// ParseDataURL decodes "data:<type>;base64,<payload>". The declared type is
// ignored; the content is sniffed and must be an image.
func ParseDataURL(s string) (*chatroom.Attachment, error) {
	if s == "" {
		return nil, nil
	}
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrInvalidDataURL
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+3 {
		return nil, ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	return &chatroom.Attachment{MimeType: mt.String(), Data: data}, nil
}

func FormatDataURL(att *chatroom.Attachment) string {
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = mimetype.Detect(att.Data).String()
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
}
