package chatroom

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("chat log not found")     // store has no entry for the room
	ErrCorrupt  = errors.New("chat log is corrupt")     // stored entry could not be decoded
	ErrPersist  = errors.New("chat log persistence failed")
	ErrClosed   = errors.New("chat room view is closed")
)

// Store is the persistence capability shared by every view of a room.
// One entry per room holds the whole ordered log; writes are last-writer-wins.
// Implementations must not retain the slice passed to Save.
type Store interface {
	// Load returns ErrNotFound when nothing is stored and ErrCorrupt when
	// the stored value is malformed.
	Load(ctx context.Context, roomID string) ([]Message, error)
	Save(ctx context.Context, roomID string, messages []Message) error
}
