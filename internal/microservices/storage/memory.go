package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"

	"geminichat/internal/microservices/chatroom"
)

const defaultMemorySize = 1024

// MemoryStore keeps encoded room logs in a bounded LRU. Least recently used
// rooms are evicted once size is reached, like a browser clearing storage.
type MemoryStore struct {
	cache gcache.Cache
	ttl   time.Duration
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &MemoryStore{
		cache: gcache.New(size).LRU().Build(),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Load(ctx context.Context, roomID string) ([]chatroom.Message, error) {
	val, err := s.cache.Get(Key(roomID))
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, chatroom.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	blob, ok := val.([]byte)
	if !ok {
		return nil, chatroom.ErrCorrupt
	}
	return decode(blob)
}

func (s *MemoryStore) Save(ctx context.Context, roomID string, messages []chatroom.Message) error {
	blob, err := encode(messages)
	if err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.cache.SetWithExpire(Key(roomID), blob, s.ttl)
	}
	return s.cache.Set(Key(roomID), blob)
}

// Delete drops a room log
func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.cache.Remove(Key(roomID))
	return nil
}

// Len reports how many room logs are held
func (s *MemoryStore) Len() int {
	return s.cache.Len(true)
}
