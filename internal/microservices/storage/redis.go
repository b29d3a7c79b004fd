package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"geminichat/internal/microservices/chatroom"
)

// RedisStore keeps each room log as one JSON string value under Key(roomID)
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // 0 means no expiry
}

// NewRedisStore connects using a redis:// URL and verifies the connection
func NewRedisStore(ctx context.Context, redisURL, password string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, roomID string) ([]chatroom.Message, error) {
	blob, err := s.client.Get(ctx, Key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, chatroom.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(blob)
}

func (s *RedisStore) Save(ctx context.Context, roomID string, messages []chatroom.Message) error {
	blob, err := encode(messages)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(roomID), blob, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, Key(roomID)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
