package storage

import (
	"context"
	"fmt"
	"log/slog"

	"geminichat/database"
	"geminichat/internal/config"
	"geminichat/internal/microservices/chatroom"
)

// Open builds the store selected by STORE_BACKEND. The returned func
// releases its connections.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Instrumented, func() error, error) {
	noop := func() error { return nil }

	var (
		store   chatroom.Store
		closeFn = noop
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store = NewMemoryStore(cfg.MemoryStoreSize, cfg.StoreTTL)

	case config.BackendRedis:
		rs, err := NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.StoreTTL)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = rs, rs.Close

	case config.BackendSQLite, config.BackendPostgres:
		db, err := database.ConnectDB(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		store = NewSQLStore(db)
		closeFn = func() error { return database.Close(db) }

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	logger.Info("chat_store_opened", "backend", cfg.StoreBackend)
	return Instrument(store, cfg.StoreBackend), closeFn, nil
}
