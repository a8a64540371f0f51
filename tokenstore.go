// Package tokenstore wires a refresh-token store over one of the supported
// backends: memory, Redis, SQLite or Postgres.
package tokenstore

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/tokenstore/adapters/store"
	"github.com/layer-3/tokenstore/config"
	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
	"github.com/layer-3/tokenstore/service"
)

// Store is the public surface of the token store
type Store interface {
	// Create returns the token for value, creating it for ownerID on first use
	Create(ctx context.Context, value, ownerID string) (core.Token, error)

	// Get looks value up among ownerID's tokens
	Get(ctx context.Context, ownerID, value string) (core.Token, bool, error)

	// List returns ownerID's tokens in issuance order
	List(ctx context.Context, ownerID string, page int, paginate bool) ([]core.Token, error)

	// Remove revokes a token
	Remove(ctx context.Context, token core.Token) error
}

// Backend is an opened storage implementation
type Backend struct {
	Repositories ports.Repositories

	// Redis is set for the redis backend so the binary can share the client
	Redis redis.UniversalClient

	close func() error
}

// Close releases the backend's connections
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// NewStore builds the token store over an opened backend
func NewStore(backend *Backend, cfg config.Config, logger watermill.LoggerAdapter) *service.TokenStore {
	return service.NewTokenStore(backend.Repositories, backend.Repositories, service.TokenStoreConfig{
		MaxPageSize: cfg.MaxPageSize,
		PullScope:   cfg.PullScope,
	}, logger)
}

// Open opens the backend selected by cfg
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &Backend{Repositories: store.NewMemoryStore()}, nil

	case config.BackendRedis:
		client, err := DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		redisStore := store.NewRedisStore(client, cfg.RedisPrefix)
		return &Backend{
			Repositories: redisStore,
			Redis:        redisStore.GetClient(),
			close:        redisStore.Close,
		}, nil

	case config.BackendSQLite:
		sqlStore, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Repositories: sqlStore, close: sqlStore.Close}, nil

	case config.BackendPostgres:
		sqlStore, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &Backend{Repositories: sqlStore, close: sqlStore.Close}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// DialRedis parses a Redis URL, connects and pings the server
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", core.ErrStoreUnavailable, err)
	}

	return client, nil
}

var _ Store = (*service.TokenStore)(nil)
