// This file implements a Redis-backed session store. Redis is a natural
// fit for ephemeral sessions: records carry a TTL matching SessionTTL, so
// the server reclaims idle sessions on its own.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// redisKeyPrefix namespaces session keys in a shared Redis instance.
const redisKeyPrefix = "surveypipe:session:"

// RedisStore persists sessions in Redis with a server-side TTL.
//
// Per-user write serialization is in-process, so a deployment must route
// all events for one user to the same instance (the dispatcher's per-user
// queues already guarantee this within an instance).
type RedisStore struct {
	*store
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store from a redis:// URL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("session.NewRedisStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("session.RedisStore DSN not set")
		return nil, fmt.Errorf("redis DSN not set")
	}

	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("session.RedisStore invalid DSN", "error", err)
		return nil, fmt.Errorf("invalid redis DSN: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("session.RedisStore ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Info("session.RedisStore ready", "addr", redisOpts.Addr)

	b := &redisBackend{client: client}
	return &RedisStore{store: newStore(b), client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) load(ctx context.Context, userID string) (*ConversationState, error) {
	raw, err := b.client.Get(ctx, redisKeyPrefix+userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var state ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &state, nil
}

func (b *redisBackend) save(ctx context.Context, state *ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	// The key TTL mirrors the lazy-expiry window, so Redis drops what the
	// store would ignore anyway.
	if err := b.client.Set(ctx, redisKeyPrefix+state.UserID, raw, SessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (b *redisBackend) delete(ctx context.Context, userID string) error {
	if err := b.client.Del(ctx, redisKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
