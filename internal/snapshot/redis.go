// redis.go implements the Redis snapshot backend. The snapshot contract —
// save a whole document under a key, load it back at startup — maps directly
// onto GET/SET, so the implementation is a thin wrapper around go-redis.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis backend settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces snapshot keys so the service can share a Redis
	// instance with other tenants.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RedisStore persists snapshot documents as Redis string values.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a store from config. The connection is lazy; the first
// Save or Load surfaces connectivity errors.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "meddev-qms:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
	}
}

// NewRedisStoreWithClient wraps an existing client, used by tests and by the
// rate limiter wiring that already holds a client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Save stores the document without expiry; snapshots live until overwritten.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("snapshot: redis SET %s: %w", key, err)
	}
	return nil
}

// Load reads the document; redis.Nil is a normal miss.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: redis GET %s: %w", key, err)
	}
	return data, true, nil
}

// Client exposes the underlying Redis client for collaborators that share the
// connection (e.g. the Redis-backed rate limiter).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
