// Package snapshot provides the durable key/document store used to persist
// in-memory state (the compliance state document and the audit trail document)
// after every mutation and to rehydrate it at process start. Persistence is
// best-effort by design: callers log and swallow save failures, and in-memory
// state remains authoritative. Two backends exist — local files for
// single-node deployments and Redis where a shared store is wanted — selected
// from configuration the same way throughout the service.
package snapshot

import (
	"context"
	"fmt"
)

// Store persists opaque documents by key.
type Store interface {
	// Save durably writes data under key, replacing any previous document.
	Save(ctx context.Context, key string, data []byte) error
	// Load reads the document stored under key. ok is false when no document
	// exists; that is a normal miss, not an error.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
}

// Config selects and configures a snapshot backend.
type Config struct {
	Backend string      `mapstructure:"backend"`
	File    FileConfig  `mapstructure:"file"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// New builds the snapshot store named by cfg.Backend ("file" or "redis").
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.File.BasePath)
	case "redis":
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown backend %q (must be file or redis)", cfg.Backend)
	}
}
