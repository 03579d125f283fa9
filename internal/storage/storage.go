// Package storage defines the Backend interface and factory for export
// archival backends. Audit trail exports can be archived to durable storage
// at export time, giving each regulatory submission an immutable copy outside
// the service.
//
// New backends are added by implementing the Backend interface and registering
// with the factory via an init() function in the backend's own package. The
// main package imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"fmt"

	"github.com/meddev-qms/meddev-qms/internal/config"
)

// Backend stores export documents.
type Backend interface {
	// Put writes a named document and returns where it was stored.
	Put(ctx context.Context, name string, data []byte, contentType string) (*PutResult, error)
}

// PutResult describes a stored export document.
type PutResult struct {
	// Location is the backend-specific address of the stored document
	// (filesystem path or object URI).
	Location string

	// Size is the document size in bytes.
	Size int64

	// Checksum is the SHA256 hash of the document contents.
	Checksum string
}

// Factory creates a backend from the export archive configuration.
type Factory func(cfg *config.ExportArchiveConfig) (Backend, error)

var factories = make(map[string]Factory)

// Register adds a backend factory under a name. Called from backend package
// init() functions.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// New creates the configured backend.
func New(cfg *config.ExportArchiveConfig) (Backend, error) {
	factory, ok := factories[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown export archive backend: %s", cfg.Backend)
	}
	return factory(cfg)
}
