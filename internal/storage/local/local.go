// Package local implements the local filesystem export archival backend.
// Suitable for single-node deployments and development; production
// deployments with regulatory retention requirements should prefer the s3
// backend.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/storage"
)

func init() {
	storage.Register("local", func(cfg *config.ExportArchiveConfig) (storage.Backend, error) {
		return New(&cfg.Local)
	})
}

// LocalBackend stores export documents under a base directory.
type LocalBackend struct {
	basePath string
}

// New creates a local archival backend, creating the base directory if
// needed.
func New(cfg *config.LocalExportArchiveConfig) (*LocalBackend, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local export archive base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0700); err != nil {
		return nil, fmt.Errorf("creating export archive directory: %w", err)
	}
	return &LocalBackend{basePath: cfg.BasePath}, nil
}

// Put writes the document atomically via a temp file and rename.
func (b *LocalBackend) Put(ctx context.Context, name string, data []byte, contentType string) (*storage.PutResult, error) {
	path := filepath.Join(b.basePath, filepath.Clean(name))

	tmp, err := os.CreateTemp(b.basePath, ".export-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp export file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("writing export file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("setting export file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("closing export file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("renaming export file: %w", err)
	}

	sum := sha256.Sum256(data)
	return &storage.PutResult{
		Location: path,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}
