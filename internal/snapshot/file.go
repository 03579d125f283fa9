// file.go implements the local filesystem snapshot backend. Intended for
// single-node deployments; multiple service instances would need a shared
// filesystem, in which case the Redis backend is the better fit.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileConfig holds filesystem backend settings.
type FileConfig struct {
	// BasePath is the directory snapshots are written under.
	BasePath string `mapstructure:"base_path"`
}

// FileStore persists snapshot documents as JSON files under a base directory.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if needed and returns a store.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		basePath = "./data"
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: creating directory %s: %w", basePath, err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Save writes the document atomically: to a temp file first, then renamed
// into place, so a crash mid-write never leaves a truncated snapshot.
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("snapshot: creating directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: closing %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("snapshot: renaming %s into place: %w", key, err)
	}
	return nil
}

// Load reads the document for key; a missing file is reported as ok=false.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: reading %s: %w", key, err)
	}
	return data, true, nil
}

// pathFor maps a slash-separated key to a file path under the base directory.
func (s *FileStore) pathFor(key string) string {
	parts := strings.Split(key, "/")
	return filepath.Join(append([]string{s.basePath}, parts...)...) + ".json"
}
