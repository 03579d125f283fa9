package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/meddev-qms/meddev-qms/internal/snapshot"
)

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	store, err := snapshot.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	want := []byte(`{"entries":[]}`)
	if err := store.Save(context.Background(), "audit-trail", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := store.Load(context.Background(), "audit-trail")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("Load reported missing after Save")
	}
	if string(got) != string(want) {
		t.Errorf("Load = %q, want %q", got, want)
	}
}

func TestFileStore_MissingKey(t *testing.T) {
	store, err := snapshot.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	_, ok, err := store.Load(context.Background(), "never-saved")
	if err != nil {
		t.Errorf("Load on missing key: %v", err)
	}
	if ok {
		t.Error("Load reported ok for missing key")
	}
}

func TestFileStore_OverwriteReplaces(t *testing.T) {
	store, err := snapshot.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "doc", []byte("first")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, "doc", []byte("second")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, _ := store.Load(ctx, "doc")
	if string(got) != "second" {
		t.Errorf("Load = %q, want second", got)
	}
}

func TestFileStore_NestedKey(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "tenants/acme/state", []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tenants", "acme", "state.json")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "tenants/acme/state"); !ok {
		t.Error("nested key not loadable")
	}
}

func TestFileStore_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does", "not", "exist")
	if _, err := snapshot.NewFileStore(dir); err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("base dir not created: %v", err)
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	store, err := snapshot.New(snapshot.Config{
		Backend: "file",
		File:    snapshot.FileConfig{BasePath: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("New(file): %v", err)
	}
	if _, ok := store.(*snapshot.FileStore); !ok {
		t.Errorf("New(file) = %T, want *FileStore", store)
	}

	if _, err := snapshot.New(snapshot.Config{Backend: "etcd"}); err == nil {
		t.Error("New(etcd) = nil error, want unknown backend error")
	}
}
