package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore is a filesystem implementation of Store with one JSON file per
// key under a configurable root directory.
//
// Filenames are the key with ':' and '/' replaced by '_', plus a ".json"
// suffix, so the persisted layout reads naturally:
//
//	pipeline_run_history.json
//	pipeline_state_current_version.json
//	state_v<run_id>_<component>.json
//	<run_id>_<component>.json
//	<run_id>_<component>_status.json
//
// Writes go through a temporary file and rename so readers never observe a
// partially written value. FileStore is thread-safe; all operations are
// serialized per instance.
type FileStore struct {
	mu   sync.Mutex
	root string
}

// NewFileStore creates (if needed) the root directory and returns a store
// over it.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's directory.
func (f *FileStore) Root() string {
	return f.root
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.root, EncodeFilename(key)+".json")
}

// Add writes value under key, honoring the overwrite flag.
func (f *FileStore) Add(_ context.Context, key string, value []byte, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return ErrKeyExists
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}

// Get returns the value under key, or ErrNotFound.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Delete removes key, or fails with ErrNotFound.
func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// ListKeys returns the filename stems of all stored entries. Because the
// filename encoding is not invertible, stems are returned in encoded form
// (':' and '/' appear as '_').
func (f *FileStore) ListKeys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}
