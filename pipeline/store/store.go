// Package store provides the keyed persistence layer for pipeline results,
// node statuses, run history, and versioned component state.
//
// A Store is an asynchronous map of opaque JSON documents. Four
// implementations share the contract: MemStore (process-local), FileStore
// (one JSON file per key), SQLiteStore (single-file database) and MySQLStore
// (shared server). All operations on one instance behave as if serialized
// under a single mutex.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get and Delete when the key is absent.
var ErrNotFound = errors.New("key not found")

// ErrKeyExists is returned by Add when overwrite is false and the key is
// already present. It is the only non-I/O error kind a Store produces.
var ErrKeyExists = errors.New("key already exists")

// Store is an asynchronous keyed store of opaque serialized values.
type Store interface {
	// Add writes value under key. If overwrite is false and the key is
	// present, Add fails with ErrKeyExists.
	Add(ctx context.Context, key string, value []byte, overwrite bool) error

	// Get returns the value under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Missing keys fail with ErrNotFound.
	Delete(ctx context.Context, key string) error

	// ListKeys returns all present keys in unspecified order.
	ListKeys(ctx context.Context) ([]string, error)
}

// Semantic keys built by the engine. Key segments are joined with ':'; the
// FileStore maps keys to filenames by replacing ':' and '/' with '_'.
const (
	// RunHistoryKey holds the serialized run log.
	RunHistoryKey = "pipeline:run_history"

	// CurrentVersionKey points at the active state version.
	CurrentVersionKey = "pipeline:state:current_version"

	// PreviousVersionKey points at the state version before the active one.
	PreviousVersionKey = "pipeline:state:previous_version"
)

// ResultKey returns the key of a node's serialized result for one run.
func ResultKey(runID, component string) string {
	return runID + ":" + component
}

// StatusKey returns the key of a node's status for one run.
func StatusKey(runID, component string) string {
	return ResultKey(runID, component) + ":status"
}

// StateKey returns the key of one component's entry in a state version.
func StateKey(version, component string) string {
	return "state:v" + version + ":" + component
}

// EncodeFilename derives a filename stem from a key by replacing ':' and '/'
// with '_'. The engine's key shapes (uuid run ids, component names, fixed
// "pipeline:" and "state:" prefixes) keep the mapping injective; component
// names containing '_' can collide with ':' separated variants and should be
// avoided with the FileStore.
func EncodeFilename(key string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(key)
}
