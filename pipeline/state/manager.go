// Package state manages versioned per-component pipeline state with a
// two-phase commit.
//
// Each run stages component state in memory; Commit writes every staged
// entry under "state:v<run_id>:<component>" and only then flips the
// previous/current version pointers. Readers therefore see either the old
// version or the complete new one, never a partial write — the pointer flip
// is the commit.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/pipeflow-go/pipeline/store"
)

// ErrNoPendingVersion is returned by stage/commit calls outside a
// PrepareVersion/Commit window.
var ErrNoPendingVersion = errors.New("no pending state version")

// Manager provides versioned access to per-component state.
//
// Between PrepareVersion and either CommitVersion or DiscardPending the
// currently visible state is unchanged; a crash in that window leaves the
// previous version intact because only CommitVersion moves the pointers.
// Manager is safe for concurrent staging from node goroutines.
type Manager struct {
	store store.Store

	mu      sync.Mutex
	pending string // run id of the version being staged; "" when idle
	staged  map[string]map[string]any
}

// NewManager creates a manager over the given store.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st}
}

// CurrentVersion returns the active version id, or "" when no version has
// ever been committed.
func (m *Manager) CurrentVersion(ctx context.Context) (string, error) {
	return m.readPointer(ctx, store.CurrentVersionKey)
}

// PreviousVersion returns the version id that was active before the current
// one, or "".
func (m *Manager) PreviousVersion(ctx context.Context) (string, error) {
	return m.readPointer(ctx, store.PreviousVersionKey)
}

func (m *Manager) readPointer(ctx context.Context, key string) (string, error) {
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var version string
	if err := json.Unmarshal(raw, &version); err != nil {
		return "", fmt.Errorf("corrupt state pointer %q: %w", key, err)
	}
	return version, nil
}

// ComponentState reads the named component's state from the current version.
// Returns nil when no version is committed or the component has no entry.
func (m *Manager) ComponentState(ctx context.Context, name string) (map[string]any, error) {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, nil
	}
	raw, err := m.store.Get(ctx, store.StateKey(version, name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("corrupt state for component %q: %w", name, err)
	}
	return state, nil
}

// PrepareVersion starts a pending version keyed by runID. A pending version
// left over from an earlier failed run is discarded.
func (m *Manager) PrepareVersion(_ context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = runID
	m.staged = make(map[string]map[string]any)
	return nil
}

// StageComponentState buffers a component's state for the pending version.
// Nothing is written until CommitVersion.
func (m *Manager) StageComponentState(name string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == "" {
		return ErrNoPendingVersion
	}
	m.staged[name] = state
	return nil
}

// CommitVersion writes every staged entry under the pending version, carries
// forward current-version entries of components that staged nothing this run,
// and only then updates the previous and current pointers. Committing with
// nothing staged still advances the version so later runs observe strictly
// later state.
func (m *Manager) CommitVersion(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	staged := m.staged
	m.mu.Unlock()

	if pending == "" {
		return ErrNoPendingVersion
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for name, componentState := range staged {
		raw, err := json.Marshal(componentState)
		if err != nil {
			return fmt.Errorf("failed to serialize state for %q: %w", name, err)
		}
		if err := m.store.Add(ctx, store.StateKey(pending, name), raw, true); err != nil {
			return fmt.Errorf("failed to write state for %q: %w", name, err)
		}
	}

	// A short-circuited run stages state only for the components that ran;
	// the rest keep their entries from the outgoing version.
	if current != "" {
		if err := m.carryForward(ctx, current, pending, staged); err != nil {
			return err
		}
	}
	if err := m.writePointer(ctx, store.PreviousVersionKey, current); err != nil {
		return err
	}
	if err := m.writePointer(ctx, store.CurrentVersionKey, pending); err != nil {
		return err
	}

	m.mu.Lock()
	m.pending = ""
	m.staged = nil
	m.mu.Unlock()
	return nil
}

// DiscardPending drops the staged buffer without any writes, leaving the
// current version untouched.
func (m *Manager) DiscardPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = ""
	m.staged = nil
}

// carryForward copies entries of the outgoing version whose components did
// not stage state this run. Keys are matched by prefix in both raw and
// filename-encoded form so the scan works against every store flavor.
func (m *Manager) carryForward(ctx context.Context, current, pending string, staged map[string]map[string]any) error {
	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan outgoing state version: %w", err)
	}
	rawPrefix := store.StateKey(current, "")
	encPrefix := store.EncodeFilename(rawPrefix)

	for _, key := range keys {
		var name string
		switch {
		case strings.HasPrefix(key, rawPrefix):
			name = strings.TrimPrefix(key, rawPrefix)
		case strings.HasPrefix(key, encPrefix):
			name = strings.TrimPrefix(key, encPrefix)
		default:
			continue
		}
		if name == "" {
			continue
		}
		if _, ok := staged[name]; ok {
			continue
		}
		raw, err := m.store.Get(ctx, store.StateKey(current, name))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := m.store.Add(ctx, store.StateKey(pending, name), raw, true); err != nil {
			return fmt.Errorf("failed to carry forward state for %q: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) writePointer(ctx context.Context, key, version string) error {
	raw, err := json.Marshal(version)
	if err != nil {
		return err
	}
	if err := m.store.Add(ctx, key, raw, true); err != nil {
		return fmt.Errorf("failed to update state pointer %q: %w", key, err)
	}
	return nil
}
