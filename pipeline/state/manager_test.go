package state

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/pipeflow-go/pipeline/store"
)

func TestManager_Versions(t *testing.T) {
	ctx := context.Background()
	m := NewManager(store.NewMemStore())

	t.Run("empty store", func(t *testing.T) {
		cur, err := m.CurrentVersion(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if cur != "" {
			t.Errorf("expected no current version, got %q", cur)
		}
		state, err := m.ComponentState(ctx, "harvester")
		if err != nil {
			t.Fatal(err)
		}
		if state != nil {
			t.Errorf("expected nil state, got %v", state)
		}
	})

	t.Run("commit makes state visible", func(t *testing.T) {
		if err := m.PrepareVersion(ctx, "run-1"); err != nil {
			t.Fatal(err)
		}
		if err := m.StageComponentState("harvester", map[string]any{"n": 1.0}); err != nil {
			t.Fatal(err)
		}

		// Staged but uncommitted state must be invisible.
		state, err := m.ComponentState(ctx, "harvester")
		if err != nil {
			t.Fatal(err)
		}
		if state != nil {
			t.Errorf("staged state leaked before commit: %v", state)
		}

		if err := m.CommitVersion(ctx); err != nil {
			t.Fatal(err)
		}
		cur, err := m.CurrentVersion(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if cur != "run-1" {
			t.Errorf("expected current version run-1, got %q", cur)
		}
		state, err = m.ComponentState(ctx, "harvester")
		if err != nil {
			t.Fatal(err)
		}
		if state["n"] != 1.0 {
			t.Errorf("expected committed state, got %v", state)
		}
	})

	t.Run("pointers advance on second commit", func(t *testing.T) {
		if err := m.PrepareVersion(ctx, "run-2"); err != nil {
			t.Fatal(err)
		}
		if err := m.StageComponentState("harvester", map[string]any{"n": 2.0}); err != nil {
			t.Fatal(err)
		}
		if err := m.CommitVersion(ctx); err != nil {
			t.Fatal(err)
		}

		cur, _ := m.CurrentVersion(ctx)
		prev, _ := m.PreviousVersion(ctx)
		if cur != "run-2" || prev != "run-1" {
			t.Errorf("expected current run-2 / previous run-1, got %q / %q", cur, prev)
		}
		state, err := m.ComponentState(ctx, "harvester")
		if err != nil {
			t.Fatal(err)
		}
		if state["n"] != 2.0 {
			t.Errorf("expected updated state, got %v", state)
		}
	})
}

func TestManager_Discard(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	m := NewManager(st)

	if err := m.PrepareVersion(ctx, "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := m.StageComponentState("harvester", map[string]any{"n": 1.0}); err != nil {
		t.Fatal(err)
	}
	if err := m.CommitVersion(ctx); err != nil {
		t.Fatal(err)
	}

	if err := m.PrepareVersion(ctx, "run-2"); err != nil {
		t.Fatal(err)
	}
	if err := m.StageComponentState("harvester", map[string]any{"n": 99.0}); err != nil {
		t.Fatal(err)
	}
	m.DiscardPending()

	t.Run("current version untouched", func(t *testing.T) {
		cur, err := m.CurrentVersion(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if cur != "run-1" {
			t.Errorf("expected run-1 after discard, got %q", cur)
		}
		state, err := m.ComponentState(ctx, "harvester")
		if err != nil {
			t.Fatal(err)
		}
		if state["n"] != 1.0 {
			t.Errorf("expected state from run-1, got %v", state)
		}
	})

	t.Run("no stray writes", func(t *testing.T) {
		if _, err := st.Get(ctx, store.StateKey("run-2", "harvester")); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("discarded state must not be written, got %v", err)
		}
	})

	t.Run("stage and commit after discard rejected", func(t *testing.T) {
		if err := m.StageComponentState("harvester", nil); !errors.Is(err, ErrNoPendingVersion) {
			t.Errorf("expected ErrNoPendingVersion, got %v", err)
		}
		if err := m.CommitVersion(ctx); !errors.Is(err, ErrNoPendingVersion) {
			t.Errorf("expected ErrNoPendingVersion, got %v", err)
		}
	})
}

func TestManager_CarryForward(t *testing.T) {
	run := func(t *testing.T, st store.Store) {
		ctx := context.Background()
		m := NewManager(st)

		// Run 1: both components commit state.
		if err := m.PrepareVersion(ctx, "run-1"); err != nil {
			t.Fatal(err)
		}
		if err := m.StageComponentState("harvester", map[string]any{"items": 3.0}); err != nil {
			t.Fatal(err)
		}
		if err := m.StageComponentState("grouper", map[string]any{"groups": 2.0}); err != nil {
			t.Fatal(err)
		}
		if err := m.CommitVersion(ctx); err != nil {
			t.Fatal(err)
		}

		// Run 2: only the harvester runs (stop_pipeline short-circuit).
		if err := m.PrepareVersion(ctx, "run-2"); err != nil {
			t.Fatal(err)
		}
		if err := m.StageComponentState("harvester", map[string]any{"items": 3.0}); err != nil {
			t.Fatal(err)
		}
		if err := m.CommitVersion(ctx); err != nil {
			t.Fatal(err)
		}

		// The grouper's state must survive the version flip.
		state, err := m.ComponentState(ctx, "grouper")
		if err != nil {
			t.Fatal(err)
		}
		if state["groups"] != 2.0 {
			t.Errorf("expected carried-forward grouper state, got %v", state)
		}
	}

	t.Run("mem store", func(t *testing.T) {
		run(t, store.NewMemStore())
	})

	t.Run("file store", func(t *testing.T) {
		st, err := store.NewFileStore(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		run(t, st)
	})
}

func TestManager_PrepareValidation(t *testing.T) {
	m := NewManager(store.NewMemStore())
	if err := m.PrepareVersion(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
