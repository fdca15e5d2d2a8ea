package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/pipeflow-go/pipeline/store"
)

// RunStatus is the lifecycle state of one pipeline run.
type RunStatus string

const (
	RunStarted   RunStatus = "STARTED"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunStopped   RunStatus = "STOPPED"
)

// PerfRecord captures one component's execution cost within a run.
type PerfRecord struct {
	DurationMS    float64 `json:"duration_ms"`
	MemoryDeltaKB int64   `json:"memory_delta_kb,omitempty"`
}

// RunRecord is one entry of the append-only run history.
//
// Times serialize as RFC 3339 strings and statuses as their string values so
// the persisted history is readable as plain JSON.
type RunRecord struct {
	RunID                string                `json:"run_id"`
	Status               RunStatus             `json:"status"`
	StartTime            time.Time             `json:"start_time"`
	EndTime              *time.Time            `json:"end_time,omitempty"`
	Error                string                `json:"error,omitempty"`
	ComponentStatuses    map[string]string     `json:"component_statuses,omitempty"`
	Inputs               map[string]string     `json:"inputs,omitempty"`
	ComponentPerformance map[string]PerfRecord `json:"component_performance,omitempty"`
	PipelineMemoryPeakKB uint64                `json:"pipeline_memory_peak_kb,omitempty"`
}

// RunTracker keeps the append-only history of pipeline runs.
//
// The history is loaded from the Result Store on first use and the full list
// is re-serialized under store.RunHistoryKey on every mutation, so the
// persisted log is always complete. RunTracker is safe for concurrent use.
type RunTracker struct {
	store store.Store

	mu      sync.Mutex
	loaded  bool
	records []RunRecord // append order: oldest first
}

// NewRunTracker creates a tracker over the given store.
func NewRunTracker(st store.Store) *RunTracker {
	return &RunTracker{store: st}
}

func (t *RunTracker) ensureLoaded(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	raw, err := t.store.Get(ctx, store.RunHistoryKey)
	if errors.Is(err, store.ErrNotFound) {
		t.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &t.records); err != nil {
		return fmt.Errorf("corrupt run history: %w", err)
	}
	t.loaded = true
	return nil
}

func (t *RunTracker) persist(ctx context.Context) error {
	raw, err := json.Marshal(t.records)
	if err != nil {
		return fmt.Errorf("failed to serialize run history: %w", err)
	}
	if err := t.store.Add(ctx, store.RunHistoryKey, raw, true); err != nil {
		return fmt.Errorf("failed to persist run history: %w", err)
	}
	return nil
}

func (t *RunTracker) find(runID string) *RunRecord {
	for i := range t.records {
		if t.records[i].RunID == runID {
			return &t.records[i]
		}
	}
	return nil
}

// RecordRunStart appends a STARTED record with the sanitized runtime inputs.
func (t *RunTracker) RecordRunStart(ctx context.Context, runID string, sanitizedInputs map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(ctx); err != nil {
		return err
	}
	t.records = append(t.records, RunRecord{
		RunID:                runID,
		Status:               RunStarted,
		StartTime:            time.Now().UTC(),
		Inputs:               sanitizedInputs,
		ComponentStatuses:    make(map[string]string),
		ComponentPerformance: make(map[string]PerfRecord),
	})
	return t.persist(ctx)
}

// RecordComponentPerformance attaches one component's metrics to a run.
func (t *RunTracker) RecordComponentPerformance(ctx context.Context, runID, component string, perf PerfRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(ctx); err != nil {
		return err
	}
	rec := t.find(runID)
	if rec == nil {
		return fmt.Errorf("unknown run %q", runID)
	}
	if rec.ComponentPerformance == nil {
		rec.ComponentPerformance = make(map[string]PerfRecord)
	}
	rec.ComponentPerformance[component] = perf
	return t.persist(ctx)
}

// RecordRunCompletion marks the run COMPLETED, or STOPPED when it ended
// early on a stop_pipeline signal, and freezes the final node statuses.
func (t *RunTracker) RecordRunCompletion(ctx context.Context, runID string, stoppedEarly bool, statuses map[string]string, memoryPeakKB uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(ctx); err != nil {
		return err
	}
	rec := t.find(runID)
	if rec == nil {
		return fmt.Errorf("unknown run %q", runID)
	}
	now := time.Now().UTC()
	rec.EndTime = &now
	rec.ComponentStatuses = statuses
	rec.PipelineMemoryPeakKB = memoryPeakKB
	if stoppedEarly {
		rec.Status = RunStopped
	} else {
		rec.Status = RunCompleted
	}
	return t.persist(ctx)
}

// RecordRunFailure marks the run FAILED with the error text.
func (t *RunTracker) RecordRunFailure(ctx context.Context, runID string, runErr error, statuses map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(ctx); err != nil {
		return err
	}
	rec := t.find(runID)
	if rec == nil {
		return fmt.Errorf("unknown run %q", runID)
	}
	now := time.Now().UTC()
	rec.EndTime = &now
	rec.Status = RunFailed
	rec.ComponentStatuses = statuses
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return t.persist(ctx)
}

// RunRecords returns up to limit records, most recent first. A non-positive
// limit returns everything.
func (t *RunTracker) RunRecords(ctx context.Context, limit int) ([]RunRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(t.records))
	for i := len(t.records) - 1; i >= 0; i-- {
		out = append(out, t.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastSuccessfulRun returns the most recent COMPLETED or STOPPED run.
func (t *RunTracker) LastSuccessfulRun(ctx context.Context) (RunRecord, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(ctx); err != nil {
		return RunRecord{}, false, err
	}
	for i := len(t.records) - 1; i >= 0; i-- {
		if t.records[i].Status == RunCompleted || t.records[i].Status == RunStopped {
			return t.records[i], true, nil
		}
	}
	return RunRecord{}, false, nil
}
