package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/pipeflow-go/pipeline/emit"
	"github.com/dshills/pipeflow-go/pipeline/state"
	"github.com/dshills/pipeflow-go/pipeline/store"
)

// Engine executes a validated pipeline run by run.
//
// Each node executes as its own goroutine once every predecessor is DONE;
// nodes without a data dependency run in parallel. Results and statuses are
// written to the Result Store as they happen, per-component state is staged
// through the state.Manager and committed as one version when the run
// succeeds, and the RunTracker records history and timings.
//
// Concurrent runs of the same pipeline are permitted: they are independent
// invocations with distinct run ids sharing the store. Within one run,
// predecessor-before-successor ordering is strict; sibling order is
// unspecified.
type Engine struct {
	pipe    *Pipeline
	store   store.Store
	state   *state.Manager
	tracker *RunTracker
	emitter emit.Emitter
	metrics *Metrics

	// statusMu serializes status transitions: together with the per-key
	// store semantics it guarantees at most one RUNNING claim per node
	// per run.
	statusMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEmitter sets the observability emitter. Nil disables emission.
func WithEmitter(emitter emit.Emitter) EngineOption {
	return func(e *Engine) { e.emitter = emitter }
}

// WithMetrics attaches Prometheus collectors to the engine.
func WithMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

// NewEngine creates an engine over the pipeline and store. The state manager
// and run tracker are created over the same store.
func NewEngine(pipe *Pipeline, st store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		pipe:    pipe,
		store:   st,
		state:   state.NewManager(st),
		tracker: NewRunTracker(st),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State exposes the engine's state manager, e.g. for inspecting committed
// versions in tests and tooling.
func (e *Engine) State() *state.Manager {
	return e.state
}

// Tracker exposes the engine's run tracker.
func (e *Engine) Tracker() *RunTracker {
	return e.tracker
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	// RunID is the fresh id allocated for this run.
	RunID string

	// Stopped reports that a component short-circuited the run via
	// stop_pipeline.
	Stopped bool

	// Leaves maps each leaf node that reached DONE to its result document.
	Leaves map[string]map[string]any
}

// runState is the shared coordination state of one run.
type runState struct {
	runID  string
	inputs map[string]map[string]any // node -> param -> value

	wg sync.WaitGroup

	mu       sync.Mutex
	failed   bool
	stopped  bool
	firstErr error
}

func (rs *runState) fail(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failed = true
	if rs.firstErr == nil {
		rs.firstErr = err
	}
}

func (rs *runState) stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.stopped = true
}

// halted reports that no further nodes should start.
func (rs *runState) halted() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.failed || rs.stopped
}

// Run executes the pipeline once with the given runtime inputs (node name ->
// parameter -> value) and returns the collected leaf results.
//
// The per-run procedure:
//  1. Validate the pipeline and the runtime-input coverage.
//  2. Allocate a fresh run id, record run start, prepare a state version.
//  3. Initialize every node's status to PENDING in the store.
//  4. Schedule the roots; every completing node schedules its successors.
//  5. Finalize: collect leaf results, commit (or discard) the state
//     version, record completion, failure, or early stop.
func (e *Engine) Run(ctx context.Context, runtimeInputs map[string]map[string]any) (*RunResult, error) {
	if err := e.pipe.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkRuntimeInputs(runtimeInputs); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if err := e.tracker.RecordRunStart(ctx, runID, sanitizeInputs(runtimeInputs)); err != nil {
		return nil, err
	}
	if err := e.state.PrepareVersion(ctx, runID); err != nil {
		return nil, err
	}

	for _, node := range e.pipe.Graph().Nodes() {
		if err := e.writeStatus(ctx, runID, node.ID(), StatusPending); err != nil {
			return nil, err
		}
	}
	e.emit(emit.Event{RunID: runID, Msg: "run_start"})

	rs := &runState{runID: runID, inputs: runtimeInputs}
	for _, root := range e.pipe.Graph().Roots() {
		e.schedule(ctx, rs, root.ID())
	}
	rs.wg.Wait()

	return e.finalize(ctx, rs)
}

// checkRuntimeInputs verifies that every required parameter not supplied by
// an edge is present in the runtime inputs.
func (e *Engine) checkRuntimeInputs(runtimeInputs map[string]map[string]any) error {
	for _, node := range e.pipe.Graph().Nodes() {
		for _, param := range e.pipe.RuntimeRequired(node.ID()) {
			if _, ok := runtimeInputs[node.ID()][param]; !ok {
				return &ValidationError{
					Node:    node.ID(),
					Param:   param,
					Message: "required input not supplied by any edge or runtime input",
				}
			}
		}
	}
	return nil
}

// schedule spawns one execution attempt for the named node.
func (e *Engine) schedule(ctx context.Context, rs *runState, name string) {
	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		e.executeNode(ctx, rs, name)
	}()
}

// executeNode drives one node through the status machine. It returns without
// effect when a predecessor is still outstanding (the last finishing
// predecessor re-enters it) or when another attempt already claimed RUNNING.
func (e *Engine) executeNode(ctx context.Context, rs *runState, name string) {
	if rs.halted() || ctx.Err() != nil {
		return
	}

	for _, parent := range e.pipe.Graph().Parents(name) {
		status, err := e.readStatus(ctx, rs.runID, parent)
		if err != nil {
			rs.fail(err)
			return
		}
		if status != StatusDone {
			// Re-entered by the last finishing predecessor.
			return
		}
	}

	if err := e.transition(ctx, rs.runID, name, StatusRunning); err != nil {
		// Another attempt holds the node, or it already finished.
		return
	}
	e.metrics.nodeStarted()
	e.emit(emit.Event{RunID: rs.runID, Node: name, Status: string(StatusRunning), Msg: "node_start"})

	node, _ := e.pipe.Graph().Node(name)
	started := time.Now()

	output, err := e.invoke(ctx, rs, node)
	elapsed := time.Since(started)

	if err != nil {
		e.failNode(ctx, rs, name, elapsed, err)
		return
	}

	if len(output.State) > 0 {
		if err := e.state.StageComponentState(name, output.State); err != nil {
			e.failNode(ctx, rs, name, elapsed, err)
			return
		}
	}

	raw, err := json.Marshal(output.Data)
	if err != nil {
		e.failNode(ctx, rs, name, elapsed, fmt.Errorf("failed to serialize result: %w", err))
		return
	}
	if err := e.store.Add(ctx, store.ResultKey(rs.runID, name), raw, true); err != nil {
		e.failNode(ctx, rs, name, elapsed, err)
		return
	}

	perf := PerfRecord{DurationMS: float64(elapsed.Microseconds()) / 1000.0}
	_ = e.tracker.RecordComponentPerformance(ctx, rs.runID, name, perf)

	final := StatusDone
	if output.StopPipeline {
		final = StatusStopPipeline
	}
	if err := e.transition(ctx, rs.runID, name, final); err != nil {
		rs.fail(err)
		return
	}
	e.metrics.nodeFinished(name, final, elapsed)
	e.emit(emit.Event{
		RunID: rs.runID, Node: name, Status: string(final), Msg: "node_done",
		Meta: map[string]any{"duration_ms": perf.DurationMS},
	})

	if final == StatusStopPipeline {
		rs.stop()
		return
	}
	for _, child := range e.pipe.Graph().Children(name) {
		e.schedule(ctx, rs, child)
	}
}

// invoke resolves the node's inputs and calls the component.
func (e *Engine) invoke(ctx context.Context, rs *runState, node *Node) (Output, error) {
	in, err := e.resolveInputs(ctx, rs, node)
	if err != nil {
		return Output{}, err
	}
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	output, err := node.Component().Run(ctx, in)
	if err != nil {
		return Output{}, &ComponentExecutionError{Node: node.ID(), Err: err}
	}
	return output, nil
}

// resolveInputs gathers a node's inputs from upstream results, runtime
// inputs, and the component's prior state.
func (e *Engine) resolveInputs(ctx context.Context, rs *runState, node *Node) (Inputs, error) {
	name := node.ID()
	in := make(Inputs)

	for _, edge := range e.pipe.Graph().PreviousEdges(name) {
		for param, rawRef := range edge.InputConfig {
			ref, err := parseSourceRef(rawRef)
			if err != nil {
				return nil, &ValidationError{Node: name, Param: param, Message: err.Error()}
			}
			doc, err := e.loadResult(ctx, rs.runID, ref.component)
			if err != nil {
				return nil, err
			}
			if ref.field == "" {
				in[param] = doc
			} else {
				in[param] = doc[ref.field]
			}
		}
	}

	for param, value := range rs.inputs[name] {
		in[param] = value
	}

	if _, declared := node.Component().Inputs()[StateInput]; declared {
		prior, err := e.state.ComponentState(ctx, name)
		if err != nil {
			return nil, err
		}
		in[StateInput] = prior
	}
	return in, nil
}

// loadResult reads and deserializes an upstream component's result document.
func (e *Engine) loadResult(ctx context.Context, runID, component string) (map[string]any, error) {
	raw, err := e.store.Get(ctx, store.ResultKey(runID, component))
	if err != nil {
		return nil, fmt.Errorf("failed to load result of %q: %w", component, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("corrupt result of %q: %w", component, err)
	}
	return doc, nil
}

// failNode records a node failure: error payload as the node's result,
// FAILED status, and run abort. Successors stay PENDING.
func (e *Engine) failNode(ctx context.Context, rs *runState, name string, elapsed time.Duration, cause error) {
	payload, _ := json.Marshal(map[string]any{"error": cause.Error()})
	_ = e.store.Add(ctx, store.ResultKey(rs.runID, name), payload, true)
	if err := e.transition(ctx, rs.runID, name, StatusFailed); err == nil {
		e.metrics.nodeFinished(name, StatusFailed, elapsed)
	}
	e.emit(emit.Event{
		RunID: rs.runID, Node: name, Status: string(StatusFailed), Msg: "node_failed",
		Meta: map[string]any{"error": cause.Error()},
	})
	rs.fail(cause)
}

// finalize collects leaf results and closes out the run record and state
// version according to the outcome.
func (e *Engine) finalize(ctx context.Context, rs *runState) (*RunResult, error) {
	statuses, err := e.collectStatuses(ctx, rs.runID)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	failed, stopped, firstErr := rs.failed, rs.stopped, rs.firstErr
	rs.mu.Unlock()

	if ctx.Err() != nil && !failed {
		failed, firstErr = true, ctx.Err()
	}

	if failed {
		e.state.DiscardPending()
		_ = e.tracker.RecordRunFailure(ctx, rs.runID, firstErr, statuses)
		e.metrics.runFinished(RunFailed)
		e.emit(emit.Event{RunID: rs.runID, Msg: "run_failed", Meta: map[string]any{"error": errText(firstErr)}})
		return nil, firstErr
	}

	result := &RunResult{RunID: rs.runID, Stopped: stopped, Leaves: make(map[string]map[string]any)}
	for _, leaf := range e.pipe.Graph().Leaves() {
		if Status(statuses[leaf.ID()]) != StatusDone {
			continue
		}
		doc, err := e.loadResult(ctx, rs.runID, leaf.ID())
		if err != nil {
			return nil, err
		}
		result.Leaves[leaf.ID()] = doc
	}

	if err := e.state.CommitVersion(ctx); err != nil {
		return nil, err
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	if err := e.tracker.RecordRunCompletion(ctx, rs.runID, stopped, statuses, mem.HeapAlloc/1024); err != nil {
		return nil, err
	}

	outcome := RunCompleted
	if stopped {
		outcome = RunStopped
	}
	e.metrics.runFinished(outcome)
	e.emit(emit.Event{RunID: rs.runID, Msg: "run_done", Meta: map[string]any{"stopped_early": stopped}})
	return result, nil
}

func (e *Engine) collectStatuses(ctx context.Context, runID string) (map[string]string, error) {
	statuses := make(map[string]string)
	for _, node := range e.pipe.Graph().Nodes() {
		status, err := e.readStatus(ctx, runID, node.ID())
		if err != nil {
			return nil, err
		}
		statuses[node.ID()] = string(status)
	}
	return statuses, nil
}

// transition moves a node to the given status, enforcing the status machine.
// It is the sole serialization point for the RUNNING claim.
func (e *Engine) transition(ctx context.Context, runID, name string, to Status) error {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	current, err := e.readStatus(ctx, runID, name)
	if err != nil {
		return err
	}
	if !canTransition(current, to) {
		return &StatusUpdateError{Node: name, From: current, To: to}
	}
	return e.writeStatus(ctx, runID, name, to)
}

func (e *Engine) readStatus(ctx context.Context, runID, name string) (Status, error) {
	raw, err := e.store.Get(ctx, store.StatusKey(runID, name))
	if err != nil {
		return "", fmt.Errorf("failed to read status of %q: %w", name, err)
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil {
		return "", fmt.Errorf("corrupt status of %q: %w", name, err)
	}
	return Status(status), nil
}

func (e *Engine) writeStatus(ctx context.Context, runID, name string, status Status) error {
	raw, err := json.Marshal(string(status))
	if err != nil {
		return err
	}
	return e.store.Add(ctx, store.StatusKey(runID, name), raw, true)
}

func (e *Engine) emit(event emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

// sanitizeInputs replaces runtime input values with their Go type so run
// records never persist credentials passed as inputs.
func sanitizeInputs(inputs map[string]map[string]any) map[string]string {
	out := make(map[string]string)
	for node, params := range inputs {
		for param, value := range params {
			out[node+"."+param] = fmt.Sprintf("%T", value)
		}
	}
	return out
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
