// Package emit provides pluggable observability for pipeline runs.
//
// The engine reports run and node lifecycle transitions as Events to an
// Emitter. Implementations ship for plain log output (LogEmitter), discarding
// (NullEmitter), and OpenTelemetry spans (OTelEmitter).
package emit

// Event is one observability record from pipeline execution.
type Event struct {
	// RunID identifies the pipeline run that emitted this event.
	RunID string

	// Node is the node name; empty for run-level events.
	Node string

	// Status is the node status string at emission time, when relevant.
	Status string

	// Msg names the event, e.g. "run_start", "node_done", "run_failed".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": node execution duration
	//   - "error": error text
	//   - "operations": delta operation count
	//   - "stopped_early": run stopped on a stop_pipeline signal
	Meta map[string]any
}

// Emitter receives observability events from pipeline execution.
//
// Implementations must be safe for concurrent use (sibling nodes emit from
// separate goroutines), must never panic, and should not block the run.
type Emitter interface {
	Emit(event Event)
}
