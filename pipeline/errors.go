package pipeline

import "fmt"

// DefinitionError reports a structural problem with a pipeline definition:
// duplicate node names, edges referencing unknown nodes, cycles, or malformed
// input configuration. Definition errors abort before any run side effects.
type DefinitionError struct {
	Message string
}

func (e *DefinitionError) Error() string {
	return "pipeline definition: " + e.Message
}

// ValidationError reports that a validated pipeline cannot run: a required
// input is unsupplied, a source reference does not resolve, or the source
// output type is not assignable to the target input.
type ValidationError struct {
	Node    string
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node != "" && e.Param != "":
		return fmt.Sprintf("validation: node %q input %q: %s", e.Node, e.Param, e.Message)
	case e.Node != "":
		return fmt.Sprintf("validation: node %q: %s", e.Node, e.Message)
	default:
		return "validation: " + e.Message
	}
}

// ComponentNotFoundError reports a reference to a component that is not part
// of the pipeline.
type ComponentNotFoundError struct {
	Name string
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component not found: %q", e.Name)
}

// ComponentExecutionError wraps an error raised by a component's Run. The
// node is transitioned to FAILED and the run is recorded as failed.
type ComponentExecutionError struct {
	Node string
	Err  error
}

func (e *ComponentExecutionError) Error() string {
	return fmt.Sprintf("component %q: %v", e.Node, e.Err)
}

func (e *ComponentExecutionError) Unwrap() error {
	return e.Err
}

// StatusUpdateError reports an illegal node status transition. Terminal
// statuses never transition further; the RUNNING claim is rejected for every
// task but the first.
type StatusUpdateError struct {
	Node string
	From Status
	To   Status
}

func (e *StatusUpdateError) Error() string {
	return fmt.Sprintf("node %q: illegal status transition %s -> %s", e.Node, e.From, e.To)
}

// MissingDependencyError is reserved for components that declare environment
// dependencies the host cannot satisfy. The engine itself never raises it.
type MissingDependencyError struct {
	Node    string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("component %q: missing dependencies %v", e.Node, e.Missing)
}
