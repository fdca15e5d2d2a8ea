// Package pipeline provides an incremental, schedulable DAG execution engine
// for data-integration pipelines.
//
// A Pipeline is a validated graph of named components wired by input
// configuration. The Engine executes one run at a time through a per-node
// status machine, persisting results and statuses to a pipeline/store.Store,
// committing per-component state versions through pipeline/state.Manager, and
// appending run history through the RunTracker. Sources and derived
// components agree on incremental re-execution through the operation log in
// pipeline/delta; pipeline/sched drives repeated runs on an interval or cron
// schedule.
package pipeline

// Node wraps one component under a unique name inside a pipeline.
type Node struct {
	name string
	comp Component
}

// NewNode creates a named node for the given component.
func NewNode(name string, comp Component) *Node {
	return &Node{name: name, comp: comp}
}

// ID returns the node's unique name.
func (n *Node) ID() string { return n.name }

// Component returns the wrapped component.
func (n *Node) Component() Component { return n.comp }

// Edge wires one node's outputs to another node's inputs.
//
// InputConfig maps a target parameter name to a source reference: either
// "<component>" for the whole output document or "<component>.<field>" for a
// single output field.
type Edge struct {
	from        string
	to          string
	InputConfig map[string]string
}

// NewEdge creates an edge between two named nodes with the given wiring.
func NewEdge(from, to string, inputConfig map[string]string) *Edge {
	return &Edge{from: from, to: to, InputConfig: inputConfig}
}

// From returns the source node name.
func (e *Edge) From() string { return e.from }

// To returns the target node name.
func (e *Edge) To() string { return e.to }

// Pipeline is a DAG of components with input wiring.
//
// Build it with AddComponent and Connect, then call Validate (the Engine also
// validates before every run). After validation, RuntimeRequired lists the
// inputs each node still needs from the caller at run time.
type Pipeline struct {
	dag *DAG[*Node, *Edge]

	// runtimeRequired maps node name to the required parameters that no
	// edge supplies; a run must provide them or fail validation.
	runtimeRequired map[string][]string
	validated       bool
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{
		dag:             NewDAG[*Node, *Edge](),
		runtimeRequired: make(map[string][]string),
	}
}

// AddComponent registers comp under a unique node name.
func (p *Pipeline) AddComponent(name string, comp Component) error {
	if comp == nil {
		return &DefinitionError{Message: "component cannot be nil: " + name}
	}
	if err := p.dag.AddNode(NewNode(name, comp)); err != nil {
		return err
	}
	p.validated = false
	return nil
}

// ReplaceComponent swaps the component under an existing node name, keeping
// the node's wiring intact.
func (p *Pipeline) ReplaceComponent(name string, comp Component) error {
	if comp == nil {
		return &DefinitionError{Message: "component cannot be nil: " + name}
	}
	if err := p.dag.SetNode(NewNode(name, comp)); err != nil {
		return err
	}
	p.validated = false
	return nil
}

// Connect adds an edge from one node to another with the given input wiring.
func (p *Pipeline) Connect(from, to string, inputConfig map[string]string) error {
	for param, ref := range inputConfig {
		if param == "" || ref == "" {
			return &DefinitionError{Message: "malformed input_config on edge " + from + " -> " + to}
		}
	}
	if err := p.dag.AddEdge(NewEdge(from, to, inputConfig)); err != nil {
		return err
	}
	p.validated = false
	return nil
}

// Component returns the component registered under name.
func (p *Pipeline) Component(name string) (Component, error) {
	n, ok := p.dag.Node(name)
	if !ok {
		return nil, &ComponentNotFoundError{Name: name}
	}
	return n.Component(), nil
}

// Graph exposes the underlying DAG for topology queries.
func (p *Pipeline) Graph() *DAG[*Node, *Edge] {
	return p.dag
}

// RuntimeRequired returns, after successful validation, the required inputs
// of the named node that must be supplied via runtime inputs.
func (p *Pipeline) RuntimeRequired(name string) []string {
	return p.runtimeRequired[name]
}
