package pipeline

// Vertex is the node constraint for DAG: anything carrying a unique name.
type Vertex interface {
	ID() string
}

// Arc is the edge constraint for DAG: a directed connection between two
// named vertices.
type Arc interface {
	From() string
	To() string
}

// DAG is a typed directed-graph container parameterized over its node and
// edge types. It maintains parent/child adjacency alongside the edge list so
// topology queries (Roots, Leaves, NextEdges, PreviousEdges) are cheap.
//
// DAG enforces name uniqueness and endpoint existence on mutation but does
// not reject cycles eagerly; callers run IsCyclic as part of validation.
// DAG is not safe for concurrent mutation.
type DAG[N Vertex, E Arc] struct {
	nodes    map[string]N
	order    []string // insertion order, for deterministic traversals
	edges    []E
	parents  map[string][]string
	children map[string][]string
}

// NewDAG creates an empty graph.
func NewDAG[N Vertex, E Arc]() *DAG[N, E] {
	return &DAG[N, E]{
		nodes:    make(map[string]N),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
}

// AddNode inserts a node. Fails with DefinitionError if a node with the same
// name is already present.
func (g *DAG[N, E]) AddNode(n N) error {
	name := n.ID()
	if name == "" {
		return &DefinitionError{Message: "node name cannot be empty"}
	}
	if _, exists := g.nodes[name]; exists {
		return &DefinitionError{Message: "duplicate node name: " + name}
	}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return nil
}

// SetNode replaces an existing node under the same name. The replaced node's
// parent and child lists are preserved because adjacency is tracked by name.
// Fails with DefinitionError if the name is absent.
func (g *DAG[N, E]) SetNode(n N) error {
	name := n.ID()
	if _, exists := g.nodes[name]; !exists {
		return &DefinitionError{Message: "cannot replace unknown node: " + name}
	}
	g.nodes[name] = n
	return nil
}

// Node returns the node registered under name.
func (g *DAG[N, E]) Node(name string) (N, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *DAG[N, E]) Nodes() []N {
	out := make([]N, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Len returns the number of nodes.
func (g *DAG[N, E]) Len() int {
	return len(g.nodes)
}

// AddEdge inserts a directed edge. Fails with DefinitionError if either
// endpoint is unknown or an edge between the same endpoints already exists.
// Parent and child lists of the endpoints are kept in sync.
func (g *DAG[N, E]) AddEdge(e E) error {
	from, to := e.From(), e.To()
	if _, ok := g.nodes[from]; !ok {
		return &DefinitionError{Message: "edge references unknown node: " + from}
	}
	if _, ok := g.nodes[to]; !ok {
		return &DefinitionError{Message: "edge references unknown node: " + to}
	}
	for _, existing := range g.edges {
		if existing.From() == from && existing.To() == to {
			return &DefinitionError{Message: "duplicate edge: " + from + " -> " + to}
		}
	}
	g.edges = append(g.edges, e)
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	return nil
}

// Roots returns the nodes with no incoming edges, in insertion order.
func (g *DAG[N, E]) Roots() []N {
	var out []N
	for _, name := range g.order {
		if len(g.parents[name]) == 0 {
			out = append(out, g.nodes[name])
		}
	}
	return out
}

// Leaves returns the nodes with no outgoing edges, in insertion order.
func (g *DAG[N, E]) Leaves() []N {
	var out []N
	for _, name := range g.order {
		if len(g.children[name]) == 0 {
			out = append(out, g.nodes[name])
		}
	}
	return out
}

// NextEdges returns the outgoing edges of the named node.
func (g *DAG[N, E]) NextEdges(name string) []E {
	var out []E
	for _, e := range g.edges {
		if e.From() == name {
			out = append(out, e)
		}
	}
	return out
}

// PreviousEdges returns the incoming edges of the named node.
func (g *DAG[N, E]) PreviousEdges(name string) []E {
	var out []E
	for _, e := range g.edges {
		if e.To() == name {
			out = append(out, e)
		}
	}
	return out
}

// Parents returns the names of the direct predecessors of name.
func (g *DAG[N, E]) Parents(name string) []string {
	return g.parents[name]
}

// Children returns the names of the direct successors of name.
func (g *DAG[N, E]) Children(name string) []string {
	return g.children[name]
}

// IsCyclic reports whether the graph contains a directed cycle. It runs a
// DFS from every node; revisiting a node on the current traversal stack is a
// cycle.
func (g *DAG[N, E]) IsCyclic() bool {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))

	var visit func(name string) bool
	visit = func(name string) bool {
		visited[name] = true
		onStack[name] = true
		for _, child := range g.children[name] {
			if onStack[child] {
				return true
			}
			if !visited[child] && visit(child) {
				return true
			}
		}
		onStack[name] = false
		return false
	}

	for _, name := range g.order {
		if !visited[name] && visit(name) {
			return true
		}
	}
	return false
}
