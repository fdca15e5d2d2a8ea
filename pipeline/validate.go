package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// sourceRef is a parsed "<component>" or "<component>.<field>" reference.
type sourceRef struct {
	component string
	field     string // empty for whole-output bindings
}

func parseSourceRef(ref string) (sourceRef, error) {
	if ref == "" {
		return sourceRef{}, fmt.Errorf("empty source reference")
	}
	parts := strings.SplitN(ref, ".", 2)
	if parts[0] == "" || (len(parts) == 2 && parts[1] == "") {
		return sourceRef{}, fmt.Errorf("malformed source reference %q", ref)
	}
	out := sourceRef{component: parts[0]}
	if len(parts) == 2 {
		out.field = parts[1]
	}
	return out, nil
}

// Validate runs the static checks over the pipeline, in order:
//
//  1. The graph is acyclic (DefinitionError otherwise).
//  2. Every edge binding targets a declared input, binds it at most once
//     across the node's incoming edges, resolves to an existing source
//     component (and declared output field when field-qualified), and the
//     source type is assignable to the target type.
//  3. Every node's required inputs are covered by edges or defaults; the
//     remainder is recorded as "must be provided via runtime inputs".
//
// Validate is cheap and re-runs automatically after any mutation when the
// Engine starts a run.
func (p *Pipeline) Validate() error {
	if p.validated {
		return nil
	}
	if p.dag.IsCyclic() {
		return &DefinitionError{Message: "pipeline graph contains a cycle"}
	}

	for _, node := range p.dag.Nodes() {
		if err := p.validateNodeWiring(node); err != nil {
			return err
		}
	}

	required := make(map[string][]string)
	for _, node := range p.dag.Nodes() {
		missing := p.uncoveredInputs(node)
		if len(missing) > 0 {
			required[node.ID()] = missing
		}
	}
	p.runtimeRequired = required
	p.validated = true
	return nil
}

// validateNodeWiring checks every binding of the node's incoming edges.
func (p *Pipeline) validateNodeWiring(node *Node) error {
	name := node.ID()
	declared := node.Component().Inputs()
	bound := make(map[string]string) // param -> source ref, to catch double bindings

	for _, edge := range p.dag.PreviousEdges(name) {
		for param, rawRef := range edge.InputConfig {
			spec, ok := declared[param]
			if !ok {
				return &ValidationError{Node: name, Param: param, Message: "not a declared input"}
			}
			if prev, dup := bound[param]; dup {
				return &ValidationError{
					Node:    name,
					Param:   param,
					Message: fmt.Sprintf("bound twice (%q and %q)", prev, rawRef),
				}
			}
			bound[param] = rawRef

			ref, err := parseSourceRef(rawRef)
			if err != nil {
				return &ValidationError{Node: name, Param: param, Message: err.Error()}
			}
			srcNode, ok := p.dag.Node(ref.component)
			if !ok {
				return &ValidationError{
					Node:    name,
					Param:   param,
					Message: fmt.Sprintf("source component %q does not exist", ref.component),
				}
			}

			srcType := TypeOf[map[string]any]() // whole-output binding
			if ref.field != "" {
				outputs := srcNode.Component().Outputs()
				fieldType, ok := outputs[ref.field]
				if !ok {
					return &ValidationError{
						Node:    name,
						Param:   param,
						Message: fmt.Sprintf("source %q has no output field %q", ref.component, ref.field),
					}
				}
				srcType = fieldType
			}
			if !srcType.AssignableTo(spec.Type) {
				return &ValidationError{
					Node:    name,
					Param:   param,
					Message: fmt.Sprintf("source type %s is not assignable to input type %s", srcType, spec.Type),
				}
			}
		}
	}
	return nil
}

// uncoveredInputs returns the required inputs of node that no edge supplies,
// ordered by incoming-edge-independent name sort for determinism.
func (p *Pipeline) uncoveredInputs(node *Node) []string {
	supplied := make(map[string]bool)
	for _, edge := range p.dag.PreviousEdges(node.ID()) {
		for param := range edge.InputConfig {
			supplied[param] = true
		}
	}
	var missing []string
	for param, spec := range node.Component().Inputs() {
		if param == StateInput {
			continue // injected by the engine
		}
		if spec.HasDefault || supplied[param] {
			continue
		}
		missing = append(missing, param)
	}
	sort.Strings(missing)
	return missing
}
