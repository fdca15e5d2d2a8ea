package pipeline

import (
	"context"
	"reflect"
)

// StateInput is the reserved input name through which the engine injects a
// component's prior versioned state. A component that declares an input named
// StateInput receives the map committed by its last successful run (or nil on
// the first run). The validator never requires StateInput to be wired.
const StateInput = "state"

// TypeTag is a runtime type descriptor used for input/output compatibility
// checks. The zero value is the opaque tag: it is conservatively assignable
// to and from everything, matching bindings whose element types cannot be
// resolved statically.
//
// Create tags with TypeOf:
//
//	TypeOf[string]()
//	TypeOf[[]delta.Item]()
//	TypeOf[map[string]any]()
type TypeTag struct {
	rt reflect.Type
}

// TypeOf returns the TypeTag for type T.
func TypeOf[T any]() TypeTag {
	return TypeTag{rt: reflect.TypeOf((*T)(nil)).Elem()}
}

// Opaque returns the opaque TypeTag. Opaque tags skip compatibility checks.
func Opaque() TypeTag {
	return TypeTag{}
}

// IsOpaque reports whether the tag carries no resolvable type.
func (t TypeTag) IsOpaque() bool {
	return t.rt == nil
}

// String returns the Go syntax of the tagged type, or "<opaque>".
func (t TypeTag) String() string {
	if t.rt == nil {
		return "<opaque>"
	}
	return t.rt.String()
}

// AssignableTo reports whether a value of this tag's type can be bound to an
// input declared with dst. The check is structural:
//   - either side opaque: permitted
//   - identical types: permitted
//   - dst is an interface the source implements: permitted
//   - both slices or arrays: element tags must assign
//   - both maps: key and element tags must assign
//
// Values are never converted to fit the destination; a failed check fails
// validation before any run starts.
func (t TypeTag) AssignableTo(dst TypeTag) bool {
	if t.rt == nil || dst.rt == nil {
		return true
	}
	if t.rt == dst.rt {
		return true
	}
	if dst.rt.Kind() == reflect.Interface {
		return t.rt.AssignableTo(dst.rt)
	}
	sk, dk := t.rt.Kind(), dst.rt.Kind()
	if (sk == reflect.Slice || sk == reflect.Array) && (dk == reflect.Slice || dk == reflect.Array) {
		return TypeTag{rt: t.rt.Elem()}.AssignableTo(TypeTag{rt: dst.rt.Elem()})
	}
	if sk == reflect.Map && dk == reflect.Map {
		return TypeTag{rt: t.rt.Key()}.AssignableTo(TypeTag{rt: dst.rt.Key()}) &&
			TypeTag{rt: t.rt.Elem()}.AssignableTo(TypeTag{rt: dst.rt.Elem()})
	}
	return t.rt.AssignableTo(dst.rt)
}

// InputSpec describes one declared input of a component.
type InputSpec struct {
	// Type is the expected input type. Opaque disables compatibility checks.
	Type TypeTag

	// HasDefault marks the input as optional: the component runs even when
	// no edge or runtime input supplies it.
	HasDefault bool
}

// Inputs carries the resolved values for one component invocation, keyed by
// declared input name.
type Inputs map[string]any

// State returns the injected prior state, or nil if the component did not
// declare the reserved StateInput or no state has been committed yet.
func (in Inputs) State() map[string]any {
	s, _ := in[StateInput].(map[string]any)
	return s
}

// Output is the result of one component invocation.
//
// Data is the component's primary output keyed by declared output field name.
// State and StopPipeline are engine-reserved control fields: a non-empty
// State is staged for the run's state version, and StopPipeline short-circuits
// the run without scheduling successors.
type Output struct {
	Data         map[string]any `json:"data"`
	State        map[string]any `json:"state,omitempty"`
	StopPipeline bool           `json:"stop_pipeline,omitempty"`
}

// Component is a unit of work in a pipeline.
//
// A component declares its inputs and its typed output record up front so the
// validator can check wiring without executing anything. Run is invoked at
// most once per pipeline run with the resolved Inputs; it must honor context
// cancellation at its blocking points.
//
// Components are created once per pipeline and may be invoked by many runs;
// they must not keep per-run mutable state outside the Output.State channel.
type Component interface {
	// Inputs returns the declared inputs by parameter name.
	// The descriptor must be stable for the component's lifetime.
	Inputs() map[string]InputSpec

	// Outputs returns the declared output fields by name.
	Outputs() map[string]TypeTag

	// Run executes the component with the resolved inputs.
	Run(ctx context.Context, in Inputs) (Output, error)
}

// FuncComponent adapts a plain function plus explicit descriptors into a
// Component. It is the descriptor-carrying analogue of a function adapter:
//
//	doubler := &pipeline.FuncComponent{
//	    In:  map[string]pipeline.InputSpec{"n": {Type: pipeline.TypeOf[int]()}},
//	    Out: map[string]pipeline.TypeTag{"n": pipeline.TypeOf[int]()},
//	    Fn: func(ctx context.Context, in pipeline.Inputs) (pipeline.Output, error) {
//	        return pipeline.Output{Data: map[string]any{"n": in["n"].(int) * 2}}, nil
//	    },
//	}
type FuncComponent struct {
	In  map[string]InputSpec
	Out map[string]TypeTag
	Fn  func(ctx context.Context, in Inputs) (Output, error)
}

// Inputs implements Component.
func (c *FuncComponent) Inputs() map[string]InputSpec { return c.In }

// Outputs implements Component.
func (c *FuncComponent) Outputs() map[string]TypeTag { return c.Out }

// Run implements Component.
func (c *FuncComponent) Run(ctx context.Context, in Inputs) (Output, error) {
	return c.Fn(ctx, in)
}
