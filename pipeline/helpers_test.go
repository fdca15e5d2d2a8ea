package pipeline

import (
	"context"
	"fmt"
)

// emitComp builds a component with no inputs that emits fixed fields.
func emitComp(fields map[string]any) *FuncComponent {
	out := make(map[string]TypeTag, len(fields))
	for name, v := range fields {
		switch v.(type) {
		case string:
			out[name] = TypeOf[string]()
		case int, float64:
			out[name] = TypeOf[float64]()
		default:
			out[name] = Opaque()
		}
	}
	return &FuncComponent{
		In:  map[string]InputSpec{},
		Out: out,
		Fn: func(ctx context.Context, in Inputs) (Output, error) {
			data := make(map[string]any, len(fields))
			for k, v := range fields {
				data[k] = v
			}
			return Output{Data: data}, nil
		},
	}
}

// failComp builds a component that always fails.
func failComp(inputs ...string) *FuncComponent {
	in := make(map[string]InputSpec, len(inputs))
	for _, name := range inputs {
		in[name] = InputSpec{Type: Opaque()}
	}
	return &FuncComponent{
		In:  in,
		Out: map[string]TypeTag{"result": Opaque()},
		Fn: func(ctx context.Context, _ Inputs) (Output, error) {
			return Output{}, fmt.Errorf("boom")
		},
	}
}

// asFloat converts JSON-decoded numbers for assertions.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
