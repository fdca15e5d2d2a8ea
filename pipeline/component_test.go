package pipeline

import (
	"context"
	"testing"
)

func TestTypeTag_AssignableTo(t *testing.T) {
	tests := []struct {
		name string
		src  TypeTag
		dst  TypeTag
		want bool
	}{
		{"identical strings", TypeOf[string](), TypeOf[string](), true},
		{"string to int", TypeOf[string](), TypeOf[int](), false},
		{"opaque source", Opaque(), TypeOf[int](), true},
		{"opaque destination", TypeOf[string](), Opaque(), true},
		{"both opaque", Opaque(), Opaque(), true},
		{"concrete to any", TypeOf[string](), TypeOf[any](), true},
		{"any to concrete", TypeOf[any](), TypeOf[string](), false},
		{"slice elements assign", TypeOf[[]string](), TypeOf[[]string](), true},
		{"slice elements mismatch", TypeOf[[]string](), TypeOf[[]int](), false},
		{"slice to any-slice", TypeOf[[]string](), TypeOf[[]any](), true},
		{"map identical", TypeOf[map[string]int](), TypeOf[map[string]int](), true},
		{"map element to any", TypeOf[map[string]int](), TypeOf[map[string]any](), true},
		{"map key mismatch", TypeOf[map[int]string](), TypeOf[map[string]string](), false},
		{"int to float64", TypeOf[int](), TypeOf[float64](), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.src.AssignableTo(tt.dst); got != tt.want {
				t.Errorf("%s.AssignableTo(%s) = %v, want %v", tt.src, tt.dst, got, tt.want)
			}
		})
	}
}

func TestTypeTag_String(t *testing.T) {
	if got := TypeOf[[]string]().String(); got != "[]string" {
		t.Errorf("expected []string, got %q", got)
	}
	if got := Opaque().String(); got != "<opaque>" {
		t.Errorf("expected <opaque>, got %q", got)
	}
	if !Opaque().IsOpaque() {
		t.Error("Opaque() should be opaque")
	}
	if TypeOf[int]().IsOpaque() {
		t.Error("TypeOf[int]() should not be opaque")
	}
}

func TestInputs_State(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		in := Inputs{StateInput: map[string]any{"k": "v"}}
		if got := in.State(); got["k"] != "v" {
			t.Errorf("expected state map, got %v", got)
		}
	})

	t.Run("absent", func(t *testing.T) {
		if got := (Inputs{}).State(); got != nil {
			t.Errorf("expected nil state, got %v", got)
		}
	})
}

func TestFuncComponent(t *testing.T) {
	comp := &FuncComponent{
		In:  map[string]InputSpec{"n": {Type: TypeOf[float64]()}},
		Out: map[string]TypeTag{"doubled": TypeOf[float64]()},
		Fn: func(ctx context.Context, in Inputs) (Output, error) {
			return Output{Data: map[string]any{"doubled": in["n"].(float64) * 2}}, nil
		},
	}

	if _, ok := comp.Inputs()["n"]; !ok {
		t.Fatal("expected declared input 'n'")
	}
	if _, ok := comp.Outputs()["doubled"]; !ok {
		t.Fatal("expected declared output 'doubled'")
	}

	out, err := comp.Run(context.Background(), Inputs{"n": 4.0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Data["doubled"] != 8.0 {
		t.Errorf("expected 8, got %v", out.Data["doubled"])
	}
}
