package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseConfig(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
components:
  - name: harvester
    class_path: sensors.Harvester
    params:
      endpoint: http://localhost:9000
  - name: grouper
    class_path: sensors.Grouper
connections:
  - start: harvester
    end: grouper
    input_config:
      operations: harvester.operations
scheduler:
  scheduler_type: interval
  interval:
    minutes: 15
`))
		if err != nil {
			t.Fatalf("ParseConfig: %v", err)
		}
		if len(cfg.Components) != 2 {
			t.Fatalf("expected 2 components, got %d", len(cfg.Components))
		}
		if cfg.Components[0].Params["endpoint"] != "http://localhost:9000" {
			t.Errorf("unexpected params: %v", cfg.Components[0].Params)
		}
		if len(cfg.Connections) != 1 || cfg.Connections[0].InputConfig["operations"] != "harvester.operations" {
			t.Errorf("unexpected connections: %+v", cfg.Connections)
		}
		if cfg.Scheduler == nil || cfg.Scheduler.Type != "interval" || cfg.Scheduler.Interval.Minutes != 15 {
			t.Errorf("unexpected scheduler: %+v", cfg.Scheduler)
		}
	})

	t.Run("duplicate component names rejected", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
components:
  - name: a
    class_path: x.A
  - name: a
    class_path: x.B
`))
		var defErr *DefinitionError
		if !errors.As(err, &defErr) {
			t.Fatalf("expected DefinitionError, got %v", err)
		}
	})

	t.Run("missing class_path rejected", func(t *testing.T) {
		_, err := ParseConfig([]byte("components:\n  - name: a\n"))
		if err == nil {
			t.Fatal("expected error for missing class_path")
		}
	})
}

func TestParseConfig_EnvResolution(t *testing.T) {
	t.Run("expands set variables", func(t *testing.T) {
		t.Setenv("PIPEFLOW_TEST_TOKEN", "s3cret")
		cfg, err := ParseConfig([]byte(`
components:
  - name: a
    class_path: x.A
    params:
      token: ${PIPEFLOW_TEST_TOKEN}
      url: https://${PIPEFLOW_TEST_TOKEN}.example.com
`))
		if err != nil {
			t.Fatalf("ParseConfig: %v", err)
		}
		params := cfg.Components[0].Params
		if params["token"] != "s3cret" {
			t.Errorf("expected expanded token, got %v", params["token"])
		}
		if params["url"] != "https://s3cret.example.com" {
			t.Errorf("expected embedded expansion, got %v", params["url"])
		}
	})

	t.Run("unset variable is an error", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
components:
  - name: a
    class_path: x.A
    params:
      token: ${PIPEFLOW_TEST_DEFINITELY_UNSET}
`))
		if err == nil || !strings.Contains(err.Error(), "PIPEFLOW_TEST_DEFINITELY_UNSET") {
			t.Fatalf("expected unset-variable error, got %v", err)
		}
	})
}

func TestParseConfig_ConfigKeyResolver(t *testing.T) {
	t.Run("dot path lookup", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
components:
  - name: harvester
    class_path: x.Harvester
    params:
      endpoint: http://sensors.local
  - name: cataloger
    class_path: x.Cataloger
    params:
      source_endpoint: {resolver_: CONFIG_KEY, key_: "components.0.params.endpoint"}
`))
		if err != nil {
			t.Fatalf("ParseConfig: %v", err)
		}
		if got := cfg.Components[1].Params["source_endpoint"]; got != "http://sensors.local" {
			t.Errorf("expected resolved endpoint, got %v", got)
		}
	})

	t.Run("missing key is an error", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
components:
  - name: a
    class_path: x.A
    params:
      v: {resolver_: CONFIG_KEY, key_: "components.0.params.missing"}
`))
		if err == nil {
			t.Fatal("expected missing-key error")
		}
	})

	t.Run("self reference is an error", func(t *testing.T) {
		_, err := ParseConfig([]byte(`
components:
  - name: a
    class_path: x.A
    params:
      v: {resolver_: CONFIG_KEY, key_: "components.0.params.v"}
`))
		if err == nil {
			t.Fatal("expected cycle error")
		}
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("x.Echo", func(params map[string]any) (Component, error) {
		value, _ := params["value"].(string)
		return emitComp(map[string]any{"value": value}), nil
	})

	t.Run("build registered", func(t *testing.T) {
		comp, err := reg.Build("x.Echo", map[string]any{"value": "hi"})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		out, err := comp.Run(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if out.Data["value"] != "hi" {
			t.Errorf("expected 'hi', got %v", out.Data["value"])
		}
	})

	t.Run("unknown class path", func(t *testing.T) {
		_, err := reg.Build("x.Nope", nil)
		var nf *ComponentNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected ComponentNotFoundError, got %v", err)
		}
	})
}
