package pipeline

import (
	"context"
	"fmt"

	"github.com/dshills/pipeflow-go/pipeline/sched"
	"github.com/dshills/pipeflow-go/pipeline/store"
)

// TemplateIncremental is the canonical chain template. A config that names
// it may omit its connections; the runner wires each component to the
// nearest upstream producer of every input it declares, matching input
// names against upstream output fields. The canonical shape is
// harvester -> grouper -> metadata enricher -> cataloger, in the order the
// components appear in the config.
const TemplateIncremental = "incremental"

// Runner binds a declarative Config to a validated Pipeline and exposes a
// single run entry point. It owns the Engine it builds.
type Runner struct {
	cfg    *Config
	pipe   *Pipeline
	engine *Engine
}

// NewRunner instantiates every configured component through the registry,
// wires the configured (or templated) connections, validates the pipeline,
// and builds an engine over st. Engine options pass through unchanged.
func NewRunner(cfg *Config, reg *Registry, st store.Store, opts ...EngineOption) (*Runner, error) {
	pipe := New()
	for _, cc := range cfg.Components {
		comp, err := reg.Build(cc.ClassPath, cc.Params)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", cc.Name, err)
		}
		if err := pipe.AddComponent(cc.Name, comp); err != nil {
			return nil, err
		}
	}

	conns := cfg.Connections
	if len(conns) == 0 && cfg.Template != "" {
		var err error
		conns, err = templateConnections(cfg, pipe)
		if err != nil {
			return nil, err
		}
	}
	for _, cn := range conns {
		if err := pipe.Connect(cn.Start, cn.End, cn.InputConfig); err != nil {
			return nil, err
		}
	}

	if err := pipe.Validate(); err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, pipe: pipe, engine: NewEngine(pipe, st, opts...)}, nil
}

// Pipeline returns the validated pipeline.
func (r *Runner) Pipeline() *Pipeline { return r.pipe }

// Engine returns the underlying engine.
func (r *Runner) Engine() *Engine { return r.engine }

// Run executes one pipeline run with the given runtime inputs.
func (r *Runner) Run(ctx context.Context, userInput map[string]map[string]any) (*RunResult, error) {
	return r.engine.Run(ctx, userInput)
}

// Trigger builds the configured scheduler trigger, wired to invoke Run with
// the same userInput on every firing. The caller owns Start and Shutdown.
func (r *Runner) Trigger(userInput map[string]map[string]any, opts ...sched.Option) (sched.Trigger, error) {
	if r.cfg.Scheduler == nil {
		return nil, &DefinitionError{Message: "config has no scheduler section"}
	}
	run := func(ctx context.Context) error {
		_, err := r.Run(ctx, userInput)
		return err
	}
	return sched.New(*r.cfg.Scheduler, run, opts...)
}

// templateConnections materializes the standard edges of a chain template.
// For each component, every declared input (other than the reserved state
// input) is bound to the nearest preceding component whose outputs declare a
// field of the same name. Inputs with no upstream producer are left for
// runtime inputs or defaults; validation decides whether that is acceptable.
func templateConnections(cfg *Config, pipe *Pipeline) ([]ConnectionConfig, error) {
	if cfg.Template != TemplateIncremental {
		return nil, &DefinitionError{Message: fmt.Sprintf("unknown template %q", cfg.Template)}
	}
	if len(cfg.Components) < 2 {
		return nil, &DefinitionError{Message: "template pipelines need at least two components"}
	}

	var conns []ConnectionConfig
	for i := 1; i < len(cfg.Components); i++ {
		target := cfg.Components[i].Name
		comp, err := pipe.Component(target)
		if err != nil {
			return nil, err
		}

		// One input_config per upstream source, in chain order.
		bySource := make(map[string]map[string]string)
		var sources []string
		for input := range comp.Inputs() {
			if input == StateInput {
				continue
			}
			for j := i - 1; j >= 0; j-- {
				src := cfg.Components[j].Name
				srcComp, err := pipe.Component(src)
				if err != nil {
					return nil, err
				}
				if _, ok := srcComp.Outputs()[input]; !ok {
					continue
				}
				if bySource[src] == nil {
					bySource[src] = make(map[string]string)
					sources = append(sources, src)
				}
				bySource[src][input] = src + "." + input
				break
			}
		}
		for _, src := range sources {
			conns = append(conns, ConnectionConfig{Start: src, End: target, InputConfig: bySource[src]})
		}
	}
	return conns, nil
}
