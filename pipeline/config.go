package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dshills/pipeflow-go/pipeline/sched"
)

// ComponentConfig declares one pipeline component: a unique node name, the
// registered class path of its factory, and constructor parameters.
type ComponentConfig struct {
	Name      string         `yaml:"name" json:"name"`
	ClassPath string         `yaml:"class_path" json:"class_path"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// ConnectionConfig declares one edge of the pipeline graph.
type ConnectionConfig struct {
	Start       string            `yaml:"start" json:"start"`
	End         string            `yaml:"end" json:"end"`
	InputConfig map[string]string `yaml:"input_config" json:"input_config"`
}

// Config is the declarative pipeline document. Connections may be omitted
// when Template selects a canonical shape (see Runner).
type Config struct {
	Components  []ComponentConfig  `yaml:"components" json:"components"`
	Connections []ConnectionConfig `yaml:"connections,omitempty" json:"connections,omitempty"`
	Template    string             `yaml:"template,omitempty" json:"template,omitempty"`
	Scheduler   *sched.Config      `yaml:"scheduler,omitempty" json:"scheduler,omitempty"`
}

// resolverKey marks a mapping parameter as a dot-path lookup into the
// resolved config document:
//
//	params:
//	  token: {resolver_: CONFIG_KEY, key_: "components.0.params.api_token"}
const (
	resolverKey      = "resolver_"
	resolverPathKey  = "key_"
	configKeyResolve = "CONFIG_KEY"
)

// LoadConfig reads a YAML pipeline document, resolves ${ENV_VAR} references
// against the process environment and CONFIG_KEY resolver references against
// the resolved document, and binds the result into a Config.
func LoadConfig(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(raw)
}

// LoadConfigFile is LoadConfig over a file path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// ParseConfig parses and resolves a YAML pipeline document.
func ParseConfig(raw []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	doc, err := resolveEnv(doc)
	if err != nil {
		return nil, err
	}
	doc, err = resolveConfigKeys(doc)
	if err != nil {
		return nil, err
	}

	resolved, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(resolved, &cfg); err != nil {
		return nil, fmt.Errorf("bind config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Components))
	for _, c := range cfg.Components {
		if c.Name == "" || c.ClassPath == "" {
			return nil, &DefinitionError{Message: "every component needs a name and a class_path"}
		}
		if seen[c.Name] {
			return nil, &DefinitionError{Message: fmt.Sprintf("duplicate component name %q", c.Name)}
		}
		seen[c.Name] = true
	}
	return &cfg, nil
}

// resolveEnv walks the document and expands ${VAR} references in every
// string. An unset variable is an error rather than an empty substitution.
func resolveEnv(doc any) (any, error) {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			r, err := resolveEnv(val)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			r, err := resolveEnv(val)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		return expandEnvStrict(v)
	default:
		return doc, nil
	}
}

func expandEnvStrict(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var missing []string
	expanded := os.Expand(s, func(name string) string {
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("config references unset environment variable %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// resolveConfigKeys replaces every {resolver_: CONFIG_KEY, key_: "a.b.c"}
// mapping with the value at that dot path in the document. Lookups resolve
// transitively; a reference cycle is an error.
func resolveConfigKeys(doc any) (any, error) {
	r := &keyResolver{root: doc, resolving: make(map[string]bool)}
	return r.resolve(doc)
}

type keyResolver struct {
	root      any
	resolving map[string]bool
}

func (r *keyResolver) resolve(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if path, ok := resolverRef(v); ok {
			return r.lookup(path)
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			res, err := r.resolve(val)
			if err != nil {
				return nil, err
			}
			out[k] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			res, err := r.resolve(val)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	default:
		return node, nil
	}
}

func (r *keyResolver) lookup(path string) (any, error) {
	if r.resolving[path] {
		return nil, fmt.Errorf("config key %q resolves to itself", path)
	}
	r.resolving[path] = true
	defer delete(r.resolving, path)

	node := r.root
	for _, part := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]any:
			child, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("config key %q not found (missing %q)", path, part)
			}
			node = child
		case []any:
			idx, err := listIndex(part, len(v))
			if err != nil {
				return nil, fmt.Errorf("config key %q: %w", path, err)
			}
			node = v[idx]
		default:
			return nil, fmt.Errorf("config key %q not found (cannot descend into %T)", path, node)
		}
	}
	return r.resolve(node)
}

func listIndex(part string, length int) (int, error) {
	idx := 0
	for _, c := range part {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q is not a list index", part)
		}
		idx = idx*10 + int(c-'0')
	}
	if part == "" || idx >= length {
		return 0, fmt.Errorf("list index %q out of range", part)
	}
	return idx, nil
}

func resolverRef(m map[string]any) (string, bool) {
	kind, ok := m[resolverKey].(string)
	if !ok || kind != configKeyResolve {
		return "", false
	}
	path, _ := m[resolverPathKey].(string)
	return path, path != ""
}

// Factory constructs a component from its declared parameters.
type Factory func(params map[string]any) (Component, error)

// Registry maps class paths to component factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under classPath, replacing any prior entry.
func (r *Registry) Register(classPath string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[classPath] = f
}

// Build constructs a component of the named class.
func (r *Registry) Build(classPath string, params map[string]any) (Component, error) {
	r.mu.RLock()
	f, ok := r.factories[classPath]
	r.mu.RUnlock()
	if !ok {
		return nil, &ComponentNotFoundError{Name: classPath}
	}
	return f(params)
}
