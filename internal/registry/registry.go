// Package registry holds the name-keyed lookup tables the dispatcher
// consults at request time: which input/output adapters exist, which
// providers can execute a request, which models are configured, and which
// plugins make up the pipeline.
package registry

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/plugin"
	"github.com/howard-nolan/llmrouter/internal/provider"
)

// Adapters maps an adapter name to its input/output pair. One adapter name
// always implements both sides, mirroring the teacher's single-interface
// provider lookup but split across in/out halves per §4.2/§4.3.
type Adapters struct {
	inputs  map[string]adapter.InputAdapter
	outputs map[string]adapter.OutputAdapter
}

func NewAdapters() *Adapters {
	return &Adapters{inputs: map[string]adapter.InputAdapter{}, outputs: map[string]adapter.OutputAdapter{}}
}

func (a *Adapters) Register(in adapter.InputAdapter, out adapter.OutputAdapter) {
	a.inputs[in.Name()] = in
	a.outputs[out.Name()] = out
}

func (a *Adapters) Input(name string) (adapter.InputAdapter, bool) {
	in, ok := a.inputs[name]
	return in, ok
}

func (a *Adapters) Output(name string) (adapter.OutputAdapter, bool) {
	out, ok := a.outputs[name]
	return out, ok
}

// Names lists registered adapter names, sorted for deterministic route
// registration order.
func (a *Adapters) Names() []string {
	names := make([]string, 0, len(a.inputs))
	for name := range a.inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Providers maps a provider name ("openai", "anthropic", "google", ...) to
// its client implementation — generalising the teacher's own
// name→constructor map in cmd/llmrouter/main.go.
type Providers struct {
	byName map[string]provider.Provider
}

func NewProviders() *Providers {
	return &Providers{byName: map[string]provider.Provider{}}
}

func (p *Providers) Register(prov provider.Provider) {
	p.byName[prov.Name()] = prov
}

func (p *Providers) Get(name string) (provider.Provider, bool) {
	prov, ok := p.byName[name]
	return prov, ok
}

// ModelConfig is one entry from the configuration's models[] list. Each
// model owns its provider client instance — the provider↔model graph is a
// tree, never a cycle.
type ModelConfig struct {
	Name          string            // the model name callers request
	Provider      provider.Provider // the client instance serving it
	UpstreamModel string            // the name to send upstream; "" means pass Name through
	Default       bool
	Description   string
	ModelConfig   map[string]any
	Metadata      map[string]any
}

// Models maps a requested model name to its ModelConfig and tracks which one
// is the default. Per the teacher's own "last registration wins" pattern
// for provider factories, a later models[] entry marked Default demotes an
// earlier one — logged, not silently dropped.
type Models struct {
	log         zerolog.Logger
	byName      map[string]ModelConfig
	defaultName string
}

func NewModels(log zerolog.Logger) *Models {
	return &Models{log: log, byName: map[string]ModelConfig{}}
}

func (m *Models) Register(cfg ModelConfig) {
	if _, exists := m.byName[cfg.Name]; exists {
		m.log.Warn().Str("model", cfg.Name).Msg("duplicate model registration, overwriting")
	}
	m.byName[cfg.Name] = cfg
	if cfg.Default {
		if m.defaultName != "" && m.defaultName != cfg.Name {
			m.log.Warn().Str("previous_default", m.defaultName).Str("new_default", cfg.Name).Msg("default model demoted")
		}
		m.defaultName = cfg.Name
	}
}

func (m *Models) Get(name string) (ModelConfig, bool) {
	cfg, ok := m.byName[name]
	return cfg, ok
}

func (m *Models) Default() (ModelConfig, bool) {
	if m.defaultName == "" {
		return ModelConfig{}, false
	}
	return m.Get(m.defaultName)
}

// Plugins is the ordered set of plugins that bootstrap collects and builds
// the pipeline engine from.
type Plugins struct {
	list []plugin.Plugin
}

func NewPlugins() *Plugins { return &Plugins{} }

func (p *Plugins) Register(pl plugin.Plugin) error {
	for _, existing := range p.list {
		if existing.Name() == pl.Name() {
			return fmt.Errorf("plugin %q already registered", pl.Name())
		}
	}
	p.list = append(p.list, pl)
	return nil
}

func (p *Plugins) All() []plugin.Plugin { return p.list }
