package bootstrap

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/pipeline"
	"github.com/howard-nolan/llmrouter/internal/registry"
)

// BuildPipeline constructs every configured plugin (bundled, from
// cfg.Plugins) and every Lua-scripted extension (from
// cfg.AvailableExtensions), registers them in a registry.Plugins, and
// builds the pipeline.Engine that runs them in priority order (§4.5/§4.8).
func BuildPipeline(cfg *config.Config, log zerolog.Logger) (*registry.Plugins, *pipeline.Engine, error) {
	plugins := registry.NewPlugins()

	for _, pc := range cfg.Plugins {
		p, err := BuildPlugin(pc, log.With().Str("plugin", pc.Name).Logger())
		if err != nil {
			return nil, nil, fmt.Errorf("building plugin %q: %w", pc.Name, err)
		}
		if err := plugins.Register(p); err != nil {
			return nil, nil, err
		}
	}

	for _, ec := range cfg.AvailableExtensions {
		p, err := BuildExtension(ec)
		if err != nil {
			return nil, nil, fmt.Errorf("loading extension %q: %w", ec.Name, err)
		}
		if err := plugins.Register(p); err != nil {
			return nil, nil, err
		}
	}

	engine := pipeline.New(log, plugins.All())
	return plugins, engine, nil
}
