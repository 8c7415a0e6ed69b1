package bootstrap

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/provider"
	"github.com/howard-nolan/llmrouter/internal/registry"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
)

func retryPolicyFrom(pc config.ProviderConfig) provider.RetryPolicy {
	policy := provider.RetryPolicy{Attempts: pc.RetryAttempts, Delay: pc.RetryDelay}
	if policy.Attempts < 1 {
		policy.Attempts = defaultRetryAttempts
	}
	if policy.Delay <= 0 {
		policy.Delay = defaultRetryDelay
	}
	return policy
}

// BuildModels constructs one provider client per models[] entry and
// registers the model with its owning instance. BypassModel is always true:
// the dispatcher resolves the upstream model name from the catalog before
// calling Execute, so the client forwards whatever it's given (§4.4).
//
// The returned Providers registry holds one instance per vendor type — the
// first declared wins — so a routing plugin can name a provider override
// without a model of its own.
func BuildModels(cfg *config.Config, log zerolog.Logger) (*registry.Models, *registry.Providers, error) {
	models := registry.NewModels(log)
	providers := registry.NewProviders()

	for _, mc := range cfg.Models {
		ctor, ok := providerConstructors[mc.Provider.Type]
		if !ok {
			return nil, nil, fmt.Errorf("models[] entry %q: unknown provider type %q", mc.Name, mc.Provider.Type)
		}
		inst := ctor(provider.Config{
			APIKey:      mc.Provider.Config.APIKey,
			BaseURL:     mc.Provider.Config.BaseURL,
			Client:      http.DefaultClient,
			BypassModel: true,
			Retry:       retryPolicyFrom(mc.Provider.Config),
			Log:         log.With().Str("provider", mc.Provider.Type).Str("model", mc.Name).Logger(),
		})
		if _, exists := providers.Get(inst.Name()); !exists {
			providers.Register(inst)
		}
		models.Register(registry.ModelConfig{
			Name:          mc.Name,
			Provider:      inst,
			UpstreamModel: mc.Provider.Config.Model,
			Default:       mc.IsDefault,
			Description:   mc.Description,
			ModelConfig:   mc.ModelConfig,
			Metadata:      mc.Metadata,
		})
	}
	return models, providers, nil
}
