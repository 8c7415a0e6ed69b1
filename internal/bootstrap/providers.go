package bootstrap

import (
	"github.com/howard-nolan/llmrouter/internal/provider"
)

// providerConstructor builds a provider.Provider from its Config — the
// generalised replacement for the teacher's providerFactory map, now keyed
// by the same provider names but carrying the full Config (retry policy,
// HTTP client, logger) instead of just an API key and base URL.
type providerConstructor func(cfg provider.Config) provider.Provider

var providerConstructors = map[string]providerConstructor{
	"openai":    func(cfg provider.Config) provider.Provider { return provider.NewOpenAIProvider(cfg) },
	"anthropic": func(cfg provider.Config) provider.Provider { return provider.NewAnthropicProvider(cfg) },
	"google":    func(cfg provider.Config) provider.Provider { return provider.NewGoogleProvider(cfg) },
}
