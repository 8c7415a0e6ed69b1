package bootstrap

import (
	"github.com/howard-nolan/llmrouter/internal/adapter/anthropic"
	"github.com/howard-nolan/llmrouter/internal/adapter/openai"
	"github.com/howard-nolan/llmrouter/internal/registry"
)

// BuildAdapters registers every compiled-in vendor adapter (§4.2/§4.3).
// Unlike providers and models, the adapter set isn't config-driven — it's
// the fixed set of wire formats the gateway understands how to speak.
func BuildAdapters() *registry.Adapters {
	adapters := registry.NewAdapters()
	adapters.Register(openai.New(), openai.New())
	adapters.Register(anthropic.New(), anthropic.New())
	return adapters
}
