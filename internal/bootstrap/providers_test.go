package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/howard-nolan/llmrouter/internal/provider"
)

func TestProviderConstructorsCoverEveryConfigurableType(t *testing.T) {
	for _, typ := range []string{"openai", "anthropic", "google"} {
		ctor, ok := providerConstructors[typ]
		assert.True(t, ok, typ)
		assert.Equal(t, typ, ctor(provider.Config{}).Name())
	}
}
