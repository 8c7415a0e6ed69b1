package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
  read_timeout: 10s
  write_timeout: 60s
  cors:
    origins:
      - https://example.com

models:
  - name: gpt-4o
    isDefault: true
    description: default chat model
    provider:
      type: openai
      config:
        api_key: ${TEST_API_KEY}
        base_url: https://api.openai.com/v1
  - name: gpt-4o-mini
    provider:
      type: openai
      config:
        model: gpt-4o-mini-2024-07-18
        retry_attempts: 2
        retry_delay: 250ms

plugins:
  - name: gate
    type: basic_api_key_auth
    priority: 10
    config:
      keys: [k1]
  - name: hider
    type: regex_hider

logging:
  level: info
  format: json
  destinations: [stdout]
`)

	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORS.Origins)

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "gpt-4o", cfg.Models[0].Name)
	assert.True(t, cfg.Models[0].IsDefault)
	assert.Equal(t, "openai", cfg.Models[0].Provider.Type)
	assert.Equal(t, "my-secret-key", cfg.Models[0].Provider.Config.APIKey)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", cfg.Models[1].Provider.Config.Model)
	assert.Equal(t, 2, cfg.Models[1].Provider.Config.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Models[1].Provider.Config.RetryDelay)

	require.Len(t, cfg.Plugins, 2)
	assert.Equal(t, 10, cfg.Plugins[0].Priority)
	assert.True(t, cfg.Plugins[0].Enabled, "enabled defaults to true when omitted")
	assert.Equal(t, 1000, cfg.Plugins[1].Priority, "priority defaults to 1000 when omitted")

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"stdout"}, cfg.Logging.Destinations)
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
models:
  - name: gpt-4o
    provider:
      type: openai
`)

	t.Setenv("LLMROUTER_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadExplicitlyDisabledPluginStaysDisabled(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
plugins:
  - name: off
    type: regex_hider
    enabled: false
`)
	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Plugins, 1)
	assert.False(t, cfg.Plugins[0].Enabled)
}

func TestLoadRejectsModelWithoutProviderType(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
models:
  - name: gpt-4o
`)
	_, err := Load(configPath)
	require.Error(t, err)
}

func TestLoadRejectsExtensionWithoutPathOrModule(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
availableExtensions:
  - name: broken
`)
	_, err := Load(configPath)
	require.Error(t, err)
}

func TestExpandEnvRefsHandlesDollarAndBraceForms(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
models:
  - name: gpt-4o
    provider:
      type: openai
      config:
        api_key: $PLAIN_VAR
        base_url: ${BRACE_VAR}
`)

	t.Setenv("PLAIN_VAR", "plain-value")
	t.Setenv("BRACE_VAR", "brace-value")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "plain-value", cfg.Models[0].Provider.Config.APIKey)
	assert.Equal(t, "brace-value", cfg.Models[0].Provider.Config.BaseURL)
}

func TestExpandEnvRefsLeavesUnresolvedPlaceholdersIntact(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
models:
  - name: gpt-4o
    provider:
      type: openai
      config:
        api_key: ${DEFINITELY_NOT_SET_ANYWHERE}
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "${DEFINITELY_NOT_SET_ANYWHERE}", cfg.Models[0].Provider.Config.APIKey)
}
