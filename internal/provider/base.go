package provider

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Config is the shared construction config for every vendor client.
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client

	// BypassModel, when true, forwards the caller-supplied model string
	// verbatim; when false, ConfiguredModel is substituted (§4.4).
	BypassModel     bool
	ConfiguredModel string

	Retry RetryPolicy
	Log   zerolog.Logger
}

// resolveModel applies the bypassModel rule of §4.4.
func (c Config) resolveModel(requested string) string {
	if c.BypassModel || c.ConfiguredModel == "" {
		return requested
	}
	return c.ConfiguredModel
}

func (c Config) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c Config) retryPolicy() RetryPolicy {
	if c.Retry.Attempts < 1 {
		return DefaultRetryPolicy
	}
	return c.Retry
}
