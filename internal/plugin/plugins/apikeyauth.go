// Package plugins holds the five bundled plugins of §4.8: basic-api-key-auth,
// auth-gateway, model-router, prompt-manager, and regex-hider. Each is an
// ordinary plugin.Plugin — nothing here is special-cased by the engine.
package plugins

import (
	"net/http"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// APIKeyAuthConfig configures BasicAPIKeyAuth.
type APIKeyAuthConfig struct {
	Name_      string
	Priority_  int
	Enabled_   bool
	Conditions plugin.Conditions

	// Keys is the set of accepted bearer tokens / x-api-key values.
	Keys map[string]bool
	// HeaderName overrides which header carries the key; when empty the key
	// is read from Authorization (stripped of a "Bearer " prefix), falling
	// back to X-API-Key.
	HeaderName string
}

// BasicAPIKeyAuth is the simplest gate: reject any request whose configured
// header doesn't carry one of a fixed set of keys. No external call, no
// cache — for deployments that don't need auth-gateway's identity lookup.
type BasicAPIKeyAuth struct {
	cfg APIKeyAuthConfig
}

func NewBasicAPIKeyAuth(cfg APIKeyAuthConfig) *BasicAPIKeyAuth {
	return &BasicAPIKeyAuth{cfg: cfg}
}

func (p *BasicAPIKeyAuth) Name() string                  { return p.cfg.Name_ }
func (p *BasicAPIKeyAuth) Priority() int                 { return p.cfg.Priority_ }
func (p *BasicAPIKeyAuth) Enabled() bool                 { return p.cfg.Enabled_ }
func (p *BasicAPIKeyAuth) Conditions() plugin.Conditions { return p.cfg.Conditions }

func (p *BasicAPIKeyAuth) key(ctx *model.Context) string {
	if ctx.HTTP == nil {
		return ""
	}
	if p.cfg.HeaderName != "" {
		val := ctx.HTTP.Headers.Get(p.cfg.HeaderName)
		if strings.EqualFold(p.cfg.HeaderName, "Authorization") {
			val = strings.TrimPrefix(val, "Bearer ")
		}
		return val
	}
	if val := ctx.HTTP.Headers.Get("Authorization"); val != "" {
		return strings.TrimPrefix(val, "Bearer ")
	}
	return ctx.HTTP.Headers.Get("X-API-Key")
}

func (p *BasicAPIKeyAuth) BeforeModel(ctx *model.Context) plugin.Result {
	key := p.key(ctx)
	if key == "" || !p.cfg.Keys[key] {
		return plugin.Result{
			Terminate: true,
			Status:    http.StatusUnauthorized,
			Err:       apperr.New(apperr.KindUnauthorized, "missing or invalid API key"),
		}
	}
	return plugin.Ok()
}
