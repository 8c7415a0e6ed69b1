package plugins

import (
	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// FallbackTarget names a (provider, model) pair in a model-router fallback
// chain: when a request against the requested model fails and is retried,
// the chain supplies the next candidate.
type FallbackTarget struct {
	Model    string
	Provider string
}

// ModelRouterConfig configures ModelRouter.
type ModelRouterConfig struct {
	Name_      string
	Priority_  int
	Enabled_   bool
	Conditions plugin.Conditions

	// Chains maps a requested model name to its ordered fallback list. The
	// requested model itself is implicitly chain[0]; entries here are what
	// to try on retry 1, 2, and so on.
	Chains map[string][]FallbackTarget

	// AvailableModels allowlists the models this router may route to. Empty
	// means no restriction. A chain pick outside the allowlist refuses the
	// attempt so the caller's retry driver can advance to the next target.
	AvailableModels map[string]bool
}

func (c ModelRouterConfig) available(name string) bool {
	return len(c.AvailableModels) == 0 || c.AvailableModels[name]
}

// ModelRouter picks the actual provider/model pair for a request based on
// ctx.RetryCount: attempt 0 uses the request's own model, later attempts
// walk the configured fallback chain. It never calls the provider itself —
// it only sets ctx.TargetModel/ctx.TargetModelProvider for the dispatcher to
// act on.
type ModelRouter struct {
	cfg ModelRouterConfig
}

func NewModelRouter(cfg ModelRouterConfig) *ModelRouter {
	return &ModelRouter{cfg: cfg}
}

func (p *ModelRouter) Name() string                  { return p.cfg.Name_ }
func (p *ModelRouter) Priority() int                 { return p.cfg.Priority_ }
func (p *ModelRouter) Enabled() bool                 { return p.cfg.Enabled_ }
func (p *ModelRouter) Conditions() plugin.Conditions { return p.cfg.Conditions }

func (p *ModelRouter) BeforeModel(ctx *model.Context) plugin.Result {
	fallbacks, ok := p.cfg.Chains[ctx.Request.Model]
	if !ok && len(p.cfg.AvailableModels) == 0 {
		return plugin.Ok()
	}

	// The requested model is chain[0]; configured fallbacks follow. Attempt
	// N (= RetryCount) uses the Nth entry.
	chain := append([]FallbackTarget{{Model: ctx.Request.Model}}, fallbacks...)
	if ctx.RetryCount >= len(chain) {
		return plugin.Result{
			Terminate: true,
			Err:       apperr.New(apperr.KindModelNotConfigured, "no further fallback targets for model "+ctx.Request.Model),
		}
	}

	target := chain[ctx.RetryCount]
	if !p.cfg.available(target.Model) {
		return plugin.Result{
			Terminate: true,
			Err:       apperr.New(apperr.KindModelNotConfigured, "model "+target.Model+" is not available"),
		}
	}

	return plugin.Result{
		Patch: &plugin.ContextPatch{
			TargetModel:         target.Model,
			TargetModelProvider: target.Provider,
		},
	}
}
