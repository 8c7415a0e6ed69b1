// Package plugin defines the pipeline contract of §4.5: the Plugin
// interface, its four optional phase hooks, match conditions, and the
// result type a hook returns to patch the request context.
//
// Plugins are polymorphic over a capability set rather than a fixed
// interface (§9 design notes): a plugin only implements the hook
// interfaces for the phases it participates in, and internal/pipeline
// type-asserts for each one. This keeps a plugin that only does
// beforeModel (basic-api-key-auth) from having to stub three no-ops.
package plugin

import (
	"github.com/howard-nolan/llmrouter/internal/model"
)

// Phase is one of the four pipeline hooks.
type Phase string

const (
	PhaseBeforeModel           Phase = "beforeModel"
	PhaseAfterModel            Phase = "afterModel"
	PhaseAfterChunk            Phase = "afterChunk"
	PhaseDetachedAfterResponse Phase = "detachedAfterResponse"
)

// Plugin is the minimal contract every plugin satisfies: identity,
// ordering, enablement, and eligibility. Whether it actually does anything
// in a given phase is determined by which of BeforeModelHook,
// AfterModelHook, AfterChunkHook, DetachedHook it additionally implements.
type Plugin interface {
	Name() string
	Priority() int
	Enabled() bool
	Conditions() Conditions
}

// BeforeModelHook is implemented by plugins that act before the provider
// call: authentication, prompt injection, model routing, input redaction.
type BeforeModelHook interface {
	BeforeModel(ctx *model.Context) Result
}

// AfterModelHook is implemented by plugins that act on a complete
// non-streaming response.
type AfterModelHook interface {
	AfterModel(ctx *model.Context) Result
}

// AfterChunkHook is implemented by plugins that act on each streaming
// chunk after it has been folded into ctx.BufferedChunk.
type AfterChunkHook interface {
	AfterChunk(ctx *model.Context) Result
}

// DetachedHook is implemented by plugins that run fire-and-forget after
// the client connection has closed. Failures are logged, never surfaced.
type DetachedHook interface {
	DetachedAfterResponse(ctx *model.Context)
}
