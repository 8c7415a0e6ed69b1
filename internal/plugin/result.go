package plugin

import (
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/model"
)

// Result is what a hook returns to the pipeline engine: whether it
// succeeded, whether execution should stop, and a patch to apply onto the
// request context before the next plugin runs.
type Result struct {
	// Terminate aborts the whole pipeline and the in-flight request. The
	// engine honours it in beforeModel, afterModel and afterChunk; from
	// beforeModel it becomes an error response and the provider is never
	// called.
	Terminate bool
	// SkipRemaining stops running plugins for the current phase only,
	// letting the request continue to the provider call (beforeModel) or to
	// the client (afterModel/afterChunk).
	SkipRemaining bool
	// Status is the HTTP status to report when Terminate is set. Defaults
	// to the Err's mapped status, or 500 if Err is also nil.
	Status int
	// Err, when non-nil, is surfaced to the client on Terminate. Without
	// Terminate the engine neither uses nor logs it.
	Err error
	// Patch is merged onto ctx after the hook returns, even when Terminate
	// is set (a plugin may want its context.Set() writes recorded before
	// the engine renders the error).
	Patch *ContextPatch
	// EmitChunk is only consulted by afterChunk; false suppresses sending
	// ctx.BufferedChunk to the wire this round, leaving it to accumulate
	// into the next one (§4.6's chunk-suppression path).
	EmitChunk *bool
}

// Ok is the zero-value "continue normally, no changes" result.
func Ok() Result { return Result{} }

// WithPatch returns Result{Patch: patch}.
func WithPatch(patch *ContextPatch) Result { return Result{Patch: patch} }

// Fail terminates the pipeline with the given error.
func Fail(err error) Result { return Result{Terminate: true, Err: err} }

// ContextPatch is the overlay a hook applies to the shared request context.
// Every field is optional; nil/zero means "leave untouched". Metadata and
// PluginData are deep-merged per §4.1's merge rule; everything else replaces
// the prior value wholesale.
type ContextPatch struct {
	MetadataPatch   *model.Metadata
	PluginDataKey   string
	PluginDataPatch map[string]any

	Request  *model.Request
	Response *model.Response

	TargetModel         string
	TargetModelProvider string
	RetryCount          *int
	UserID              string
	SessionID           string

	// ExtraHeaders are set onto ctx.HTTP.Headers (http.Header.Set, so already
	// case-insensitive) for downstream consumers such as logging or a later
	// plugin.
	ExtraHeaders map[string]string
	// RemoveHeaders deletes header keys from ctx.HTTP.Headers, case-
	// insensitively — used by auth-gateway to strip x-auth-*/x-user-* before
	// the request reaches the provider.
	RemoveHeaders []string
}

// Apply merges the patch onto ctx following the field-specific rules
// described on ContextPatch. Called by the pipeline engine after every hook
// invocation, even on Terminate.
func (p *ContextPatch) Apply(ctx *model.Context) {
	if p == nil {
		return
	}
	if p.MetadataPatch != nil {
		ctx.Metadata = ctx.Metadata.Merge(*p.MetadataPatch)
	}
	if p.PluginDataKey != "" && p.PluginDataPatch != nil {
		if ctx.PluginData == nil {
			ctx.PluginData = map[string]map[string]any{}
		}
		existing, ok := ctx.PluginData[p.PluginDataKey]
		if !ok || existing == nil {
			existing = map[string]any{}
		}
		for k, v := range p.PluginDataPatch {
			existing[k] = v
		}
		ctx.PluginData[p.PluginDataKey] = existing
	}
	if p.Request != nil {
		ctx.Request = p.Request
	}
	if p.Response != nil {
		ctx.Response = p.Response
	}
	if p.TargetModel != "" {
		ctx.TargetModel = p.TargetModel
	}
	if p.TargetModelProvider != "" {
		ctx.TargetModelProvider = p.TargetModelProvider
	}
	if p.RetryCount != nil {
		ctx.RetryCount = *p.RetryCount
	}
	if p.UserID != "" {
		ctx.UserID = p.UserID
	}
	if p.SessionID != "" {
		ctx.SessionID = p.SessionID
	}
	if ctx.HTTP != nil {
		if ctx.HTTP.Headers == nil && (len(p.ExtraHeaders) > 0 || len(p.RemoveHeaders) > 0) {
			ctx.HTTP.Headers = http.Header{}
		}
		for k, v := range p.ExtraHeaders {
			ctx.HTTP.Headers.Set(k, v)
		}
		for _, k := range p.RemoveHeaders {
			ctx.HTTP.Headers.Del(k)
		}
	}
}
