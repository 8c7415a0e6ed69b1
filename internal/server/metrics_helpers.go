package server

import (
	"time"

	"github.com/howard-nolan/llmrouter/internal/model"
)

// finish records a completed request's latency, status, and token usage.
// Safe to call with s.deps.Metrics == nil (metrics are optional in tests).
func (s *Server) finish(ctx *model.Context, providerName, modelName, status string, start time.Time) {
	ctx.Metrics.EndTime = time.Now()
	ctx.Metrics.Duration = ctx.Metrics.EndTime.Sub(start)

	prompt, completion := 0, 0
	if ctx.Response != nil && ctx.Response.Usage != nil {
		if ctx.Response.Usage.PromptTokens != nil {
			prompt = *ctx.Response.Usage.PromptTokens
		}
		if ctx.Response.Usage.CompletionTokens != nil {
			completion = *ctx.Response.Usage.CompletionTokens
		}
	}
	ctx.Metrics.InputTokens = prompt
	ctx.Metrics.OutputTokens = completion
	ctx.Metrics.TotalTokens = prompt + completion

	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.ObserveRequest(ctx.Metadata.OriginalProvider, providerName, modelName, status, ctx.Metrics.Duration)
	if prompt > 0 || completion > 0 {
		s.deps.Metrics.ObserveTokens(modelName, prompt, completion)
	}
}

// observe records a request that failed before a response body existed.
func (s *Server) observe(ctx *model.Context, providerName, modelName, status string, start time.Time) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.ObserveRequest(ctx.Metadata.OriginalProvider, providerName, modelName, status, time.Since(start))
}
