package server

import (
	"net/http"
	"time"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/provider"
)

// handleUnary executes a non-streaming request: call the provider, run
// afterModel, encode the response, schedule detached hooks.
func (s *Server) handleUnary(w http.ResponseWriter, r *http.Request, ctx *model.Context, prov provider.Provider, upstreamReq *model.Request, out adapter.OutputAdapter, providerName, modelName string, start time.Time) {
	resp, err := prov.Execute(r.Context(), upstreamReq)
	if err != nil {
		s.observe(ctx, providerName, modelName, "error", start)
		writeAppErr(w, ctx.RequestID, provider.ToAppErr(err))
		return
	}
	ctx.Response = resp

	if outcome := s.deps.Engine.RunAfterModel(ctx); outcome.Terminated {
		s.observe(ctx, providerName, modelName, "error", start)
		writeAppErr(w, ctx.RequestID, outcome.Err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", ctx.RequestID)
	if err := out.EncodeUnary(w, ctx.Response); err != nil {
		s.deps.Log.Error().Err(err).Str("request_id", ctx.RequestID).Msg("encoding unary response")
	}

	s.finish(ctx, providerName, modelName, "ok", start)
	s.deps.Engine.RunDetached(r.Context(), ctx)
}
