package server

import (
	"io"
	"net/http"
	"time"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/provider"
	"github.com/howard-nolan/llmrouter/internal/reqid"
)

// handleChat returns the handler for one mounted adapter's BasePath: decode
// with in, run the pipeline, execute against the resolved provider, encode
// with out. Every adapter the registry knows about gets one of these.
func (s *Server) handleChat(in adapter.InputAdapter, out adapter.OutputAdapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := reqid.FromRequest(r)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeAppErr(w, requestID, apperr.Wrap(apperr.KindInputInvalid, "reading request body", err))
			return
		}

		req, err := in.Decode(body)
		if err != nil {
			writeAppErr(w, requestID, apperr.Wrap(apperr.KindInputInvalid, "decoding request", err))
			return
		}

		ctx := &model.Context{
			RequestID: requestID,
			HTTP: &model.HTTPView{
				Method:  r.Method,
				URL:     r.URL.String(),
				Headers: r.Header.Clone(),
				Body:    body,
			},
			Request:    req,
			PluginData: map[string]map[string]any{},
			Metadata:   model.Metadata{OriginalProvider: in.Name()},
		}
		ctx.Metrics.StartTime = start

		if outcome := s.deps.Engine.RunBeforeModel(ctx); outcome.Terminated {
			writeAppErr(w, requestID, outcome.Err)
			return
		}

		prov, upstreamReq, providerName, modelName, ae := s.resolveTarget(ctx)
		if ae != nil {
			writeAppErr(w, requestID, ae)
			return
		}

		w.Header().Set("X-LLMRouter-Provider", providerName)
		w.Header().Set("X-LLMRouter-Model", modelName)

		if upstreamReq.Stream {
			s.handleStreaming(w, r, ctx, prov, upstreamReq, out, providerName, modelName, start)
			return
		}
		s.handleUnary(w, r, ctx, prov, upstreamReq, out, providerName, modelName, start)
	}
}

// resolveTarget picks the provider and upstream request for ctx, honoring
// any TargetModel/TargetModelProvider a beforeModel plugin (e.g.
// model-router) assigned, falling back to the caller's requested model and
// then to the configured default model (§4.4).
func (s *Server) resolveTarget(ctx *model.Context) (provider.Provider, *model.Request, string, string, *apperr.Error) {
	modelName := ctx.TargetModel
	if modelName == "" {
		modelName = ctx.Request.Model
	}

	mc, ok := s.deps.Models.Get(modelName)
	if !ok {
		if def, hasDefault := s.deps.Models.Default(); hasDefault {
			mc, modelName, ok = def, def.Name, true
		}
	}
	if !ok {
		return nil, nil, "", "", apperr.New(apperr.KindModelNotConfigured, "no model configured for \""+modelName+"\"")
	}

	prov := mc.Provider
	if ctx.TargetModelProvider != "" {
		override, ok := s.deps.Providers.Get(ctx.TargetModelProvider)
		if !ok {
			return nil, nil, "", "", apperr.New(apperr.KindModelNotConfigured, "no provider registered named \""+ctx.TargetModelProvider+"\"")
		}
		prov = override
	}
	if prov == nil {
		return nil, nil, "", "", apperr.New(apperr.KindModelNotConfigured, "model \""+modelName+"\" has no provider")
	}
	providerName := prov.Name()

	upstream := *ctx.Request
	upstream.Model = modelName
	if mc.UpstreamModel != "" {
		upstream.Model = mc.UpstreamModel
	}
	return prov, &upstream, providerName, modelName, nil
}
