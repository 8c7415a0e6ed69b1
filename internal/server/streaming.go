package server

import (
	"net/http"
	"time"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/merge"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/provider"
)

// handleStreaming executes a streaming request: open the provider's event
// channel, fold each chunk through the merge engine (§4.6), give afterChunk
// a chance to suppress or rewrite it, and emit what survives through out's
// StreamWriter. Once headers are sent there is no way to turn a mid-stream
// failure into an HTTP error status — the best we can do is stop sending
// events, same limitation the teacher's own stream writer documented.
func (s *Server) handleStreaming(w http.ResponseWriter, r *http.Request, ctx *model.Context, prov provider.Provider, upstreamReq *model.Request, out adapter.OutputAdapter, providerName, modelName string, start time.Time) {
	events, err := prov.ExecuteStreaming(r.Context(), upstreamReq)
	if err != nil {
		s.observe(ctx, providerName, modelName, "error", start)
		writeAppErr(w, ctx.RequestID, provider.ToAppErr(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-Id", ctx.RequestID)
	w.WriteHeader(http.StatusOK)

	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveStreams.Inc()
		defer s.deps.Metrics.ActiveStreams.Dec()
	}

	sw := out.NewStreamWriter(w)
	m := merge.New()
	status := "ok"

	for ev := range events {
		if ev.Err != nil {
			s.deps.Log.Error().Err(ev.Err).Str("request_id", ctx.RequestID).Msg("stream error mid-flight")
			status = "error"
			break
		}

		if ev.Chunk != nil {
			m.FoldIntoBuffer(ev.Chunk)
		}
		ctx.Chunk = ev.Chunk
		ctx.BufferedChunk = m.Buffered
		ctx.AccumulatedResponse = m.Accumulated
		ctx.FinalChunk = ev.Final

		outcome := s.deps.Engine.RunAfterChunk(ctx)
		if outcome.Terminated {
			s.deps.Log.Error().Str("request_id", ctx.RequestID).Str("kind", string(outcome.Err.Kind)).Msg("afterChunk terminated an in-flight stream")
			status = "error"
			break
		}
		// A retained buffered chunk is force-flushed on the final chunk no
		// matter what the plugins decided, so suppressed text is never lost.
		emit := outcome.Emit || ev.Final
		if emit && !bufferedEmpty(ctx.BufferedChunk) {
			if err := sw.WriteChunk(ctx.BufferedChunk); err != nil {
				s.deps.Log.Error().Err(err).Str("request_id", ctx.RequestID).Msg("writing stream chunk")
				status = "error"
				break
			}
			m.Commit()
		}
		if ev.Final {
			break
		}
	}

	if err := sw.Close(); err != nil {
		s.deps.Log.Error().Err(err).Str("request_id", ctx.RequestID).Msg("closing stream")
	}

	ctx.Response = m.Accumulated
	s.finish(ctx, providerName, modelName, status, start)
	s.deps.Engine.RunDetached(r.Context(), ctx)
}

// bufferedEmpty reports that nothing has accumulated in the buffered chunk,
// so there is no frame worth writing.
func bufferedEmpty(resp *model.Response) bool {
	return resp == nil || (len(resp.Content) == 0 && resp.Usage == nil)
}
