// Package pipeline implements §4.5's plugin execution engine: ordering,
// short-circuiting, context-patch application, and detached scheduling.
// The teacher has no precedent for this — it is grounded on the plugin
// chain designs in the other_examples corpus (the blueberrycongee and
// jordanhubbard plugin interfaces), generalised to the four-hook shape.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/exp/slices"

	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// Engine runs a fixed, ordered set of plugins across the four phases.
type Engine struct {
	log      zerolog.Logger
	before   []plugin.Plugin // ascending priority
	after    []plugin.Plugin // descending priority
	detached []plugin.Plugin

	counters map[string]*atomic.Int64 // hook-call counters, keyed by plugin name
	mu       sync.Mutex
}

// New builds an Engine from the full set of registered plugins. Ordering for
// beforeModel is ascending priority; afterModel/afterChunk/detached run in
// descending priority, i.e. the reverse order of beforeModel (§4.5's
// "unwind" rule — the last plugin to touch the request is the first to see
// the response).
func New(log zerolog.Logger, plugins []plugin.Plugin) *Engine {
	before := make([]plugin.Plugin, len(plugins))
	copy(before, plugins)
	slices.SortStableFunc(before, func(a, b plugin.Plugin) int { return a.Priority() - b.Priority() })

	after := make([]plugin.Plugin, len(before))
	copy(after, before)
	slices.SortStableFunc(after, func(a, b plugin.Plugin) int { return b.Priority() - a.Priority() })

	counters := make(map[string]*atomic.Int64, len(plugins))
	for _, p := range plugins {
		counters[p.Name()] = atomic.NewInt64(0)
	}

	return &Engine{log: log, before: before, after: after, detached: after, counters: counters}
}

// CallCount returns how many times a plugin's hooks were invoked in total —
// used by tests to assert "disabled plugin ⇒ zero hook calls" (§8).
func (e *Engine) CallCount(name string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.counters[name]
	if !ok {
		return 0
	}
	return c.Load()
}

func (e *Engine) bump(name string) {
	e.mu.Lock()
	c, ok := e.counters[name]
	e.mu.Unlock()
	if ok {
		c.Inc()
	}
}

func (e *Engine) eligible(p plugin.Plugin, ctx *model.Context) bool {
	return p.Enabled() && p.Conditions().Matches(ctx)
}

// Outcome summarizes how a phase finished.
type Outcome struct {
	Terminated bool
	Err        *apperr.Error
}

// RunBeforeModel runs beforeModel hooks in ascending priority order.
func (e *Engine) RunBeforeModel(ctx *model.Context) Outcome {
	for _, p := range e.before {
		hook, ok := p.(plugin.BeforeModelHook)
		if !ok || !e.eligible(p, ctx) {
			continue
		}
		e.bump(p.Name())
		res := hook.BeforeModel(ctx)
		if res.Patch != nil {
			res.Patch.Apply(ctx)
		}
		if res.Terminate {
			return Outcome{Terminated: true, Err: toAppErr(p.Name(), res)}
		}
		if res.SkipRemaining {
			break
		}
	}
	return Outcome{}
}

// RunAfterModel runs afterModel hooks in descending priority order, against
// a complete non-streaming response.
func (e *Engine) RunAfterModel(ctx *model.Context) Outcome {
	for _, p := range e.after {
		hook, ok := p.(plugin.AfterModelHook)
		if !ok || !e.eligible(p, ctx) {
			continue
		}
		e.bump(p.Name())
		res := hook.AfterModel(ctx)
		if res.Patch != nil {
			res.Patch.Apply(ctx)
		}
		if res.Terminate {
			return Outcome{Terminated: true, Err: toAppErr(p.Name(), res)}
		}
		if res.SkipRemaining {
			break
		}
	}
	return Outcome{}
}

// ChunkOutcome additionally reports whether the caller should emit
// ctx.BufferedChunk to the wire this round.
type ChunkOutcome struct {
	Outcome
	Emit bool
}

// RunAfterChunk runs afterChunk hooks in descending priority order. Emit
// defaults to true; any plugin setting EmitChunk=false suppresses the chunk
// for this round (§4.6).
func (e *Engine) RunAfterChunk(ctx *model.Context) ChunkOutcome {
	emit := true
	for _, p := range e.after {
		hook, ok := p.(plugin.AfterChunkHook)
		if !ok || !e.eligible(p, ctx) {
			continue
		}
		e.bump(p.Name())
		res := hook.AfterChunk(ctx)
		if res.Patch != nil {
			res.Patch.Apply(ctx)
		}
		if res.EmitChunk != nil {
			emit = *res.EmitChunk
		}
		if res.Terminate {
			return ChunkOutcome{Outcome: Outcome{Terminated: true, Err: toAppErr(p.Name(), res)}, Emit: emit}
		}
		if res.SkipRemaining {
			break
		}
	}
	return ChunkOutcome{Emit: emit}
}

// RunDetached schedules detachedAfterResponse hooks to run in the
// background, independent of the client connection's lifetime. Each hook
// runs in its own goroutine; panics and errors are logged, never returned,
// since by definition nothing is listening anymore.
func (e *Engine) RunDetached(parent context.Context, ctx *model.Context) {
	detachedCtx := context.WithoutCancel(parent)
	snapshot := ctx.Clone()
	for _, p := range e.detached {
		hook, ok := p.(plugin.DetachedHook)
		if !ok || !e.eligible(p, snapshot) {
			continue
		}
		go func(p plugin.Plugin, hook plugin.DetachedHook) {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Str("plugin", p.Name()).Interface("panic", r).Msg("detached plugin panicked")
				}
			}()
			e.bump(p.Name())
			_ = detachedCtx
			hook.DetachedAfterResponse(snapshot)
		}(p, hook)
	}
}

func toAppErr(pluginName string, res plugin.Result) *apperr.Error {
	if ae, ok := res.Err.(*apperr.Error); ok && ae != nil {
		if res.Status != 0 {
			return ae.WithStatus(res.Status)
		}
		return ae
	}
	msg := "terminated by plugin " + pluginName
	if res.Err != nil {
		msg = res.Err.Error()
	}
	ae := apperr.New(apperr.KindPluginError, msg)
	if res.Status != 0 {
		ae = ae.WithStatus(res.Status)
	}
	return ae
}
