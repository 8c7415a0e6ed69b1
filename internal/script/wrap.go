package script

import (
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// Wrap returns p as a plugin.Plugin whose static type only exposes the hook
// interfaces the script actually defines. This matters because
// pipeline.Engine decides whether to call a phase by type-asserting for
// BeforeModelHook/AfterModelHook/AfterChunkHook/DetachedHook — if the
// wrapper's type always exposed all four methods (e.g. via embedding *Plugin
// directly, which promotes every method regardless of which Lua functions
// exist), a script with no after_model would still satisfy AfterModelHook
// and get called every request, failing on the missing Lua function.
// base carries only the identity methods (Name/Priority/Enabled/
// Conditions); each disjoint wrapper type below adds exactly the hook
// methods its capability combination supports, by explicit delegation
// rather than embedding *Plugin.
func Wrap(p *Plugin) plugin.Plugin {
	b := base{p}
	switch {
	case p.HasBeforeModel() && p.HasAfterModel() && p.HasAfterChunk() && p.HasDetached():
		return beforeAfterChunkDetached{b, p}
	case p.HasBeforeModel() && p.HasAfterModel() && p.HasAfterChunk():
		return beforeAfterChunk{b, p}
	case p.HasBeforeModel() && p.HasAfterModel():
		return beforeAfter{b, p}
	case p.HasBeforeModel() && p.HasDetached():
		return beforeDetached{b, p}
	case p.HasBeforeModel():
		return beforeOnly{b, p}
	case p.HasAfterModel() && p.HasAfterChunk():
		return afterChunkOnly{b, p}
	case p.HasAfterModel():
		return afterOnly{b, p}
	case p.HasAfterChunk():
		return chunkOnly{b, p}
	case p.HasDetached():
		return detachedOnly{b, p}
	default:
		return b
	}
}

// base implements plugin.Plugin's identity methods only.
type base struct{ p *Plugin }

func (b base) Name() string                  { return b.p.Name() }
func (b base) Priority() int                 { return b.p.Priority() }
func (b base) Enabled() bool                 { return b.p.Enabled() }
func (b base) Conditions() plugin.Conditions { return b.p.Conditions() }

type beforeOnly struct {
	base
	p *Plugin
}

func (w beforeOnly) BeforeModel(ctx *model.Context) plugin.Result { return w.p.BeforeModel(ctx) }

type afterOnly struct {
	base
	p *Plugin
}

func (w afterOnly) AfterModel(ctx *model.Context) plugin.Result { return w.p.AfterModel(ctx) }

type chunkOnly struct {
	base
	p *Plugin
}

func (w chunkOnly) AfterChunk(ctx *model.Context) plugin.Result { return w.p.AfterChunk(ctx) }

type detachedOnly struct {
	base
	p *Plugin
}

func (w detachedOnly) DetachedAfterResponse(ctx *model.Context) { w.p.DetachedAfterResponse(ctx) }

type beforeAfter struct {
	base
	p *Plugin
}

func (w beforeAfter) BeforeModel(ctx *model.Context) plugin.Result { return w.p.BeforeModel(ctx) }
func (w beforeAfter) AfterModel(ctx *model.Context) plugin.Result  { return w.p.AfterModel(ctx) }

type afterChunkOnly struct {
	base
	p *Plugin
}

func (w afterChunkOnly) AfterModel(ctx *model.Context) plugin.Result { return w.p.AfterModel(ctx) }
func (w afterChunkOnly) AfterChunk(ctx *model.Context) plugin.Result { return w.p.AfterChunk(ctx) }

type beforeDetached struct {
	base
	p *Plugin
}

func (w beforeDetached) BeforeModel(ctx *model.Context) plugin.Result { return w.p.BeforeModel(ctx) }
func (w beforeDetached) DetachedAfterResponse(ctx *model.Context)     { w.p.DetachedAfterResponse(ctx) }

type beforeAfterChunk struct {
	base
	p *Plugin
}

func (w beforeAfterChunk) BeforeModel(ctx *model.Context) plugin.Result { return w.p.BeforeModel(ctx) }
func (w beforeAfterChunk) AfterModel(ctx *model.Context) plugin.Result  { return w.p.AfterModel(ctx) }
func (w beforeAfterChunk) AfterChunk(ctx *model.Context) plugin.Result  { return w.p.AfterChunk(ctx) }

type beforeAfterChunkDetached struct {
	base
	p *Plugin
}

func (w beforeAfterChunkDetached) BeforeModel(ctx *model.Context) plugin.Result {
	return w.p.BeforeModel(ctx)
}
func (w beforeAfterChunkDetached) AfterModel(ctx *model.Context) plugin.Result {
	return w.p.AfterModel(ctx)
}
func (w beforeAfterChunkDetached) AfterChunk(ctx *model.Context) plugin.Result {
	return w.p.AfterChunk(ctx)
}
func (w beforeAfterChunkDetached) DetachedAfterResponse(ctx *model.Context) {
	w.p.DetachedAfterResponse(ctx)
}
