// Package script implements §4.8's "availableExtensions[]" dynamic plugin
// loading: a plugin whose logic lives in a Lua script rather than compiled
// Go, loaded at startup the way the rest of the registry loads compiled
// plugins. This is the one bundled plugin kind with no teacher precedent at
// all — grounded instead on yuin/gopher-lua's own documented embedding
// pattern (a fresh *lua.LState per call, globals registered before
// DoString/DoFile, results read back off the stack).
package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// Config configures Plugin.
type Config struct {
	Name_      string
	Priority_  int
	Enabled_   bool
	Conditions plugin.Conditions

	// Path is the Lua source file implementing this plugin's hooks.
	Path string
}

// Plugin adapts a Lua script to the plugin.Plugin contract. The script may
// define any of before_model(ctx), after_model(ctx), after_chunk(ctx),
// detached_after_response(ctx); Plugin only exposes the corresponding hook
// interface when the function is actually present, same capability-set
// pattern the compiled plugins use.
type Plugin struct {
	cfg    Config
	source string

	hasBeforeModel bool
	hasAfterModel  bool
	hasAfterChunk  bool
	hasDetached    bool
}

// Load reads and validates cfg.Path, probing which hook functions it
// defines so the engine's type assertions (BeforeModelHook etc.) reflect
// reality without running the script once per request just to find out.
func Load(cfg Config) (*Plugin, error) {
	data, err := readFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", cfg.Path, err)
	}

	probe := lua.NewState()
	defer probe.Close()
	if err := probe.DoString(string(data)); err != nil {
		return nil, fmt.Errorf("loading script %s: %w", cfg.Path, err)
	}

	p := &Plugin{cfg: cfg, source: string(data)}
	p.hasBeforeModel = isFunction(probe, "before_model")
	p.hasAfterModel = isFunction(probe, "after_model")
	p.hasAfterChunk = isFunction(probe, "after_chunk")
	p.hasDetached = isFunction(probe, "detached_after_response")
	return p, nil
}

func isFunction(L *lua.LState, name string) bool {
	_, ok := L.GetGlobal(name).(*lua.LFunction)
	return ok
}

func (p *Plugin) Name() string                  { return p.cfg.Name_ }
func (p *Plugin) Priority() int                 { return p.cfg.Priority_ }
func (p *Plugin) Enabled() bool                 { return p.cfg.Enabled_ }
func (p *Plugin) Conditions() plugin.Conditions { return p.cfg.Conditions }

// HasBeforeModel, HasAfterModel, HasAfterChunk, HasDetached let Wrap (see
// wrap.go) decide which phase interfaces to expose this Plugin under — it
// always satisfies the Go interfaces structurally, so Wrap picks a wrapper
// type from these flags.
func (p *Plugin) HasBeforeModel() bool { return p.hasBeforeModel }
func (p *Plugin) HasAfterModel() bool  { return p.hasAfterModel }
func (p *Plugin) HasAfterChunk() bool  { return p.hasAfterChunk }
func (p *Plugin) HasDetached() bool    { return p.hasDetached }

func (p *Plugin) newState() (*lua.LState, error) {
	L := lua.NewState()
	if err := L.DoString(p.source); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

func (p *Plugin) call(fnName string, ctx *model.Context) (plugin.Result, error) {
	L, err := p.newState()
	if err != nil {
		return plugin.Result{}, err
	}
	defer L.Close()

	fn := L.GetGlobal(fnName)
	if fn.Type() != lua.LTFunction {
		return plugin.Result{}, fmt.Errorf("script %s has no function %s", p.cfg.Path, fnName)
	}

	ctxTable := contextToLua(L, ctx)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, ctxTable); err != nil {
		return plugin.Result{}, fmt.Errorf("calling %s in %s: %w", fnName, p.cfg.Path, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return luaToResult(ret), nil
}

// BeforeModel runs this script's before_model function. Scripts that don't
// define one never reach here — see Wrap, which only attaches the hook
// interfaces a given script actually implements.
func (p *Plugin) BeforeModel(ctx *model.Context) plugin.Result {
	res, err := p.call("before_model", ctx)
	if err != nil {
		return plugin.Fail(err)
	}
	return res
}

// AfterModel runs this script's after_model function.
func (p *Plugin) AfterModel(ctx *model.Context) plugin.Result {
	res, err := p.call("after_model", ctx)
	if err != nil {
		return plugin.Fail(err)
	}
	return res
}

// AfterChunk runs this script's after_chunk function.
func (p *Plugin) AfterChunk(ctx *model.Context) plugin.Result {
	res, err := p.call("after_chunk", ctx)
	if err != nil {
		return plugin.Fail(err)
	}
	return res
}

// DetachedAfterResponse runs this script's detached_after_response
// function. DetachedHook returns nothing, so an error from the script is
// discarded here and not logged.
func (p *Plugin) DetachedAfterResponse(ctx *model.Context) {
	_, _ = p.call("detached_after_response", ctx)
}
