package script

import (
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// contextToLua exposes the fields a script plugin plausibly needs: request
// identity, the model name in play, and the message list flattened to
// role/content pairs. It does not round-trip the full internal.Request —
// scripts patch via the returned table's "metadata" and "terminate"/"error"
// fields, not by rewriting messages in place.
func contextToLua(L *lua.LState, ctx *model.Context) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("request_id", lua.LString(ctx.RequestID))
	t.RawSetString("user_id", lua.LString(ctx.UserID))
	t.RawSetString("session_id", lua.LString(ctx.SessionID))
	t.RawSetString("target_model", lua.LString(ctx.TargetModel))
	t.RawSetString("retry_count", lua.LNumber(ctx.RetryCount))

	if ctx.Request != nil {
		t.RawSetString("model", lua.LString(ctx.Request.Model))
		messages := L.NewTable()
		for _, m := range ctx.Request.Messages {
			row := L.NewTable()
			row.RawSetString("role", lua.LString(m.Role))
			row.RawSetString("content", lua.LString(m.Content))
			messages.Append(row)
		}
		t.RawSetString("messages", messages)
	}

	if ctx.HTTP != nil {
		t.RawSetString("method", lua.LString(ctx.HTTP.Method))
		t.RawSetString("path", lua.LString(ctx.HTTP.URL))
	}

	return t
}

// luaToResult reads back the table a hook function returned. Recognised
// fields: terminate (bool), status (number), error (string), skip_remaining
// (bool), emit_chunk (bool), metadata (table of string->string, merged into
// ctx.Metadata.Custom).
func luaToResult(v lua.LValue) plugin.Result {
	table, ok := v.(*lua.LTable)
	if !ok {
		return plugin.Ok()
	}

	res := plugin.Result{}
	if terminate, ok := table.RawGetString("terminate").(lua.LBool); ok {
		res.Terminate = bool(terminate)
	}
	if skip, ok := table.RawGetString("skip_remaining").(lua.LBool); ok {
		res.SkipRemaining = bool(skip)
	}
	if status, ok := table.RawGetString("status").(lua.LNumber); ok {
		res.Status = int(status)
	}
	if errMsg, ok := table.RawGetString("error").(lua.LString); ok && errMsg != "" {
		res.Err = errScript(string(errMsg))
	}
	if emit, ok := table.RawGetString("emit_chunk").(lua.LBool); ok {
		emitVal := bool(emit)
		res.EmitChunk = &emitVal
	}

	if metaTable, ok := table.RawGetString("metadata").(*lua.LTable); ok {
		custom := map[string]any{}
		metaTable.ForEach(func(k, val lua.LValue) {
			custom[k.String()] = val.String()
		})
		if len(custom) > 0 {
			res.Patch = &plugin.ContextPatch{MetadataPatch: &model.Metadata{Custom: custom}}
		}
	}

	return res
}

type scriptError string

func (e scriptError) Error() string { return string(e) }

func errScript(msg string) error { return scriptError(msg) }
