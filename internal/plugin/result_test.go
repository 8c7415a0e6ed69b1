package plugin

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/model"
)

func TestOkIsZeroValue(t *testing.T) {
	assert.Equal(t, Result{}, Ok())
}

func TestFailTerminatesWithError(t *testing.T) {
	err := errors.New("boom")
	r := Fail(err)
	assert.True(t, r.Terminate)
	assert.Equal(t, err, r.Err)
}

func TestContextPatchApplyNilIsNoop(t *testing.T) {
	ctx := &model.Context{TargetModel: "gpt-4o"}
	var patch *ContextPatch
	patch.Apply(ctx)
	assert.Equal(t, "gpt-4o", ctx.TargetModel)
}

func TestContextPatchApplyMetadataDeepMerges(t *testing.T) {
	ctx := &model.Context{Metadata: model.Metadata{OriginalProvider: "openai", Custom: map[string]any{"a": 1}}}
	patch := &ContextPatch{MetadataPatch: &model.Metadata{Custom: map[string]any{"b": 2}}}
	patch.Apply(ctx)
	assert.Equal(t, "openai", ctx.Metadata.OriginalProvider)
	assert.Equal(t, 1, ctx.Metadata.Custom["a"])
	assert.Equal(t, 2, ctx.Metadata.Custom["b"])
}

func TestContextPatchApplyPluginDataMergesPerKey(t *testing.T) {
	ctx := &model.Context{PluginData: map[string]map[string]any{
		"auth_gateway": {"cached": true},
	}}
	patch := &ContextPatch{PluginDataKey: "auth_gateway", PluginDataPatch: map[string]any{"ttl": 30}}
	patch.Apply(ctx)
	require.Contains(t, ctx.PluginData, "auth_gateway")
	assert.Equal(t, true, ctx.PluginData["auth_gateway"]["cached"])
	assert.Equal(t, 30, ctx.PluginData["auth_gateway"]["ttl"])
}

func TestContextPatchApplyPluginDataCreatesMissingKey(t *testing.T) {
	ctx := &model.Context{}
	patch := &ContextPatch{PluginDataKey: "model_router", PluginDataPatch: map[string]any{"attempt": 1}}
	patch.Apply(ctx)
	require.NotNil(t, ctx.PluginData)
	assert.Equal(t, 1, ctx.PluginData["model_router"]["attempt"])
}

func TestContextPatchApplyScalarFieldsReplaceWhenSet(t *testing.T) {
	ctx := &model.Context{TargetModel: "gpt-4o", TargetModelProvider: "openai", RetryCount: 0}
	retry := 2
	patch := &ContextPatch{TargetModel: "gpt-4o-mini", RetryCount: &retry, UserID: "u1", SessionID: "s1"}
	patch.Apply(ctx)
	assert.Equal(t, "gpt-4o-mini", ctx.TargetModel)
	assert.Equal(t, "openai", ctx.TargetModelProvider, "empty string in patch leaves existing value")
	assert.Equal(t, 2, ctx.RetryCount)
	assert.Equal(t, "u1", ctx.UserID)
	assert.Equal(t, "s1", ctx.SessionID)
}

func TestContextPatchApplyHeadersSetAndRemove(t *testing.T) {
	hdr := http.Header{}
	hdr.Set("X-Auth-Token", "secret")
	ctx := &model.Context{HTTP: &model.HTTPView{Headers: hdr}}
	patch := &ContextPatch{
		ExtraHeaders:  map[string]string{"X-LLMRouter-User": "u1"},
		RemoveHeaders: []string{"X-Auth-Token"},
	}
	patch.Apply(ctx)
	assert.Equal(t, "u1", ctx.HTTP.Headers.Get("X-LLMRouter-User"))
	assert.Empty(t, ctx.HTTP.Headers.Get("X-Auth-Token"))
}

func TestContextPatchApplyHeadersNoopWithoutHTTPView(t *testing.T) {
	ctx := &model.Context{}
	patch := &ContextPatch{ExtraHeaders: map[string]string{"X-Foo": "bar"}}
	assert.NotPanics(t, func() { patch.Apply(ctx) })
}

func TestContextPatchApplyRequestAndResponse(t *testing.T) {
	ctx := &model.Context{}
	req := &model.Request{Model: "gpt-4o"}
	resp := &model.Response{ID: "resp-1"}
	patch := &ContextPatch{Request: req, Response: resp}
	patch.Apply(ctx)
	assert.Same(t, req, ctx.Request)
	assert.Same(t, resp, ctx.Response)
}
