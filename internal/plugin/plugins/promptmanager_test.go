package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

func TestPromptManagerOverrideReplacesExistingSystemMessage(t *testing.T) {
	p := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{{Name: "v1", Mode: PromptModeOverride, Text: "be terse", Percentage: 100}},
	})
	ctx := &model.Context{RequestID: "req-1", Request: &model.Request{Messages: []model.Message{
		{Role: model.RoleSystem, Content: "be verbose"},
		{Role: model.RoleUser, Content: "hi"},
	}}}
	res := p.BeforeModel(ctx)
	require.NotNil(t, res.Patch)
	require.NotNil(t, res.Patch.Request)
	assert.Equal(t, "be terse", res.Patch.Request.Messages[0].Content)
}

func TestPromptManagerOverrideInsertsSystemMessageWhenAbsent(t *testing.T) {
	p := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{{Mode: PromptModeOverride, Text: "be terse", Percentage: 100}},
	})
	ctx := &model.Context{Request: &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}}
	res := p.BeforeModel(ctx)
	require.NotNil(t, res.Patch.Request)
	require.Len(t, res.Patch.Request.Messages, 2)
	assert.Equal(t, model.RoleSystem, res.Patch.Request.Messages[0].Role)
}

func TestPromptManagerBeforeAndAfterPrependOrAppend(t *testing.T) {
	before := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{{Mode: PromptModeBefore, Text: "PREFIX", Percentage: 100}},
	})
	ctx := &model.Context{Request: &model.Request{Messages: []model.Message{{Role: model.RoleSystem, Content: "base"}}}}
	res := before.BeforeModel(ctx)
	assert.Equal(t, "PREFIX\nbase", res.Patch.Request.Messages[0].Content)

	after := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{{Mode: PromptModeAfter, Text: "SUFFIX", Percentage: 100}},
	})
	res2 := after.BeforeModel(&model.Context{Request: &model.Request{Messages: []model.Message{{Role: model.RoleSystem, Content: "base"}}}})
	assert.Equal(t, "base\nSUFFIX", res2.Patch.Request.Messages[0].Content)
}

func TestPromptManagerWrapperSubstitutesPlaceholder(t *testing.T) {
	p := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{{Mode: PromptModeWrapper, Text: "SYS: ${PROMPT} END", Percentage: 100}},
	})
	res := p.BeforeModel(&model.Context{Request: &model.Request{Messages: []model.Message{{Role: model.RoleSystem, Content: "base"}}}})
	assert.Equal(t, "SYS: base END", res.Patch.Request.Messages[0].Content)
}

func TestPromptManagerNoVariantsIsNoop(t *testing.T) {
	p := NewPromptManager(PromptManagerConfig{Name_: "prompts", Enabled_: true})
	res := p.BeforeModel(&model.Context{Request: &model.Request{}})
	assert.Equal(t, plugin.Ok(), res)
}

func TestPromptManagerSingleVariantSkipsBucketing(t *testing.T) {
	p := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{{Mode: PromptModeOverride, Text: "solo", Percentage: 100}},
	})
	res := p.BeforeModel(&model.Context{RequestID: "", Request: &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}})
	require.NotNil(t, res.Patch)
	assert.Equal(t, "solo", res.Patch.Request.Messages[0].Content)
}

func TestPromptManagerBucketingIsDeterministicPerRequestID(t *testing.T) {
	p := NewPromptManager(PromptManagerConfig{
		Name_: "prompts", Enabled_: true,
		Variants: []Variant{
			{Name: "a", Mode: PromptModeOverride, Text: "A", Percentage: 50},
			{Name: "b", Mode: PromptModeOverride, Text: "B", Percentage: 50},
		},
	})
	req := &model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	res1 := p.BeforeModel(&model.Context{RequestID: "stable-id", Request: req})
	res2 := p.BeforeModel(&model.Context{RequestID: "stable-id", Request: req})
	assert.Equal(t, res1.Patch.Request.Messages[0].Content, res2.Patch.Request.Messages[0].Content)
}
