package plugins

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/model"
)

func ssnRule(replacement string) RegexRule {
	return RegexRule{Pattern: regexp.MustCompile(`\d{3}-\d{2}-\d{4}`), Replacement: replacement}
}

func TestRegexHiderAfterModelReplacesMatches(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true, Mode: RegexModeReplace, Rules: []RegexRule{ssnRule("[ssn]")}})
	ctx := &model.Context{Response: &model.Response{Content: []model.Content{{
		Message: &model.Message{Content: "my ssn is 123-45-6789"},
	}}}}
	res := p.AfterModel(ctx)
	require.NotNil(t, res.Patch)
	assert.Equal(t, "my ssn is [ssn]", res.Patch.Response.Content[0].Message.Content)
	assert.False(t, res.Terminate)
}

func TestRegexHiderAfterModelBlocksOnMatch(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true, Mode: RegexModeBlock, Rules: []RegexRule{ssnRule("")}})
	ctx := &model.Context{Response: &model.Response{Content: []model.Content{{
		Message: &model.Message{Content: "my ssn is 123-45-6789"},
	}}}}
	res := p.AfterModel(ctx)
	require.True(t, res.Terminate)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestRegexHiderBeforeModelBlocksRequestWithoutProviderCall(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{
		Name_: "hider", Enabled_: true, ApplyTo: ApplyToRequest,
		Rules: []RegexRule{{Pattern: regexp.MustCompile(`\b\d{16}\b`), BlockOnMatch: true}},
	})
	ctx := &model.Context{Request: &model.Request{Messages: []model.Message{
		{Role: model.RoleUser, Content: "my card 4111111111111111"},
	}}}
	res := p.BeforeModel(ctx)
	require.True(t, res.Terminate)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestRegexHiderBeforeModelRewritesRequestText(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{
		Name_: "hider", Enabled_: true, Mode: RegexModeReplace, ApplyTo: ApplyToBoth,
		Rules: []RegexRule{ssnRule("[ssn]")},
	})
	ctx := &model.Context{Request: &model.Request{Messages: []model.Message{
		{Role: model.RoleUser, Content: "ssn 123-45-6789 inside"},
	}}}
	res := p.BeforeModel(ctx)
	require.False(t, res.Terminate)
	require.NotNil(t, res.Patch)
	assert.Equal(t, "ssn [ssn] inside", res.Patch.Request.Messages[0].Content)
}

func TestRegexHiderRequestOnlyScopeLeavesResponseAlone(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{
		Name_: "hider", Enabled_: true, Mode: RegexModeReplace, ApplyTo: ApplyToRequest,
		Rules: []RegexRule{ssnRule("[ssn]")},
	})
	ctx := &model.Context{Response: &model.Response{Content: []model.Content{{
		Message: &model.Message{Content: "123-45-6789"},
	}}}}
	res := p.AfterModel(ctx)
	assert.Nil(t, res.Patch)
	assert.False(t, res.Terminate)
}

func TestRegexHiderAfterModelNoMatchIsNoop(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true, Mode: RegexModeReplace, Rules: []RegexRule{ssnRule("[ssn]")}})
	ctx := &model.Context{Response: &model.Response{Content: []model.Content{{Message: &model.Message{Content: "nothing sensitive here"}}}}}
	res := p.AfterModel(ctx)
	assert.False(t, res.Terminate)
	assert.Equal(t, "nothing sensitive here", res.Patch.Response.Content[0].Message.Content)
}

func TestRegexHiderAfterModelNilResponseIsNoop(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true})
	res := p.AfterModel(&model.Context{})
	assert.False(t, res.Terminate)
	assert.Nil(t, res.Patch)
}

func TestRegexHiderAfterChunkSuppressesUntilFlushOnAll(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true, Mode: RegexModeReplace, FlushTrigger: FlushOnAll, Rules: []RegexRule{ssnRule("[ssn]")}})
	ctx := &model.Context{}

	ctx.Chunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "my ssn is 123-"}}}}
	ctx.BufferedChunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "my ssn is 123-"}}}}
	res := p.AfterChunk(ctx)
	require.NotNil(t, res.EmitChunk)
	assert.False(t, *res.EmitChunk)

	// second round: suppressed text stays in the buffered chunk, only the
	// fresh fragment arrives on Chunk
	ctx.Chunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "45-6789"}}}}
	ctx.BufferedChunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "my ssn is 123-45-6789"}}}}
	ctx.FinalChunk = true
	res2 := p.AfterChunk(ctx)
	require.NotNil(t, res2.EmitChunk)
	assert.True(t, *res2.EmitChunk)
	assert.Equal(t, "my ssn is [ssn]", ctx.BufferedChunk.Content[0].Delta.Content, "flush rescans the full buffered text, catching a pattern split across chunks")
}

func TestRegexHiderAfterChunkFlushesOnNewline(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true, Mode: RegexModeReplace, FlushTrigger: FlushOnNewline, Rules: []RegexRule{ssnRule("[ssn]")}})
	chunk := &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "no newline yet"}}}}
	ctx := &model.Context{Chunk: chunk, BufferedChunk: chunk}
	res := p.AfterChunk(ctx)
	assert.False(t, *res.EmitChunk)

	ctx.Chunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "\n"}}}}
	ctx.BufferedChunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "no newline yet\n"}}}}
	res2 := p.AfterChunk(ctx)
	assert.True(t, *res2.EmitChunk)
}

func TestRegexHiderAfterChunkTimeoutTimerForcesFlush(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{
		Name_: "hider", Enabled_: true, Mode: RegexModeReplace,
		FlushTrigger: FlushOnTimeout, FlushTimeout: 10 * time.Millisecond,
		Rules: []RegexRule{ssnRule("[ssn]")},
	})
	chunk := &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "held "}}}}
	ctx := &model.Context{Chunk: chunk, BufferedChunk: chunk}
	res := p.AfterChunk(ctx)
	require.NotNil(t, res.EmitChunk)
	assert.False(t, *res.EmitChunk, "before the deadline the chunk is suppressed")

	time.Sleep(50 * time.Millisecond) // let the flush ticker fire

	ctx.Chunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "text"}}}}
	ctx.BufferedChunk = &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "held text"}}}}
	res2 := p.AfterChunk(ctx)
	require.NotNil(t, res2.EmitChunk)
	assert.True(t, *res2.EmitChunk, "an elapsed FlushTimeout arms the next round's flush")
	assert.Equal(t, "held text", ctx.BufferedChunk.Content[0].Delta.Content)

	p.DetachedAfterResponse(ctx) // releases the ticker
}

func TestRegexHiderDetachedWithoutStreamingStateIsNoop(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true})
	assert.NotPanics(t, func() { p.DetachedAfterResponse(&model.Context{}) })
}

func TestRegexHiderAfterChunkBlockModeTerminatesOnFlush(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true, Mode: RegexModeBlock, FlushTrigger: FlushOnAll, Rules: []RegexRule{ssnRule("")}})
	chunk := &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "123-45-6789"}}}}
	ctx := &model.Context{Chunk: chunk, BufferedChunk: chunk, FinalChunk: true}
	res := p.AfterChunk(ctx)
	assert.True(t, res.Terminate)
}

func TestRegexHiderAfterChunkEmptyBufferedChunkIsNoop(t *testing.T) {
	p := NewRegexHider(RegexHiderConfig{Name_: "hider", Enabled_: true})
	res := p.AfterChunk(&model.Context{})
	assert.Nil(t, res.EmitChunk)
}
