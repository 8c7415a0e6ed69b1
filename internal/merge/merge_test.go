package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/model"
)

func intPtr(i int) *int { return &i }

func TestFoldIntoBufferConcatenatesTextDeltas(t *testing.T) {
	m := New()

	m.FoldIntoBuffer(&model.Response{
		ID: "resp-1", Model: "gpt-4o",
		Content: []model.Content{{Index: 0, Delta: &model.Message{Role: model.RoleAssistant, Content: "Hel"}}},
	})
	m.FoldIntoBuffer(&model.Response{
		Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "lo"}}},
	})

	require.Len(t, m.Buffered.Content, 1)
	assert.Equal(t, "Hello", m.Buffered.Content[0].Delta.Content)
	assert.Equal(t, model.RoleAssistant, m.Buffered.Content[0].Delta.Role)
	assert.Equal(t, "resp-1", m.Buffered.ID)
	assert.Equal(t, "gpt-4o", m.Buffered.Model)
}

func TestCommitMovesBufferIntoAccumulatedAndResetsBuffer(t *testing.T) {
	m := New()
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "Hi"}}}})
	m.Commit()

	assert.Equal(t, "Hi", m.Accumulated.Content[0].Message.Content)
	assert.Equal(t, &model.Response{}, m.Buffered)
}

func TestSuppressedChunkFoldsIntoNextEmission(t *testing.T) {
	m := New()
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "[redacted-part] "}}}})
	// suppressed: no Commit() here, buffered keeps accumulating
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "rest"}}}})
	m.Commit()

	assert.Equal(t, "[redacted-part] rest", m.Accumulated.Content[0].Message.Content)
}

func TestFinishReasonFirstNonNullWins(t *testing.T) {
	m := New()
	stop := model.FinishStop
	length := model.FinishLength
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, FinishReason: &stop}}})
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, FinishReason: &length}}})

	require.NotNil(t, m.Buffered.Content[0].FinishReason)
	assert.Equal(t, model.FinishStop, *m.Buffered.Content[0].FinishReason)
}

func TestUsageFieldWiseLastNonNullWinsAndTotalRecomputed(t *testing.T) {
	m := New()
	m.FoldIntoBuffer(&model.Response{Usage: &model.Usage{PromptTokens: intPtr(10)}})
	m.FoldIntoBuffer(&model.Response{Usage: &model.Usage{CompletionTokens: intPtr(5), TotalTokens: intPtr(15)}})

	require.NotNil(t, m.Buffered.Usage)
	assert.Equal(t, 10, *m.Buffered.Usage.PromptTokens)
	assert.Equal(t, 5, *m.Buffered.Usage.CompletionTokens)
	assert.Equal(t, 15, *m.Buffered.Usage.TotalTokens)
}

func TestToolCallFragmentsWithIDStartNewCallWithoutIDContinueLast(t *testing.T) {
	m := New()
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{
		ToolCalls: []model.ToolCall{{ID: "call_1", Kind: model.ToolKindFunction, Function: model.FunctionCall{Name: "get_weather", Arguments: `{"loc`}}},
	}}}})
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{
		ToolCalls: []model.ToolCall{{Function: model.FunctionCall{Arguments: `ation":"NYC"}`}}},
	}}}})

	calls := m.Buffered.Content[0].Delta.ToolCalls
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Function.Name)
	assert.Equal(t, `{"location":"NYC"}`, calls[0].Function.Arguments)
}

func TestMultipleToolCallsByDistinctIDsStayDistinct(t *testing.T) {
	m := New()
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{
		ToolCalls: []model.ToolCall{{ID: "call_1", Function: model.FunctionCall{Name: "a"}}},
	}}}})
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{
		ToolCalls: []model.ToolCall{{ID: "call_2", Function: model.FunctionCall{Name: "b"}}},
	}}}})

	calls := m.Buffered.Content[0].Delta.ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "call_2", calls[1].ID)
}

func TestEmptyChunkFoldIsIdempotent(t *testing.T) {
	m := New()
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "hi"}}}})
	before := *m.Buffered
	m.FoldIntoBuffer(&model.Response{})
	assert.Equal(t, before.Content[0].Delta.Content, m.Buffered.Content[0].Delta.Content)
}

func TestFoldIntoBufferNeverMutatesIncoming(t *testing.T) {
	m := New()
	incoming := &model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: "hi"}}}}
	m.FoldIntoBuffer(incoming)
	m.FoldIntoBuffer(&model.Response{Content: []model.Content{{Index: 0, Delta: &model.Message{Content: " there"}}}})
	assert.Equal(t, "hi", incoming.Content[0].Delta.Content, "fold must not mutate a caller's incoming response in place")
}
