package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/llmrouter/internal/model"
)

func newGoogleTestServer(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoogleProvider(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Client:  srv.Client(),
		Log:     zerolog.Nop(),
	})
}

func TestGoogleExecuteSendsAPIKeyAsQueryParamAndFoldsSystemInstruction(t *testing.T) {
	var gotQuery string
	var gotReq geminiRequest
	p := newGoogleTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"))
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content:      geminiContent{Parts: []geminiPart{{Text: "hi there"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
		})
	})

	resp, err := p.Execute(context.Background(), &model.Request{
		Model: "gemini-1.5-pro",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "be terse"},
			{Role: model.RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "key=test-key", gotQuery)
	require.NotNil(t, gotReq.SystemInstruction)
	assert.Equal(t, "be terse", gotReq.SystemInstruction.Parts[0].Text)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "user", gotReq.Contents[0].Role)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hi there", resp.Content[0].Message.Content)
	assert.Equal(t, 5, *resp.Usage.TotalTokens)
}

func TestGoogleExecuteTranslatesAssistantRoleToModel(t *testing.T) {
	var gotReq geminiRequest
	p := newGoogleTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}, FinishReason: "STOP"}},
		})
	})
	_, err := p.Execute(context.Background(), &model.Request{
		Model: "gemini-1.5-pro",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi"},
			{Role: model.RoleAssistant, Content: "hello"},
		},
	})
	require.NoError(t, err)
	require.Len(t, gotReq.Contents, 2)
	assert.Equal(t, "model", gotReq.Contents[1].Role)
}

func TestGoogleExecuteMapsNon200ToUpstreamError(t *testing.T) {
	p := newGoogleTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "denied"})
	})
	_, err := p.Execute(context.Background(), &model.Request{Model: "gemini-1.5-pro"})
	require.Error(t, err)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusForbidden, ue.Status)
}

func TestGoogleExecuteStreamingUsesSSEEndpointAndEmitsFinalChunk(t *testing.T) {
	var gotPath string
	p := newGoogleTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1,"totalTokenCount":3}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
	})

	ch, err := p.ExecuteStreaming(context.Background(), &model.Request{Model: "gemini-1.5-pro", Stream: true})
	require.NoError(t, err)

	var text string
	var sawFinal bool
	for ev := range ch {
		require.NoError(t, ev.Err)
		for _, c := range ev.Chunk.Content {
			if c.Delta != nil {
				text += c.Delta.Content
			}
		}
		if ev.Final {
			sawFinal = true
		}
	}
	assert.True(t, strings.HasSuffix(gotPath, ":streamGenerateContent"))
	assert.True(t, sawFinal)
	assert.Equal(t, "Hello", text)
}
