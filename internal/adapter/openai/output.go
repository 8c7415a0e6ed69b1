package openai

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/sse"
)

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	Message      *wireMessage `json:"message,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type wireResponse struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []wireChoice `json:"choices"`
	Usage             *wireUsage   `json:"usage,omitempty"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
}

func usageToWire(u *model.Usage) *wireUsage {
	if u == nil {
		return nil
	}
	w := &wireUsage{}
	if u.PromptTokens != nil {
		w.PromptTokens = *u.PromptTokens
	}
	if u.CompletionTokens != nil {
		w.CompletionTokens = *u.CompletionTokens
	}
	if u.TotalTokens != nil {
		w.TotalTokens = *u.TotalTokens
	}
	return w
}

func toolCallsToWire(calls []model.ToolCall) []wireToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]wireToolCall, len(calls))
	for i, tc := range calls {
		out[i] = wireToolCall{ID: tc.ID, Type: tc.Kind, Function: wireFunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}}
	}
	return out
}

func responseToWire(resp *model.Response) wireResponse {
	wr := wireResponse{ID: resp.ID, Object: "chat.completion", Created: resp.Created, Model: resp.Model, SystemFingerprint: resp.SystemFingerprint}
	for _, c := range resp.Content {
		choice := wireChoice{Index: c.Index}
		if c.Message != nil {
			choice.Message = &wireMessage{Role: string(c.Message.Role), Content: c.Message.Content, ToolCalls: toolCallsToWire(c.Message.ToolCalls)}
		}
		if c.FinishReason != nil {
			reason := string(*c.FinishReason)
			choice.FinishReason = &reason
		}
		wr.Choices = append(wr.Choices, choice)
	}
	wr.Usage = usageToWire(resp.Usage)
	return wr
}

// EncodeUnary writes the complete OpenAI-shaped JSON body.
func (a *Adapter) EncodeUnary(w io.Writer, resp *model.Response) error {
	return json.NewEncoder(w).Encode(responseToWire(resp))
}

type streamWriter struct {
	sse         *sse.Writer
	sentRoleFor map[int]bool
}

// NewStreamWriter returns an SSE writer that frames each chunk as
// "data: {...}\n\n", synthesizing the delta.role="assistant" field on the
// first non-empty chunk of each content index, and terminates
// with the literal "data: [DONE]\n\n" sentinel.
func (a *Adapter) NewStreamWriter(w http.ResponseWriter) adapter.StreamWriter {
	return &streamWriter{sse: sse.New(w), sentRoleFor: map[int]bool{}}
}

type wireStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

type wireStreamChoice struct {
	Index        int       `json:"index"`
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type wireDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

func (sw *streamWriter) WriteChunk(resp *model.Response) error {
	chunk := wireStreamChunk{ID: resp.ID, Object: "chat.completion.chunk", Created: resp.Created, Model: resp.Model}
	for _, c := range resp.Content {
		delta := wireDelta{}
		if c.Delta != nil {
			delta.Content = c.Delta.Content
			// Tool-call deltas carry id, type and function only; no
			// per-tool-call "index" field is emitted.
			for _, tc := range c.Delta.ToolCalls {
				delta.ToolCalls = append(delta.ToolCalls, wireToolCall{ID: tc.ID, Type: tc.Kind, Function: wireFunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}})
			}
			if !sw.sentRoleFor[c.Index] && (c.Delta.Content != "" || len(c.Delta.ToolCalls) > 0) {
				delta.Role = "assistant"
				sw.sentRoleFor[c.Index] = true
			}
		}
		choice := wireStreamChoice{Index: c.Index, Delta: delta}
		if c.FinishReason != nil {
			reason := string(*c.FinishReason)
			choice.FinishReason = &reason
		}
		chunk.Choices = append(chunk.Choices, choice)
	}
	chunk.Usage = usageToWire(resp.Usage)

	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return sw.sse.WriteData(payload)
}

func (sw *streamWriter) Close() error {
	return sw.sse.WriteRaw("data: [DONE]\n\n")
}
