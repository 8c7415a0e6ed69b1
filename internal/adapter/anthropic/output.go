package anthropic

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/sse"
)

const pingInterval = 15 * time.Second

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Model      string             `json:"model"`
	Content    []wireContentBlock `json:"content"`
	StopReason string             `json:"stop_reason,omitempty"`
	Usage      wireUsage          `json:"usage"`
}

func toolCallsToBlocks(calls []model.ToolCall) []wireContentBlock {
	out := make([]wireContentBlock, len(calls))
	for i, tc := range calls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		out[i] = wireContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input}
	}
	return out
}

func internalFinishToStopReason(fr *model.FinishReason) string {
	if fr == nil {
		return ""
	}
	switch *fr {
	case model.FinishLength:
		return "max_tokens"
	case model.FinishToolCalls:
		return "tool_use"
	default:
		return "end_turn"
	}
}

// EncodeUnary writes the complete Anthropic-shaped JSON body.
func (a *Adapter) EncodeUnary(w io.Writer, resp *model.Response) error {
	wr := wireResponse{ID: resp.ID, Type: "message", Role: "assistant", Model: resp.Model}
	var stopReason string
	for _, c := range resp.Content {
		if c.Message == nil {
			continue
		}
		if c.Message.Content != "" {
			wr.Content = append(wr.Content, wireContentBlock{Type: "text", Text: c.Message.Content})
		}
		wr.Content = append(wr.Content, toolCallsToBlocks(c.Message.ToolCalls)...)
		if c.FinishReason != nil {
			stopReason = internalFinishToStopReason(c.FinishReason)
		}
	}
	wr.StopReason = stopReason
	if resp.Usage != nil {
		if resp.Usage.PromptTokens != nil {
			wr.Usage.InputTokens = *resp.Usage.PromptTokens
		}
		if resp.Usage.CompletionTokens != nil {
			wr.Usage.OutputTokens = *resp.Usage.CompletionTokens
		}
	}
	return json.NewEncoder(w).Encode(wr)
}

// streamWriter holds the per-request lifecycle state the Anthropic protocol
// requires: whether message_start has been sent, which content block index
// is currently open, and a background ticker for keep-alive ping events —
// substituting for the real API's server-originated pings, since this
// gateway has no equivalent idle-socket signal to hook (§9).
type streamWriter struct {
	sse *sse.Writer

	mu          sync.Mutex
	startSent   bool
	blockOpen   bool
	blockIndex  int
	inputTokens int

	stopPing chan struct{}
	pingDone chan struct{}
}

func (a *Adapter) NewStreamWriter(w http.ResponseWriter) adapter.StreamWriter {
	sw := &streamWriter{sse: sse.New(w), stopPing: make(chan struct{}), pingDone: make(chan struct{})}
	go sw.pingLoop()
	return sw
}

func (sw *streamWriter) pingLoop() {
	defer close(sw.pingDone)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sw.mu.Lock()
			_ = sw.sse.WriteNamed("ping", []byte(`{"type": "ping"}`))
			sw.mu.Unlock()
		case <-sw.stopPing:
			return
		}
	}
}

func (sw *streamWriter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.sse.WriteNamed(event, data)
}

// WriteChunk drives the message_start → content_block_start →
// content_block_delta → content_block_stop → message_delta lifecycle from
// one internal Response chunk. message_stop is only sent from Close, once
// the caller confirms the stream is actually finished.
func (sw *streamWriter) WriteChunk(resp *model.Response) error {
	if !sw.startSent {
		sw.startSent = true
		if err := sw.writeEvent("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": resp.ID, "type": "message", "role": "assistant", "model": resp.Model,
				"content": []any{}, "usage": wireUsage{},
			},
		}); err != nil {
			return err
		}
	}

	for _, c := range resp.Content {
		// A finish-only frame carries no delta but still closes the open
		// block and emits message_delta below.
		delta := c.Delta
		if delta == nil {
			delta = &model.Message{}
		}
		if resp.Usage != nil && resp.Usage.PromptTokens != nil {
			sw.inputTokens = *resp.Usage.PromptTokens
		}

		if delta.Content != "" {
			if !sw.blockOpen {
				sw.blockOpen = true
				sw.blockIndex = c.Index
				if err := sw.writeEvent("content_block_start", map[string]any{
					"type": "content_block_start", "index": c.Index,
					"content_block": map[string]any{"type": "text", "text": ""},
				}); err != nil {
					return err
				}
			}
			if err := sw.writeEvent("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": c.Index,
				"delta": map[string]any{"type": "text_delta", "text": delta.Content},
			}); err != nil {
				return err
			}
		}

		for _, tc := range delta.ToolCalls {
			if tc.ID != "" {
				if sw.blockOpen {
					if err := sw.writeEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": sw.blockIndex}); err != nil {
						return err
					}
				}
				sw.blockOpen = true
				sw.blockIndex = c.Index
				if err := sw.writeEvent("content_block_start", map[string]any{
					"type": "content_block_start", "index": c.Index,
					"content_block": map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Function.Name, "input": map[string]any{}},
				}); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" {
				if err := sw.writeEvent("content_block_delta", map[string]any{
					"type": "content_block_delta", "index": c.Index,
					"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Function.Arguments},
				}); err != nil {
					return err
				}
			}
		}

		if c.FinishReason != nil {
			if sw.blockOpen {
				if err := sw.writeEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": sw.blockIndex}); err != nil {
					return err
				}
				sw.blockOpen = false
			}
			outputTokens := 0
			if resp.Usage != nil && resp.Usage.CompletionTokens != nil {
				outputTokens = *resp.Usage.CompletionTokens
			}
			if err := sw.writeEvent("message_delta", map[string]any{
				"type":  "message_delta",
				"delta": map[string]any{"stop_reason": internalFinishToStopReason(c.FinishReason)},
				"usage": map[string]any{"output_tokens": outputTokens},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close sends message_stop, stops the ping loop, and releases this
// request's lifecycle state.
func (sw *streamWriter) Close() error {
	close(sw.stopPing)
	<-sw.pingDone
	return sw.writeEvent("message_stop", map[string]any{"type": "message_stop"})
}
