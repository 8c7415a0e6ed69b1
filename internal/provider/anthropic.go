package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/model"
)

const anthropicAPIVersion = "2023-06-01"
const anthropicDefaultMaxTokens = 1024

// AnthropicProvider speaks Anthropic's /v1/messages API as a client.
type AnthropicProvider struct{ cfg Config }

func NewAnthropicProvider(cfg Config) *AnthropicProvider { return &AnthropicProvider{cfg: cfg} }

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	System    string              `json:"system,omitempty"`
	Messages  []anthropicMessage  `json:"messages"`
	Stream    bool                `json:"stream,omitempty"`
	StopSeq   []string            `json:"stop_sequences,omitempty"`
	Temp      *float64            `json:"temperature,omitempty"`
	TopP      *float64            `json:"top_p,omitempty"`
	Tools     []anthropicToolSpec `json:"tools,omitempty"`
}

type anthropicToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// toAnthropicRequest translates the internal model into Anthropic's shape:
// system messages are pulled into the top-level System string, assistant
// tool calls become tool_use blocks, and role=tool messages become
// tool_result blocks keyed by tool_use_id.
func toAnthropicRequest(req *model.Request, modelName string) *anthropicRequest {
	ar := &anthropicRequest{Model: modelName, Temp: req.Temperature, TopP: req.TopP}

	var systemParts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case model.RoleTool:
			ar.Messages = append(ar.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content,
				}},
			})
		default:
			am := anthropicMessage{Role: string(msg.Role)}
			if msg.Content != "" {
				am.Content = append(am.Content, anthropicContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
				am.Content = append(am.Content, anthropicContentBlock{
					Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input,
				})
			}
			ar.Messages = append(ar.Messages, am)
		}
	}
	if len(systemParts) > 0 {
		ar.System = strings.Join(systemParts, "\n")
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		ar.MaxTokens = *req.MaxTokens
	} else {
		ar.MaxTokens = anthropicDefaultMaxTokens
	}
	if len(req.Stop.Multi) > 0 {
		ar.StopSeq = req.Stop.Multi
	} else if req.Stop.Single != "" {
		ar.StopSeq = []string{req.Stop.Single}
	}
	for _, t := range req.Tools {
		ar.Tools = append(ar.Tools, anthropicToolSpec{
			Name: t.Function.Name, Description: t.Function.Description, InputSchema: t.Function.Parameters,
		})
	}
	return ar
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

// anthropicStopToInternal maps Anthropic's stop_reason to the internal
// FinishReason vocabulary (inverse of §4.3's output mapping).
func anthropicStopToInternal(reason string) model.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return model.FinishStop
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		return model.FinishStop
	}
}

func fromAnthropicResponse(ar *anthropicResponse) *model.Response {
	msg := &model.Message{Role: model.RoleAssistant}
	for _, block := range ar.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID: block.ID, Kind: model.ToolKindFunction,
				Function: model.FunctionCall{Name: block.Name, Arguments: string(args)},
			})
		}
	}
	fr := anthropicStopToInternal(ar.StopReason)
	pt, ct := ar.Usage.InputTokens, ar.Usage.OutputTokens
	tt := pt + ct
	return &model.Response{
		ID: ar.ID, Object: model.ObjectCompletion, Model: ar.Model,
		Content: []model.Content{{Index: 0, Message: msg, FinishReason: &fr}},
		Usage:   &model.Usage{PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt},
	}
}

func (p *AnthropicProvider) endpoint() string { return fmt.Sprintf("%s/messages", p.cfg.BaseURL) }

func (p *AnthropicProvider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	return req, nil
}

func (p *AnthropicProvider) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	return ExecuteWithRetry(ctx, p.cfg.Log, p.cfg.retryPolicy(), func() (*model.Response, error) {
		return p.execOnce(ctx, req)
	})
}

func (p *AnthropicProvider) execOnce(ctx context.Context, req *model.Request) (*model.Response, error) {
	areq := toAnthropicRequest(req, p.cfg.resolveModel(req.Model))
	body, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}
	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("creating anthropic request: %w", err)
	}
	httpResp, err := p.cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "sending request to anthropic", cause: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &UpstreamError{Status: httpResp.StatusCode, Message: fmt.Sprintf("anthropic API error: %v", errBody)}
	}

	var aresp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&aresp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	return fromAnthropicResponse(&aresp), nil
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		ID    string         `json:"id"`
		Model string         `json:"model"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *anthropicContentBlock `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type,omitempty"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Usage *anthropicUsage `json:"usage,omitempty"`
}

// ExecuteStreaming translates Anthropic's named SSE events into internal
// deltas per §4.4: text_delta → delta.content, input_json_delta →
// delta.tool_calls[0].function.arguments, message_start seeds ids and input
// tokens, message_delta's stop_reason sets finish_reason, message_stop
// signals end-of-stream.
func (p *AnthropicProvider) ExecuteStreaming(ctx context.Context, req *model.Request) (<-chan StreamEvent, error) {
	areq := toAnthropicRequest(req, p.cfg.resolveModel(req.Model))
	areq.Stream = true
	body, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}
	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("creating anthropic request: %w", err)
	}
	httpResp, err := p.cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "sending request to anthropic", cause: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &UpstreamError{Status: httpResp.StatusCode, Message: fmt.Sprintf("anthropic API error: %v", errBody)}
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		var respID, respModel string
		var inputTokens, outputTokens int

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			jsonData := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				select {
				case ch <- StreamEvent{Final: true, Err: fmt.Errorf("decoding anthropic stream event: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					respID = event.Message.ID
					respModel = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}

			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					resp := &model.Response{ID: respID, Object: model.ObjectCompletionChunk, Model: respModel, Content: []model.Content{{
						Index: event.Index,
						Delta: &model.Message{ToolCalls: []model.ToolCall{{
							ID: event.ContentBlock.ID, Kind: model.ToolKindFunction,
							Function: model.FunctionCall{Name: event.ContentBlock.Name},
						}}},
					}}}
					select {
					case ch <- StreamEvent{Chunk: resp}:
					case <-ctx.Done():
						return
					}
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				var delta model.Message
				switch event.Delta.Type {
				case "text_delta":
					delta.Content = event.Delta.Text
				case "input_json_delta":
					delta.ToolCalls = []model.ToolCall{{Function: model.FunctionCall{Arguments: event.Delta.PartialJSON}}}
				default:
					continue
				}
				resp := &model.Response{
					ID: respID, Object: model.ObjectCompletionChunk, Model: respModel,
					Content: []model.Content{{Index: event.Index, Delta: &delta}},
				}
				select {
				case ch <- StreamEvent{Chunk: resp}:
				case <-ctx.Done():
					return
				}

			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}
				if event.Delta != nil && event.Delta.StopReason != "" {
					fr := anthropicStopToInternal(event.Delta.StopReason)
					resp := &model.Response{
						ID: respID, Object: model.ObjectCompletionChunk, Model: respModel,
						Content: []model.Content{{Index: 0, Delta: &model.Message{}, FinishReason: &fr}},
					}
					select {
					case ch <- StreamEvent{Chunk: resp}:
					case <-ctx.Done():
						return
					}
				}

			case "message_stop":
				pt, ct, tt := inputTokens, outputTokens, inputTokens+outputTokens
				resp := &model.Response{
					ID: respID, Object: model.ObjectCompletionChunk, Model: respModel,
					Usage: &model.Usage{PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt},
				}
				select {
				case ch <- StreamEvent{Chunk: resp, Final: true}:
				case <-ctx.Done():
				}
				return

				// content_block_stop and ping carry nothing the merge engine needs.
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamEvent{Final: true, Err: fmt.Errorf("reading anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
