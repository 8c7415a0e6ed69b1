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

// OpenAIProvider speaks OpenAI's /v1/chat/completions API as a client. It is
// used both when the caller addresses the gateway with the OpenAI wire
// format AND when an Anthropic-shaped caller is routed to an OpenAI-backed
// model — the provider layer is independent of which adapter accepted the
// inbound request.
type OpenAIProvider struct{ cfg Config }

func NewOpenAIProvider(cfg Config) *OpenAIProvider { return &OpenAIProvider{cfg: cfg} }

func (p *OpenAIProvider) Name() string { return "openai" }

type openaiMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	Name       string              `json:"name,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCallOut `json:"tool_calls,omitempty"`
}

type openaiToolCallOut struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiFunctionCall `json:"function"`
}

type openaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiFunctionSpec `json:"function"`
}

type openaiFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openaiRequest struct {
	Model            string          `json:"model"`
	Messages         []openaiMessage `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             any             `json:"stop,omitempty"`
	Tools            []openaiTool    `json:"tools,omitempty"`
	ToolChoice       string          `json:"tool_choice,omitempty"`
}

func toOpenAIRequest(req *model.Request, modelName string) *openaiRequest {
	or := &openaiRequest{
		Model:            modelName,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	for _, m := range req.Messages {
		om := openaiMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openaiToolCallOut{
				ID: tc.ID, Type: tc.Kind,
				Function: openaiFunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		or.Messages = append(or.Messages, om)
	}
	if !req.Stop.IsZero() {
		if len(req.Stop.Multi) > 0 {
			or.Stop = req.Stop.Multi
		} else {
			or.Stop = req.Stop.Single
		}
	}
	for _, t := range req.Tools {
		or.Tools = append(or.Tools, openaiTool{
			Type: t.Kind,
			Function: openaiFunctionSpec{
				Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters,
			},
		})
	}
	if req.ToolChoice != "" {
		or.ToolChoice = string(req.ToolChoice)
	}
	return or
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiToolCallIn struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string             `json:"role"`
			Content   string             `json:"content"`
			ToolCalls []openaiToolCallIn `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
}

func fromOpenAIResponse(or *openaiResponse) *model.Response {
	resp := &model.Response{ID: or.ID, Object: model.ObjectCompletion, Created: or.Created, Model: or.Model}
	for _, c := range or.Choices {
		msg := &model.Message{Role: model.RoleAssistant, Content: c.Message.Content}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID: tc.ID, Kind: tc.Type,
				Function: model.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		content := model.Content{Index: c.Index, Message: msg}
		if c.FinishReason != "" {
			fr := model.FinishReason(c.FinishReason)
			content.FinishReason = &fr
		}
		resp.Content = append(resp.Content, content)
	}
	if or.Usage != nil {
		pt, ct, tt := or.Usage.PromptTokens, or.Usage.CompletionTokens, or.Usage.TotalTokens
		resp.Usage = &model.Usage{PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt}
	}
	return resp
}

func (p *OpenAIProvider) endpoint() string {
	return fmt.Sprintf("%s/chat/completions", p.cfg.BaseURL)
}

func (p *OpenAIProvider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	return req, nil
}

func (p *OpenAIProvider) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	return ExecuteWithRetry(ctx, p.cfg.Log, p.cfg.retryPolicy(), func() (*model.Response, error) {
		return p.execOnce(ctx, req)
	})
}

func (p *OpenAIProvider) execOnce(ctx context.Context, req *model.Request) (*model.Response, error) {
	oreq := toOpenAIRequest(req, p.cfg.resolveModel(req.Model))
	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}
	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("creating openai request: %w", err)
	}
	httpResp, err := p.cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "sending request to openai", cause: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &UpstreamError{Status: httpResp.StatusCode, Message: fmt.Sprintf("openai API error: %v", errBody)}
	}

	var oresp openaiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}
	return fromOpenAIResponse(&oresp), nil
}

type openaiStreamChunk struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string             `json:"role,omitempty"`
			Content   string             `json:"content,omitempty"`
			ToolCalls []openaiToolCallIn `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
}

func (p *OpenAIProvider) ExecuteStreaming(ctx context.Context, req *model.Request) (<-chan StreamEvent, error) {
	oreq := toOpenAIRequest(req, p.cfg.resolveModel(req.Model))
	oreq.Stream = true
	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}
	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("creating openai request: %w", err)
	}
	httpResp, err := p.cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "sending request to openai", cause: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &UpstreamError{Status: httpResp.StatusCode, Message: fmt.Sprintf("openai API error: %v", errBody)}
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				select {
				case ch <- StreamEvent{Final: true}:
				case <-ctx.Done():
				}
				return
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				select {
				case ch <- StreamEvent{Final: true, Err: fmt.Errorf("decoding openai stream chunk: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			resp := &model.Response{ID: chunk.ID, Object: model.ObjectCompletionChunk, Created: chunk.Created, Model: chunk.Model}
			for _, c := range chunk.Choices {
				delta := &model.Message{Role: model.Role(c.Delta.Role), Content: c.Delta.Content}
				for _, tc := range c.Delta.ToolCalls {
					delta.ToolCalls = append(delta.ToolCalls, model.ToolCall{
						ID: tc.ID, Kind: tc.Type,
						Function: model.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
					})
				}
				content := model.Content{Index: c.Index, Delta: delta}
				if c.FinishReason != "" {
					fr := model.FinishReason(c.FinishReason)
					content.FinishReason = &fr
				}
				resp.Content = append(resp.Content, content)
			}
			if chunk.Usage != nil {
				pt, ct, tt := chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.TotalTokens
				resp.Usage = &model.Usage{PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt}
			}

			select {
			case ch <- StreamEvent{Chunk: resp}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamEvent{Final: true, Err: fmt.Errorf("reading openai stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
