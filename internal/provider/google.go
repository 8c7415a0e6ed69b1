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

// GoogleProvider speaks Google's Gemini generateContent API. It's kept as a
// third provider alongside OpenAI and Anthropic so the registry can route
// OpenAI- or Anthropic-shaped requests to a Gemini-backed model (the
// adapter/provider split means the wire format a client used has nothing to
// do with which vendor actually answers).
type GoogleProvider struct{ cfg Config }

func NewGoogleProvider(cfg Config) *GoogleProvider { return &GoogleProvider{cfg: cfg} }

func (g *GoogleProvider) Name() string { return "google" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

func toGeminiRequest(req *model.Request) *geminiRequest {
	gr := &geminiRequest{}
	for _, msg := range req.Messages {
		if msg.Role == model.RoleSystem {
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			} else {
				gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			}
			continue
		}
		role := string(msg.Role)
		if role == "assistant" {
			role = "model"
		}
		if role == "tool" {
			// Gemini has no first-class tool role in this minimal mapping;
			// fold it back to a user turn carrying the tool result text.
			role = "user"
		}
		gr.Contents = append(gr.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}

	gc := &geminiGenerationConfig{Temperature: req.Temperature, TopP: req.TopP}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		gc.MaxOutputTokens = *req.MaxTokens
	}
	if len(req.Stop.Multi) > 0 {
		gc.StopSequences = req.Stop.Multi
	} else if req.Stop.Single != "" {
		gc.StopSequences = []string{req.Stop.Single}
	}
	gr.GenerationConfig = gc
	return gr
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

func geminiFinishToInternal(reason string) *model.FinishReason {
	if reason == "" {
		return nil
	}
	var fr model.FinishReason
	switch reason {
	case "MAX_TOKENS":
		fr = model.FinishLength
	default:
		fr = model.FinishStop
	}
	return &fr
}

func (g *GoogleProvider) endpoint(modelName string, stream bool) string {
	if stream {
		return fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", g.cfg.BaseURL, modelName, g.cfg.APIKey)
	}
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.cfg.BaseURL, modelName, g.cfg.APIKey)
}

func (g *GoogleProvider) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	return ExecuteWithRetry(ctx, g.cfg.Log, g.cfg.retryPolicy(), func() (*model.Response, error) {
		return g.execOnce(ctx, req)
	})
}

func (g *GoogleProvider) execOnce(ctx context.Context, req *model.Request) (*model.Response, error) {
	modelName := g.cfg.resolveModel(req.Model)
	greq := toGeminiRequest(req)
	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("marshaling gemini request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(modelName, false), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "sending request to gemini", cause: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &UpstreamError{Status: httpResp.StatusCode, Message: fmt.Sprintf("gemini API error: %v", errBody)}
	}

	var gresp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gresp); err != nil {
		return nil, fmt.Errorf("decoding gemini response: %w", err)
	}
	if len(gresp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	candidate := gresp.Candidates[0]
	var text string
	if len(candidate.Content.Parts) > 0 {
		text = candidate.Content.Parts[0].Text
	}
	resp := &model.Response{
		Model: modelName, Object: model.ObjectCompletion,
		Content: []model.Content{{Index: 0, Message: &model.Message{Role: model.RoleAssistant, Content: text}, FinishReason: geminiFinishToInternal(candidate.FinishReason)}},
	}
	if gresp.UsageMetadata != nil {
		pt, ct, tt := gresp.UsageMetadata.PromptTokenCount, gresp.UsageMetadata.CandidatesTokenCount, gresp.UsageMetadata.TotalTokenCount
		resp.Usage = &model.Usage{PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt}
	}
	return resp, nil
}

func (g *GoogleProvider) ExecuteStreaming(ctx context.Context, req *model.Request) (<-chan StreamEvent, error) {
	modelName := g.cfg.resolveModel(req.Model)
	greq := toGeminiRequest(req)
	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("marshaling gemini request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(modelName, true), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "sending request to gemini", cause: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, &UpstreamError{Status: httpResp.StatusCode, Message: fmt.Sprintf("gemini API error: %v", errBody)}
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
			jsonData := strings.TrimPrefix(line, "data: ")

			var gresp geminiResponse
			if err := json.Unmarshal([]byte(jsonData), &gresp); err != nil {
				select {
				case ch <- StreamEvent{Final: true, Err: fmt.Errorf("decoding gemini stream event: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(gresp.Candidates) == 0 {
				continue
			}
			candidate := gresp.Candidates[0]
			var delta string
			if len(candidate.Content.Parts) > 0 {
				delta = candidate.Content.Parts[0].Text
			}
			resp := &model.Response{
				Model: modelName, Object: model.ObjectCompletionChunk,
				Content: []model.Content{{Index: 0, Delta: &model.Message{Role: model.RoleAssistant, Content: delta}, FinishReason: geminiFinishToInternal(candidate.FinishReason)}},
			}
			final := candidate.FinishReason != ""
			if final && gresp.UsageMetadata != nil {
				pt, ct, tt := gresp.UsageMetadata.PromptTokenCount, gresp.UsageMetadata.CandidatesTokenCount, gresp.UsageMetadata.TotalTokenCount
				resp.Usage = &model.Usage{PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt}
			}

			select {
			case ch <- StreamEvent{Chunk: resp, Final: final}:
			case <-ctx.Done():
				return
			}
			if final {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamEvent{Final: true, Err: fmt.Errorf("reading gemini stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
