// Package anthropic implements the Anthropic messages wire format as both
// an input adapter (§4.2) and an output adapter (§4.3), mounted at
// /v1/messages.
package anthropic

import (
	"encoding/json"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
)

const BasePath = "/v1/messages"

// listedModels is the static GET /models inventory, discovery only.
var listedModels = []string{"claude-sonnet-4-20250514", "claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string     { return "anthropic" }
func (a *Adapter) BasePath() string { return BasePath }

// NativeRoutes advertises the GET /models listing in Anthropic's list shape.
func (a *Adapter) NativeRoutes() []adapter.NativeRoute {
	return []adapter.NativeRoute{{
		Method: http.MethodGet,
		Path:   "/models",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			data := make([]map[string]any, len(listedModels))
			for i, id := range listedModels {
				data[i] = map[string]any{"type": "model", "id": id}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "has_more": false})
		},
	}}
}

type wireContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// wireMessage's Content is either a plain string or a list of content
// blocks — the Anthropic wire format allows both for a message's "content"
// field.
type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type wireToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type wireRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      json.RawMessage `json:"system,omitempty"`
	Messages    []wireMessage   `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Tools       []wireToolSpec  `json:"tools,omitempty"`
}

func decodeContentBlocks(raw json.RawMessage) ([]wireContentBlock, string, error) {
	if len(raw) == 0 {
		return nil, "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return nil, asString, nil
	}
	var blocks []wireContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, "", err
	}
	return blocks, "", nil
}

// Decode validates and converts an Anthropic-shaped request body. The
// top-level "system" string (or block list) becomes a synthetic leading
// system message; tool_use/tool_result blocks flatten onto
// ToolCalls/ToolCallID the way the internal model expects.
func (a *Adapter) Decode(body []byte) (*model.Request, error) {
	var wr wireRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, apperr.Wrap(apperr.KindInputInvalid, "malformed JSON body", err)
	}
	if wr.Model == "" {
		return nil, apperr.New(apperr.KindInputInvalid, "model is required")
	}
	if len(wr.Messages) == 0 {
		return nil, apperr.New(apperr.KindInputInvalid, "messages must not be empty")
	}
	if wr.MaxTokens <= 0 {
		return nil, apperr.New(apperr.KindInputInvalid, "max_tokens is required")
	}

	req := &model.Request{
		Model:       wr.Model,
		Stream:      wr.Stream,
		Temperature: wr.Temperature,
		TopP:        wr.TopP,
		MaxTokens:   &wr.MaxTokens,
		Metadata:    model.Metadata{OriginalProvider: "anthropic"},
	}
	if len(wr.StopSeq) == 1 {
		req.Stop = model.Stop{Single: wr.StopSeq[0]}
	} else if len(wr.StopSeq) > 1 {
		req.Stop = model.Stop{Multi: wr.StopSeq}
	}

	if len(wr.System) > 0 {
		blocks, asString, err := decodeContentBlocks(wr.System)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInputInvalid, "invalid system field", err)
		}
		if asString != "" {
			req.Messages = append(req.Messages, model.Message{Role: model.RoleSystem, Content: asString})
		}
		for _, b := range blocks {
			if b.Type == "text" {
				req.Messages = append(req.Messages, model.Message{Role: model.RoleSystem, Content: b.Text})
			}
		}
	}

	for _, m := range wr.Messages {
		blocks, asString, err := decodeContentBlocks(m.Content)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInputInvalid, "invalid message content", err)
		}
		if asString != "" {
			req.Messages = append(req.Messages, model.Message{Role: model.Role(m.Role), Content: asString})
			continue
		}

		var text string
		var toolCalls []model.ToolCall
		for _, b := range blocks {
			switch b.Type {
			case "text":
				text += b.Text
			case "tool_use":
				args, _ := json.Marshal(b.Input)
				toolCalls = append(toolCalls, model.ToolCall{ID: b.ID, Kind: model.ToolKindFunction, Function: model.FunctionCall{Name: b.Name, Arguments: string(args)}})
			case "tool_result":
				req.Messages = append(req.Messages, model.Message{Role: model.RoleTool, Content: b.Content, ToolCallID: b.ToolUseID})
			}
		}
		if text != "" || len(toolCalls) > 0 {
			req.Messages = append(req.Messages, model.Message{Role: model.Role(m.Role), Content: text, ToolCalls: toolCalls})
		}
	}

	for _, t := range wr.Tools {
		req.Tools = append(req.Tools, model.Tool{Kind: model.ToolKindFunction, Function: model.FunctionDef{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = model.ToolChoiceAuto
	}

	return req, nil
}
