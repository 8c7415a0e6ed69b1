// Package openai implements the OpenAI chat-completions wire format as both
// an input adapter (§4.2) and an output adapter (§4.3), mounted at
// /v1/chat/completions.
package openai

import (
	"encoding/json"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/adapter"
	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
)

const BasePath = "/v1/chat/completions"

// listedModels is the static GET /models inventory. Clients use it for
// discovery only; actual routing goes through the configured model catalog.
var listedModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}

// Adapter implements both adapter.InputAdapter and adapter.OutputAdapter for
// the OpenAI wire format.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string     { return "openai" }
func (a *Adapter) BasePath() string { return BasePath }

// NativeRoutes advertises the GET /models listing in OpenAI's list shape.
func (a *Adapter) NativeRoutes() []adapter.NativeRoute {
	return []adapter.NativeRoute{{
		Method: http.MethodGet,
		Path:   "/models",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			data := make([]map[string]any, len(listedModels))
			for i, id := range listedModels {
				data[i] = map[string]any{"id": id, "object": "model", "owned_by": "openai"}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
		},
	}}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireFunctionSpec `json:"function"`
}

type wireFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireRequest struct {
	Model            string          `json:"model"`
	Messages         []wireMessage   `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
	Tools            []wireTool      `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
}

// Decode validates and converts an OpenAI-shaped request body.
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

	req := &model.Request{
		Model:            wr.Model,
		Stream:           wr.Stream,
		Temperature:      wr.Temperature,
		MaxTokens:        wr.MaxTokens,
		TopP:             wr.TopP,
		FrequencyPenalty: wr.FrequencyPenalty,
		PresencePenalty:  wr.PresencePenalty,
		Metadata:         model.Metadata{OriginalProvider: "openai"},
	}

	for _, m := range wr.Messages {
		role := model.Role(m.Role)
		if role == model.RoleTool && m.ToolCallID == "" {
			return nil, apperr.New(apperr.KindInputInvalid, "tool messages must carry tool_call_id")
		}
		msg := model.Message{
			Role: role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID: tc.ID, Kind: tc.Type,
				Function: model.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		req.Messages = append(req.Messages, msg)
	}

	if len(wr.Stop) > 0 {
		var single string
		if err := json.Unmarshal(wr.Stop, &single); err == nil {
			req.Stop = model.Stop{Single: single}
		} else {
			var multi []string
			if err := json.Unmarshal(wr.Stop, &multi); err != nil {
				return nil, apperr.New(apperr.KindInputInvalid, "stop must be a string or array of strings")
			}
			req.Stop = model.Stop{Multi: multi}
		}
	}

	for _, t := range wr.Tools {
		req.Tools = append(req.Tools, model.Tool{
			Kind: t.Type,
			Function: model.FunctionDef{
				Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters,
			},
		})
	}

	if len(wr.ToolChoice) > 0 {
		var asString string
		if err := json.Unmarshal(wr.ToolChoice, &asString); err == nil {
			switch asString {
			case "none":
				req.ToolChoice = model.ToolChoiceNone
			default:
				req.ToolChoice = model.ToolChoiceAuto
			}
		} else {
			// A forced single-tool object choice; the internal model only
			// distinguishes none/auto, so fold to auto and keep the
			// original verbatim for a provider that can honor it exactly.
			req.ToolChoice = model.ToolChoiceAuto
			if req.Metadata.Custom == nil {
				req.Metadata.Custom = map[string]any{}
			}
			var raw any
			_ = json.Unmarshal(wr.ToolChoice, &raw)
			req.Metadata.Custom["openai_tool_choice"] = raw
		}
	}

	return req, nil
}
