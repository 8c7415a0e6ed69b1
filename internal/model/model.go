// Package model holds the vendor-neutral request/response representation
// that every input adapter, provider client, and output adapter translates
// to and from. Nothing in this package knows about OpenAI or Anthropic wire
// shapes — that translation lives in internal/adapter and internal/provider.
package model

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is why a model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// ToolKind is the discriminator for a Tool/ToolCall. Only "function" exists
// today but the field is kept explicit rather than hard-coded, matching how
// every vendor wire format reserves the field for future tool kinds.
const ToolKindFunction = "function"

// FunctionCall is the name+arguments payload of a ToolCall or Tool.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionDef is the schema half of a Tool definition.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is one invocation of a tool, either complete (non-streaming, or
// the accumulated view of a stream) or a fragment (a single streaming delta).
//
// Invariant: Arguments must be syntactically valid JSON whenever observed as
// "complete" — during streaming it may be the concatenation of fragments
// that only parses once the block closes.
type ToolCall struct {
	ID       string       `json:"id"`
	Kind     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Tool is a function definition a caller makes available to the model.
type Tool struct {
	Kind     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// Message is one turn in a chat.
//
// Invariant: Role == RoleTool implies ToolCallID != "".
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolChoice is the caller's tool-use policy. Vendor object forms (e.g. a
// forced single-tool choice) are folded to ToolChoiceAuto by the input
// adapter, with the original captured in Metadata.Custom.
type ToolChoice string

const (
	ToolChoiceNone ToolChoice = "none"
	ToolChoiceAuto ToolChoice = "auto"
)

// Stop is either a single stop string or a list of them — vendors differ on
// whether "stop" is a scalar or an array, so the internal model keeps both
// and lets the provider client marshal whichever shape its vendor expects.
type Stop struct {
	Single string
	Multi  []string
}

// IsZero reports whether no stop sequence was configured.
func (s Stop) IsZero() bool {
	return s.Single == "" && len(s.Multi) == 0
}

// Metadata is the free-form bag threaded through a request: the originating
// vendor, any vendor-specific fields with no internal-model home, and keys
// plugins add along the way (auth_*, experiment assignments, and so on).
type Metadata struct {
	OriginalProvider string         `json:"original_provider,omitempty"`
	Custom           map[string]any `json:"custom,omitempty"`
}

// Clone returns a deep-enough copy for the pipeline's merge-by-overlay rule
// (§4.5): new keys are added, existing keys overwritten, nothing shared.
func (m Metadata) Clone() Metadata {
	out := Metadata{OriginalProvider: m.OriginalProvider}
	if m.Custom != nil {
		out.Custom = make(map[string]any, len(m.Custom))
		for k, v := range m.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// Merge overlays patch onto m per the pipeline's deep-merge-by-field rule:
// new keys are added, existing keys overwritten, and OriginalProvider is
// replaced only when the patch carries a non-empty value.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m.Clone()
	if patch.OriginalProvider != "" {
		out.OriginalProvider = patch.OriginalProvider
	}
	for k, v := range patch.Custom {
		if out.Custom == nil {
			out.Custom = make(map[string]any)
		}
		out.Custom[k] = v
	}
	return out
}

// Request is the internal representation of a chat completion request.
type Request struct {
	Messages         []Message  `json:"messages"`
	Model            string     `json:"model"`
	Temperature      *float64   `json:"temperature,omitempty"`
	MaxTokens        *int       `json:"max_tokens,omitempty"`
	TopP             *float64   `json:"top_p,omitempty"`
	FrequencyPenalty *float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64   `json:"presence_penalty,omitempty"`
	Stop             Stop       `json:"-"`
	Stream           bool       `json:"stream,omitempty"`
	Tools            []Tool     `json:"tools,omitempty"`
	ToolChoice       ToolChoice `json:"tool_choice,omitempty"`

	// TargetProvider is a routing hint assigned by a beforeModel plugin
	// (e.g. model-router). Empty means "use the model's configured provider".
	TargetProvider string `json:"-"`

	Metadata Metadata `json:"-"`
}

// Object is the discriminator on a Response: a full completion or one chunk
// of a streaming completion.
type Object string

const (
	ObjectCompletion      Object = "chat.completion"
	ObjectCompletionChunk Object = "chat.completion.chunk"
)

// Usage holds token counts. Merge rule (§3): latest non-null wins per
// counter, and TotalTokens is recomputed as the sum of the other two
// whenever both are known.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// Merge folds incoming usage onto u per §3's field-wise "last non-null wins"
// rule, then recomputes the total if both components are known.
func (u Usage) Merge(incoming Usage) Usage {
	out := u
	if incoming.PromptTokens != nil {
		out.PromptTokens = incoming.PromptTokens
	}
	if incoming.CompletionTokens != nil {
		out.CompletionTokens = incoming.CompletionTokens
	}
	if incoming.TotalTokens != nil {
		out.TotalTokens = incoming.TotalTokens
	}
	if out.PromptTokens != nil && out.CompletionTokens != nil {
		total := *out.PromptTokens + *out.CompletionTokens
		out.TotalTokens = &total
	}
	return out
}

// Content is one entry in a Response's Content list: either a full Message
// (non-streaming / accumulated view) or a Delta (one streaming fragment) —
// never both on a frame from a provider, though the merge engine normalises
// both shapes onto the same struct.
type Content struct {
	Index        int           `json:"index"`
	Message      *Message      `json:"message,omitempty"`
	Delta        *Message      `json:"delta,omitempty"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
	LogProbs     any           `json:"logprobs,omitempty"`
}

// Response is the internal representation of a chat completion response,
// whether a complete answer or one chunk of a stream.
type Response struct {
	ID                string    `json:"id"`
	Object            Object    `json:"object"`
	Created           int64     `json:"created"`
	Model             string    `json:"model"`
	Content           []Content `json:"content"`
	Usage             *Usage    `json:"usage,omitempty"`
	SystemFingerprint string    `json:"system_fingerprint,omitempty"`
}
