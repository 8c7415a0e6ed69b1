package plugins

import (
	"hash/fnv"
	"strings"

	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// promptPlaceholder marks where wrapper mode splices the existing system
// prompt into the configured template.
const promptPlaceholder = "${PROMPT}"

// PromptMode selects how PromptManager combines its configured text with
// the system message already present on the request.
type PromptMode string

const (
	// PromptModeOverride replaces the system message entirely.
	PromptModeOverride PromptMode = "override"
	// PromptModeBefore prepends the configured text before the existing
	// system message.
	PromptModeBefore PromptMode = "before"
	// PromptModeAfter appends the configured text after the existing
	// system message.
	PromptModeAfter PromptMode = "after"
	// PromptModeWrapper substitutes the existing system message into a
	// template containing the literal placeholder "${PROMPT}".
	PromptModeWrapper PromptMode = "wrapper"
)

// Variant is one arm of an A/B experiment: a prompt mode/text pair and the
// percentage of traffic it should receive.
type Variant struct {
	Name       string
	Mode       PromptMode
	Text       string
	Percentage int // 0-100; variants in a chain should sum to 100
}

// PromptManagerConfig configures PromptManager.
type PromptManagerConfig struct {
	Name_      string
	Priority_  int
	Enabled_   bool
	Conditions plugin.Conditions

	// Variants is consulted in order; the first whose cumulative percentage
	// range covers the request's experiment bucket wins. A single-entry
	// slice with Percentage 100 is the common non-experiment case.
	Variants []Variant
}

// PromptManager rewrites a request's system message according to its
// configured mode, optionally split across an A/B experiment bucketed
// deterministically by request ID so the same caller's retries land on the
// same variant.
type PromptManager struct {
	cfg PromptManagerConfig
}

func NewPromptManager(cfg PromptManagerConfig) *PromptManager {
	return &PromptManager{cfg: cfg}
}

func (p *PromptManager) Name() string                  { return p.cfg.Name_ }
func (p *PromptManager) Priority() int                 { return p.cfg.Priority_ }
func (p *PromptManager) Enabled() bool                 { return p.cfg.Enabled_ }
func (p *PromptManager) Conditions() plugin.Conditions { return p.cfg.Conditions }

func (p *PromptManager) pickVariant(requestID string) *Variant {
	if len(p.cfg.Variants) == 0 {
		return nil
	}
	if len(p.cfg.Variants) == 1 {
		return &p.cfg.Variants[0]
	}
	h := fnv.New32a()
	h.Write([]byte(requestID))
	bucket := int(h.Sum32() % 100)

	cumulative := 0
	for i := range p.cfg.Variants {
		cumulative += p.cfg.Variants[i].Percentage
		if bucket < cumulative {
			return &p.cfg.Variants[i]
		}
	}
	return &p.cfg.Variants[len(p.cfg.Variants)-1]
}

func (p *PromptManager) BeforeModel(ctx *model.Context) plugin.Result {
	variant := p.pickVariant(ctx.RequestID)
	if variant == nil {
		return plugin.Ok()
	}

	req := *ctx.Request
	messages := append([]model.Message(nil), req.Messages...)

	sysIdx := -1
	for i, m := range messages {
		if m.Role == model.RoleSystem {
			sysIdx = i
			break
		}
	}

	switch variant.Mode {
	case PromptModeOverride:
		if sysIdx >= 0 {
			messages[sysIdx].Content = variant.Text
		} else {
			messages = append([]model.Message{{Role: model.RoleSystem, Content: variant.Text}}, messages...)
		}
	case PromptModeBefore:
		if sysIdx >= 0 {
			messages[sysIdx].Content = variant.Text + "\n" + messages[sysIdx].Content
		} else {
			messages = append([]model.Message{{Role: model.RoleSystem, Content: variant.Text}}, messages...)
		}
	case PromptModeAfter:
		if sysIdx >= 0 {
			messages[sysIdx].Content = messages[sysIdx].Content + "\n" + variant.Text
		} else {
			messages = append([]model.Message{{Role: model.RoleSystem, Content: variant.Text}}, messages...)
		}
	case PromptModeWrapper:
		existing := ""
		if sysIdx >= 0 {
			existing = messages[sysIdx].Content
		}
		wrapped := strings.ReplaceAll(variant.Text, promptPlaceholder, existing)
		if sysIdx >= 0 {
			messages[sysIdx].Content = wrapped
		} else {
			messages = append([]model.Message{{Role: model.RoleSystem, Content: wrapped}}, messages...)
		}
	}

	req.Messages = messages
	metadataPatch := model.Metadata{Custom: map[string]any{"prompt_variant": variant.Name}}

	return plugin.Result{
		Patch: &plugin.ContextPatch{
			Request:       &req,
			MetadataPatch: &metadataPatch,
		},
	}
}
