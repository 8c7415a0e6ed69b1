// Package merge implements §4.6: the streaming merge engine that folds a
// sequence of per-chunk responses into a running accumulated response, one
// request at a time, single-writer, no locking needed because each request
// owns its own Merger.
package merge

import "github.com/howard-nolan/llmrouter/internal/model"

// Merger holds the per-request accumulation state: the running whole
// response (Accumulated) and the merged-but-not-yet-emitted chunk
// (Buffered), so a plugin can suppress emission of a chunk and let its
// content fold into the next one instead.
type Merger struct {
	Accumulated *model.Response
	Buffered    *model.Response
}

// New creates an empty Merger for one request.
func New() *Merger {
	return &Merger{Accumulated: &model.Response{}, Buffered: &model.Response{}}
}

// FoldIntoBuffer applies the §4.6 merge algorithm: Buffered ← Buffered ⊕
// incoming. The buffered chunk keeps delta semantics — it is still a chunk,
// the thing the output adapter will frame as a streaming delta.
func (m *Merger) FoldIntoBuffer(incoming *model.Response) {
	m.Buffered = fold(m.Buffered, incoming, false)
}

// Commit applies Accumulated ← Accumulated ⊕ Buffered with message semantics
// and resets Buffered to empty — called by the dispatcher only when a chunk
// is actually emitted to the wire (§4.6's emission policy).
func (m *Merger) Commit() {
	m.Accumulated = fold(m.Accumulated, m.Buffered, true)
	m.Buffered = &model.Response{}
}

// fold implements the merge algorithm of §4.6 and returns a new Response;
// it never mutates either argument in place, so callers can safely keep
// referring to the pre-fold values (e.g. to compute a delta for logging).
// toMessage selects whether merged content is normalised onto
// Content.Message (the accumulated whole-response view) or Content.Delta
// (the buffered chunk view).
func fold(current, incoming *model.Response, toMessage bool) *model.Response {
	if current == nil {
		current = &model.Response{}
	}
	if incoming == nil {
		return current
	}

	out := *current

	// 1. Top-level fields: incoming wins when present, else keep current.
	if incoming.ID != "" {
		out.ID = incoming.ID
	}
	if incoming.Object != "" {
		out.Object = incoming.Object
	}
	if incoming.Created != 0 {
		out.Created = incoming.Created
	}
	if incoming.Model != "" {
		out.Model = incoming.Model
	}
	if incoming.SystemFingerprint != "" {
		out.SystemFingerprint = incoming.SystemFingerprint
	}

	// 2. Usage: field-wise last-non-null-wins, then recompute total.
	if incoming.Usage != nil {
		base := model.Usage{}
		if out.Usage != nil {
			base = *out.Usage
		}
		merged := base.Merge(*incoming.Usage)
		out.Usage = &merged
	}

	// 3. content[lastIndex]: ensure it exists, then fold text/finish_reason/tool_calls.
	out.Content = foldContent(out.Content, incoming.Content, toMessage)

	return &out
}

// foldContent applies step 3 of §4.6 for every incoming content entry,
// matched to the existing entry at the same Index (creating one if absent)
// — this is the "ensure content[lastIndex] exists" rule generalised to
// whatever index the incoming frame carries (§9 scopes n>1 streaming out,
// so in practice there is exactly one index in play per request).
func foldContent(existing []model.Content, incoming []model.Content, toMessage bool) []model.Content {
	if len(incoming) == 0 {
		return existing
	}
	out := append([]model.Content(nil), existing...)
	for _, in := range incoming {
		idx := indexOf(out, in.Index)
		if idx == -1 {
			out = append(out, model.Content{Index: in.Index})
			idx = len(out) - 1
		}
		out[idx] = foldOneContent(out[idx], in, toMessage)
	}
	return out
}

func indexOf(contents []model.Content, index int) int {
	for i, c := range contents {
		if c.Index == index {
			return i
		}
	}
	return -1
}

func foldOneContent(current, incoming model.Content, toMessage bool) model.Content {
	out := current

	incomingText := textOf(incoming)
	if incomingText != "" || (toMessage && textOf(out) != "") {
		role := roleOf(out)
		if role == "" {
			role = roleOf(incoming)
		}
		merged := &model.Message{
			Role:      role,
			Content:   textOf(out) + incomingText,
			ToolCalls: toolCallsOf(out),
		}
		if toMessage {
			out.Message, out.Delta = merged, nil
		} else {
			out.Delta, out.Message = merged, nil
		}
	}

	// finish_reason: first non-null seen wins.
	if out.FinishReason == nil && incoming.FinishReason != nil {
		out.FinishReason = incoming.FinishReason
	}

	out = foldToolCalls(out, incoming, toMessage)

	if incoming.LogProbs != nil {
		out.LogProbs = incoming.LogProbs
	}

	return out
}

func textOf(c model.Content) string {
	if c.Message != nil {
		return c.Message.Content
	}
	if c.Delta != nil {
		return c.Delta.Content
	}
	return ""
}

func roleOf(c model.Content) model.Role {
	if c.Message != nil && c.Message.Role != "" {
		return c.Message.Role
	}
	if c.Delta != nil && c.Delta.Role != "" {
		return c.Delta.Role
	}
	return ""
}

func toolCallsOf(c model.Content) []model.ToolCall {
	if c.Message != nil {
		return c.Message.ToolCalls
	}
	if c.Delta != nil {
		return c.Delta.ToolCalls
	}
	return nil
}

// foldToolCalls implements §4.6's tool-call fragment rule: an incoming
// fragment with an ID starts a new tool call; one without an ID continues
// the last tool call by concatenating its arguments fragment.
func foldToolCalls(out model.Content, incoming model.Content, toMessage bool) model.Content {
	incomingCalls := toolCallsOf(incoming)
	if len(incomingCalls) == 0 {
		if toMessage && out.Delta != nil && len(out.Delta.ToolCalls) > 0 && out.Message == nil {
			out.Message = &model.Message{Role: roleOf(out), ToolCalls: out.Delta.ToolCalls}
			out.Delta = nil
		}
		return out
	}

	calls := append([]model.ToolCall(nil), toolCallsOf(out)...)
	for _, frag := range incomingCalls {
		switch {
		case frag.ID != "":
			calls = append(calls, frag)
		case len(calls) == 0:
			calls = append(calls, frag)
		default:
			last := &calls[len(calls)-1]
			last.Function.Arguments += frag.Function.Arguments
			if frag.Function.Name != "" {
				last.Function.Name = frag.Function.Name
			}
		}
	}

	switch {
	case out.Message != nil:
		msg := *out.Message
		msg.ToolCalls = calls
		out.Message = &msg
	case out.Delta != nil:
		delta := *out.Delta
		delta.ToolCalls = calls
		out.Delta = &delta
	case toMessage:
		out.Message = &model.Message{Role: roleOf(incoming), ToolCalls: calls}
	default:
		out.Delta = &model.Message{ToolCalls: calls}
	}
	return out
}
