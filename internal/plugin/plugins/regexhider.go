package plugins

import (
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
	"github.com/howard-nolan/llmrouter/internal/plugin"
)

// RegexRule is one pattern to scan text for.
type RegexRule struct {
	Pattern     *regexp.Regexp
	Replacement string // ignored when the rule blocks
	// BlockOnMatch rejects the whole exchange instead of rewriting it.
	BlockOnMatch bool
}

// RegexMode is the plugin-wide default for rules that don't set their own
// BlockOnMatch.
type RegexMode string

const (
	// RegexModeBlock terminates the exchange entirely on any match.
	RegexModeBlock RegexMode = "block"
	// RegexModeReplace substitutes each match with its rule's Replacement.
	RegexModeReplace RegexMode = "replace"
)

// ApplyTo scopes which side of the exchange the rules scan.
type ApplyTo string

const (
	ApplyToRequest  ApplyTo = "request"
	ApplyToResponse ApplyTo = "response"
	ApplyToBoth     ApplyTo = "both"
)

// FlushTrigger controls when RegexHider releases buffered streaming text,
// trading latency (hold text longer, catch patterns split across chunks)
// against responsiveness.
type FlushTrigger string

const (
	// FlushOnNewline releases the whole buffer as soon as a newline
	// appears in it.
	FlushOnNewline FlushTrigger = "newline"
	// FlushOnMaxSize releases the whole buffer once it reaches MaxBufferSize.
	FlushOnMaxSize FlushTrigger = "maxSize"
	// FlushOnTimeout releases the whole buffer on a FlushTimeout cadence: a
	// per-request ticker goroutine arms a flush on each tick, and the next
	// chunk to arrive performs it. While no chunk arrives nothing is
	// released.
	FlushOnTimeout FlushTrigger = "timeout"
	// FlushOnAll holds everything until the stream's final chunk, giving
	// the regex engine the complete text to work with at the cost of
	// streaming latency.
	FlushOnAll FlushTrigger = "all"
)

// RegexHiderConfig configures RegexHider.
type RegexHiderConfig struct {
	Name_      string
	Priority_  int
	Enabled_   bool
	Conditions plugin.Conditions

	Rules         []RegexRule
	Mode          RegexMode
	ApplyTo       ApplyTo // defaults to response-only
	BlockStatus   int     // HTTP status for a blocked exchange; defaults to 400
	FlushTrigger  FlushTrigger
	MaxBufferSize int
	FlushTimeout  time.Duration
}

func (c RegexHiderConfig) scansRequest() bool {
	return c.ApplyTo == ApplyToRequest || c.ApplyTo == ApplyToBoth
}

func (c RegexHiderConfig) scansResponse() bool {
	return c.ApplyTo == "" || c.ApplyTo == ApplyToResponse || c.ApplyTo == ApplyToBoth
}

func (c RegexHiderConfig) blockStatus() int {
	if c.BlockStatus != 0 {
		return c.BlockStatus
	}
	return http.StatusBadRequest
}

// RegexHider scans model output against configured patterns and either
// blocks the response or rewrites matched text. For unary responses it
// works on the complete text (AfterModel); for streaming it buffers deltas
// per request and only scans on a flush boundary, so a pattern split across
// two chunks is still caught (§4.8).
type RegexHider struct {
	cfg RegexHiderConfig
}

func NewRegexHider(cfg RegexHiderConfig) *RegexHider {
	return &RegexHider{cfg: cfg}
}

func (p *RegexHider) Name() string                  { return p.cfg.Name_ }
func (p *RegexHider) Priority() int                 { return p.cfg.Priority_ }
func (p *RegexHider) Enabled() bool                 { return p.cfg.Enabled_ }
func (p *RegexHider) Conditions() plugin.Conditions { return p.cfg.Conditions }

// scrub runs every rule over text. blocked reports that a blocking rule
// matched; the returned text has all replace-mode matches rewritten.
func (p *RegexHider) scrub(text string) (scrubbed string, matched, blocked bool) {
	for _, rule := range p.cfg.Rules {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		matched = true
		if rule.BlockOnMatch || p.cfg.Mode == RegexModeBlock {
			blocked = true
			continue
		}
		text = rule.Pattern.ReplaceAllString(text, rule.Replacement)
	}
	return text, matched, blocked
}

func (p *RegexHider) blockResult() plugin.Result {
	return plugin.Result{
		Terminate: true,
		Status:    p.cfg.blockStatus(),
		Err:       apperr.New(apperr.KindForbidden, "blocked by content policy"),
	}
}

// BeforeModel scans the inbound messages when the rules apply to the
// request side: a blocking match rejects the exchange before any provider
// call, a replace-mode match rewrites the offending message text.
func (p *RegexHider) BeforeModel(ctx *model.Context) plugin.Result {
	if !p.cfg.scansRequest() || ctx.Request == nil {
		return plugin.Ok()
	}

	req := *ctx.Request
	messages := append([]model.Message(nil), req.Messages...)
	rewritten := false
	for i, m := range messages {
		scrubbed, matched, blocked := p.scrub(m.Content)
		if blocked {
			return p.blockResult()
		}
		if matched {
			messages[i].Content = scrubbed
			rewritten = true
		}
	}
	if !rewritten {
		return plugin.Ok()
	}
	req.Messages = messages
	return plugin.Result{Patch: &plugin.ContextPatch{Request: &req}}
}

// AfterModel scrubs every content entry of a complete, non-streaming response.
func (p *RegexHider) AfterModel(ctx *model.Context) plugin.Result {
	if !p.cfg.scansResponse() || ctx.Response == nil {
		return plugin.Ok()
	}
	resp := *ctx.Response
	resp.Content = append([]model.Content(nil), resp.Content...)

	for i, c := range resp.Content {
		if c.Message == nil {
			continue
		}
		scrubbed, matched, blocked := p.scrub(c.Message.Content)
		if blocked {
			return p.blockResult()
		}
		if !matched {
			continue
		}
		msg := *c.Message
		msg.Content = scrubbed
		resp.Content[i].Message = &msg
	}

	return plugin.Result{Patch: &plugin.ContextPatch{Response: &resp}}
}

type regexHiderState struct {
	buffer strings.Builder

	// flushDue is set by the ticker goroutine below and consumed (reset) on
	// each flush. Only allocated for FlushOnTimeout.
	flushDue *atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// stopTimer shuts the flush ticker down; safe to call more than once and on
// states that never had a timer.
func (st *regexHiderState) stopTimer() {
	if st.stop != nil {
		st.stopOnce.Do(func() { close(st.stop) })
	}
}

func (p *RegexHider) state(ctx *model.Context) *regexHiderState {
	if ctx.PluginData == nil {
		ctx.PluginData = map[string]map[string]any{}
	}
	bucket := ctx.PluginData[p.Name()]
	if bucket == nil {
		bucket = map[string]any{}
		ctx.PluginData[p.Name()] = bucket
	}
	st, ok := bucket["state"].(*regexHiderState)
	if !ok {
		st = &regexHiderState{}
		if p.cfg.FlushTrigger == FlushOnTimeout && p.cfg.FlushTimeout > 0 {
			st.flushDue = atomic.NewBool(false)
			st.stop = make(chan struct{})
			go flushTicker(p.cfg.FlushTimeout, st)
		}
		bucket["state"] = st
	}
	return st
}

// flushTicker drives timeout-based flushing with a real timer, the same
// ticker-goroutine shape the Anthropic stream writer uses for its ping
// events: each tick arms flushDue, and the next afterChunk invocation
// drains the buffer instead of suppressing it.
func flushTicker(every time.Duration, st *regexHiderState) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st.flushDue.Store(true)
		case <-st.stop:
			return
		}
	}
}

func (p *RegexHider) shouldFlush(st *regexHiderState, final bool) bool {
	if final {
		return true
	}
	switch p.cfg.FlushTrigger {
	case FlushOnNewline:
		return strings.Contains(st.buffer.String(), "\n")
	case FlushOnMaxSize:
		return p.cfg.MaxBufferSize > 0 && st.buffer.Len() >= p.cfg.MaxBufferSize
	case FlushOnTimeout:
		return st.flushDue != nil && st.flushDue.Load()
	case FlushOnAll:
		return false
	default:
		return true
	}
}

// AfterChunk buffers each arriving delta's text per request and, once a
// flush boundary is reached, scrubs the buffered text and rewrites
// ctx.BufferedChunk (which holds the same concatenation, courtesy of the
// merge engine's suppression path) before letting it through — suppressing
// emission (EmitChunk=false) on every round that doesn't flush.
func (p *RegexHider) AfterChunk(ctx *model.Context) plugin.Result {
	if !p.cfg.scansResponse() || ctx.BufferedChunk == nil || len(ctx.BufferedChunk.Content) == 0 {
		return plugin.Ok()
	}

	st := p.state(ctx)
	if ctx.Chunk != nil && len(ctx.Chunk.Content) > 0 {
		if d := ctx.Chunk.Content[len(ctx.Chunk.Content)-1].Delta; d != nil {
			st.buffer.WriteString(d.Content)
		}
	}
	content := &ctx.BufferedChunk.Content[len(ctx.BufferedChunk.Content)-1]
	if ctx.FinalChunk {
		st.stopTimer()
	}

	if !p.shouldFlush(st, ctx.FinalChunk) {
		no := false
		return plugin.Result{EmitChunk: &no}
	}

	text := st.buffer.String()
	scrubbed, _, blocked := p.scrub(text)
	if blocked {
		return p.blockResult()
	}

	st.buffer.Reset()
	if st.flushDue != nil {
		st.flushDue.Store(false)
	}

	if content.Delta == nil {
		content.Delta = &model.Message{}
	}
	content.Delta.Content = scrubbed

	yes := true
	return plugin.Result{EmitChunk: &yes}
}

// DetachedAfterResponse releases the flush ticker. The detached phase runs
// even when the client disconnected before the stream's final chunk, so the
// ticker goroutine can't outlive its request.
func (p *RegexHider) DetachedAfterResponse(ctx *model.Context) {
	if ctx.PluginData == nil {
		return
	}
	bucket := ctx.PluginData[p.Name()]
	if bucket == nil {
		return
	}
	if st, ok := bucket["state"].(*regexHiderState); ok {
		st.stopTimer()
	}
}
