package model

import (
	"net/http"
	"time"

	"github.com/howard-nolan/llmrouter/internal/apperr"
)

// HTTPView is the mutable view of the inbound HTTP request that plugins can
// rewrite. Headers are the one field the auth-gateway plugin replaces
// wholesale (§4.5) rather than patching.
type HTTPView struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Metrics is the per-request timing/token bookkeeping described in §3.
type Metrics struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Context is the per-request state threaded through the plugin pipeline.
// The dispatcher owns the only writable copy; plugins receive a read-only
// view (by convention — Go has no const structs, so "read-only" here means
// "the engine discards what you write and applies your returned patch
// instead", see internal/pipeline).
type Context struct {
	RequestID string
	SessionID string
	UserID    string

	HTTP *HTTPView

	Request  *Request
	Response *Response

	// Streaming-only fields.
	Chunk               *Response
	BufferedChunk       *Response
	AccumulatedResponse *Response
	FinalChunk          bool

	Metrics Metrics

	TargetModel         string
	TargetModelProvider string

	PluginData map[string]map[string]any
	Metadata   Metadata

	Err        *apperr.Error
	RetryCount int
}

// Clone returns a shallow-enough copy of ctx suitable for handing to a
// plugin: mutating the copy's top-level fields never affects the original,
// but callers must not rely on deep-cloning Request.Messages etc. — the
// pipeline engine only ever applies patches the plugin returns, it never
// writes back through the clone.
func (c *Context) Clone() *Context {
	clone := *c
	clone.Metadata = c.Metadata.Clone()
	clone.PluginData = make(map[string]map[string]any, len(c.PluginData))
	for k, v := range c.PluginData {
		inner := make(map[string]any, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		clone.PluginData[k] = inner
	}
	return &clone
}
