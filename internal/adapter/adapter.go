// Package adapter defines the shared contract every vendor-facing adapter
// implements (§4.2/§4.3): translate a vendor wire request into the internal
// model on the way in, and translate an internal response (or stream) back
// into that vendor's wire shape on the way out.
package adapter

import (
	"io"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/model"
)

// InputAdapter validates and converts a raw HTTP request body in a vendor's
// wire format into the internal Request.
type InputAdapter interface {
	Name() string
	// BasePath is the route prefix this adapter is mounted under, e.g.
	// "/v1/chat/completions" for OpenAI or "/v1/messages" for Anthropic.
	BasePath() string
	// Decode validates and converts body. A validation failure returns an
	// *apperr.Error with KindInputInvalid.
	Decode(body []byte) (*model.Request, error)
}

// OutputAdapter converts an internal Response back to a vendor's wire
// shape, for both the unary and the streaming case.
type OutputAdapter interface {
	Name() string
	// EncodeUnary writes the complete JSON response body for a non-streaming call.
	EncodeUnary(w io.Writer, resp *model.Response) error
	// NewStreamWriter returns a StreamWriter scoped to one streaming request.
	NewStreamWriter(w http.ResponseWriter) StreamWriter
}

// NativeRoute is one auxiliary vendor endpoint an adapter serves besides its
// chat-completion BasePath, e.g. the GET /models listing. Path is relative to
// the adapter's mount prefix.
type NativeRoute struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// NativeRouteAdvertiser is implemented by adapters that carry auxiliary
// routes. The dispatcher probes for it the same way the pipeline probes
// plugins for phase hooks.
type NativeRouteAdvertiser interface {
	NativeRoutes() []NativeRoute
}

// StreamWriter frames one outbound SSE event per call. It is not safe for
// concurrent use — the dispatcher drives it from a single goroutine per
// request, same as the provider clients' producer goroutines feed their
// StreamEvent channel.
type StreamWriter interface {
	// WriteChunk frames and flushes one emitted chunk.
	WriteChunk(resp *model.Response) error
	// Close writes whatever sentinel/terminal frame the vendor's protocol
	// requires (OpenAI's "data: [DONE]", Anthropic's message_stop) and
	// releases any per-request state the writer was holding.
	Close() error
}
