// Package provider implements §4.4: HTTP clients that speak a vendor's
// native chat-completion API on behalf of the gateway. Every provider
// translates the internal model to its vendor's wire shape, executes the
// call, and translates the response back — the rest of the gateway never
// sees vendor JSON.
package provider

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/llmrouter/internal/apperr"
	"github.com/howard-nolan/llmrouter/internal/model"
)

// StreamEvent is one item delivered on the channel ExecuteStreaming returns.
// Chunk is nil exactly when Final is true and no trailing data accompanied
// it (OpenAI's [DONE] marker, for instance, carries no payload of its
// own). Err is non-nil only on the final event of a failed stream.
type StreamEvent struct {
	Chunk *model.Response
	Final bool
	Err   error
}

// Provider is the interface every vendor adapter satisfies. The gateway's
// registry, pipeline, and dispatcher only ever talk to this interface.
type Provider interface {
	// Name identifies the provider for logging, metrics labels, and the
	// X-LLMRouter-Provider response header.
	Name() string

	// Execute sends a non-streaming request and returns the complete
	// response. Retries per §4.4/§5 live inside the implementation.
	Execute(ctx context.Context, req *model.Request) (*model.Response, error)

	// ExecuteStreaming sends a streaming request. The returned channel is
	// closed after the terminal StreamEvent (Final: true) is sent. A
	// streaming call is never retried once the first chunk has arrived
	// (§5) — retry only applies within Execute.
	ExecuteStreaming(ctx context.Context, req *model.Request) (<-chan StreamEvent, error)
}

// RetryPolicy configures Execute's unary retry behaviour (§4.4, §5):
// exponential backoff, transport errors and upstream 5xx only, never 4xx.
type RetryPolicy struct {
	Attempts int           // total attempts, including the first; 1 disables retry
	Delay    time.Duration // base delay; attempt N (N >= 2) waits Delay * 2^(N-2), the first attempt does not wait
}

// DefaultRetryPolicy matches "try once, no backoff".
var DefaultRetryPolicy = RetryPolicy{Attempts: 1, Delay: 0}

// BackoffFor returns the delay before the given 1-indexed attempt.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.Delay * time.Duration(math.Pow(2, float64(attempt-2)))
}

// isRetryable reports whether err warrants another attempt: transport
// failures and 5xx only, never 4xx.
func isRetryable(err error) bool {
	var ue *UpstreamError
	if asUpstream(err, &ue) {
		return ue.Status == 0 || ue.Status >= 500
	}
	return true
}

func asUpstream(err error, target **UpstreamError) bool {
	for err != nil {
		if ue, ok := err.(*UpstreamError); ok {
			*target = ue
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// UpstreamError carries the vendor's HTTP status (0 when the failure never
// reached a status line, e.g. a dial timeout) alongside a message.
type UpstreamError struct {
	Status  int
	Message string
	cause   error
}

func (e *UpstreamError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error { return e.cause }

// ToAppErr converts an UpstreamError (or a bare transport error) into the
// §7 taxonomy: forwarded status for 4xx, 502 for 5xx and any other status,
// 504 for failures that never got a status (transport timeouts) once
// retries are exhausted.
func ToAppErr(err error) *apperr.Error {
	var ue *UpstreamError
	if asUpstream(err, &ue) {
		if ue.Status == 0 {
			return apperr.Wrap(apperr.KindUpstreamTimeout, ue.Message, err)
		}
		if ue.Status >= 400 && ue.Status < 500 {
			return apperr.Wrap(apperr.KindUpstreamError, ue.Message, err).WithStatus(ue.Status)
		}
		return apperr.Wrap(apperr.KindUpstreamError, ue.Message, err)
	}
	return apperr.Wrap(apperr.KindUpstreamTimeout, "upstream request failed", err)
}

// ExecuteWithRetry runs fn up to policy.Attempts times, backing off between
// attempts, retrying only transport errors and 5xx responses. fn must not
// have delivered any bytes to the client yet — this helper is for the
// unary path only, never the streaming one.
func ExecuteWithRetry(ctx context.Context, log zerolog.Logger, policy RetryPolicy, fn func() (*model.Response, error)) (*model.Response, error) {
	var lastErr error
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := policy.BackoffFor(attempt)
			log.Debug().Int("attempt", attempt).Dur("backoff", delay).Msg("retrying upstream call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
