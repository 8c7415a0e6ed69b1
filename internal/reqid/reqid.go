// Package reqid generates and propagates the per-request identifier carried
// through the whole pipeline and back to the caller as x-request-id.
package reqid

import (
	"net/http"

	"github.com/google/uuid"
)

// Header is the inbound/outbound header name honored for request IDs.
const Header = "X-Request-Id"

// FromRequest returns the caller's own x-request-id if it supplied one,
// otherwise a fresh UUIDv4 — the dispatcher always has an ID to log and to
// echo back, whether or not the caller provided one.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	return New()
}

// New generates a fresh request ID.
func New() string {
	return uuid.NewString()
}
