// Package apperr implements the error taxonomy of spec.md §7: every error
// that can reach a client carries a machine-readable kind, the HTTP status
// it maps to, and a human message. The dispatcher is the only place that
// turns one of these into a response body.
package apperr

import "net/http"

// Kind is one of the internal error taxonomy entries from §7.
type Kind string

const (
	KindInputInvalid           Kind = "input_invalid"
	KindUnauthorized           Kind = "unauthorized"
	KindForbidden              Kind = "forbidden"
	KindAuthServiceUnavailable Kind = "auth_service_unavailable"
	KindModelNotConfigured     Kind = "model_not_configured"
	KindUpstreamError          Kind = "upstream_error"
	KindUpstreamTimeout        Kind = "upstream_timeout"
	KindPluginError            Kind = "plugin_error"
	KindInternal               Kind = "internal_error"
)

// defaultStatus is the fallback HTTP status per kind, used when nothing more
// specific (e.g. an upstream's forwarded 4xx) applies.
var defaultStatus = map[Kind]int{
	KindInputInvalid:           http.StatusBadRequest,
	KindUnauthorized:           http.StatusUnauthorized,
	KindForbidden:              http.StatusForbidden,
	KindAuthServiceUnavailable: http.StatusServiceUnavailable,
	KindModelNotConfigured:     http.StatusInternalServerError,
	KindUpstreamError:          http.StatusBadGateway,
	KindUpstreamTimeout:        http.StatusGatewayTimeout,
	KindPluginError:            http.StatusInternalServerError,
	KindInternal:               http.StatusInternalServerError,
}

// Error is the concrete error type carried on model.Context.Err and surfaced
// to the client as {"error","message","request_id"}.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with the kind's default status.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: defaultStatus[kind], Message: message}
}

// Wrap builds an Error carrying cause, using the kind's default status.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Status: defaultStatus[kind], Message: message, cause: cause}
}

// WithStatus overrides the HTTP status the dispatcher will respond with —
// used when a plugin carries its own status (e.g. basic-api-key-auth's 401).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}
