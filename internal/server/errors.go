package server

import (
	"encoding/json"
	"net/http"

	"github.com/howard-nolan/llmrouter/internal/apperr"
)

// errorBody is the §7 wire shape for every error response the gateway
// sends: a machine-readable kind, a human message, and the request ID so
// the caller can correlate it with gateway-side logs.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// writeAppErr renders ae as the standard error response. It sets headers and
// the status code, so it is only usable before the response has started (the
// streaming path never calls this once the first chunk has gone out).
func writeAppErr(w http.ResponseWriter, requestID string, ae *apperr.Error) {
	if ae == nil {
		ae = apperr.New(apperr.KindInternal, "unknown error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", requestID)
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:     string(ae.Kind),
		Message:   ae.Error(),
		RequestID: requestID,
	})
}
