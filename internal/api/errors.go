package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/samplecentring-core/internal/centring"
)

// Legacy plain-text results.
const (
	bodyTrue  = "True"
	bodyFalse = "False"
)

// Error represents a structured error response. Only the JSON-only routes
// (journal, health) use it; legacy routes answer "False".
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeText writes a plain-text 200 response.
func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(body))
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// fail logs and counts a failed command, then answers "False".
func (s *Server) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.countFailure(r, action, err)
	writeText(w, bodyFalse)
}

// countFailure logs err at warn level and counts it by error kind.
func (s *Server) countFailure(r *http.Request, action string, err error) {
	kind := centring.ErrorKind(err)
	s.metrics.hardwareErrors.WithLabelValues(kind).Inc()
	s.logger.Warn("command failed",
		"action", action,
		"kind", kind,
		"error", err,
		"request_id", requestID(r),
	)
}
