package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/sandbox"
)

// ErrorResponse is the JSON body of every non-streaming error
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes data with the given status
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONError writes an ErrorResponse
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeText writes a plain-text body ending in a newline
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message + "\n"))
}

// writeExecError maps an error returned by Execute to a plain-text response.
// Nothing has been written to w yet when it is called.
func (s *Server) writeExecError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sandbox.ErrValidation):
		writeText(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sandbox.ErrBusy):
		w.Header().Set("Retry-After", strconv.Itoa(s.retryAfterSeconds()))
		writeText(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, sandbox.ErrClosed):
		writeText(w, http.StatusServiceUnavailable, err.Error())
	case r.Context().Err() != nil:
		// the caller left while queued, nobody reads the answer
		s.logger.Debug("client gone before execution started", zap.Error(err))
	default:
		s.logger.Error("execution could not be started", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "internal server error")
	}
}
