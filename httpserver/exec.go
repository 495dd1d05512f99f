package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/sandbox"
)

// ExecutionIDHeader carries the id of the execution a response streams
const ExecutionIDHeader = "X-Execution-ID"

const copyBufferSize = 32 * 1024

// ExecRequest is the body of POST /exec. Lang may be omitted.
type ExecRequest struct {
	Lang string `json:"lang"`
	Code string `json:"code"`
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)

	var req ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusBadRequest, "request body too large")
			return
		}
		writeText(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// the request context parents the execution, so a client that hangs up
	// kills the process
	stream, err := s.sandbox.Execute(r.Context(), sandbox.ExecuteRequest{Language: req.Lang, Code: req.Code})
	if err != nil {
		s.writeExecError(w, r, err)
		return
	}
	defer stream.Close()

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set(ExecutionIDHeader, stream.ID())
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// a client that stops reading must not outlive the execution by much
	deadline := time.Now().Add(s.sandbox.Timeout() + s.writeSlack)
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("failed to set write deadline", zap.String("execution_id", stream.ID()), zap.Error(err))
	}

	if err := copyFlushing(w, rc, stream); err != nil {
		s.logger.Debug("exec stream aborted",
			zap.String("execution_id", stream.ID()),
			zap.Error(err))
	}
}

// copyFlushing copies src to w and flushes after every chunk so output
// reaches the client as the process produces it.
func copyFlushing(w io.Writer, rc *http.ResponseController, src io.Reader) error {
	buf := make([]byte, copyBufferSize)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
