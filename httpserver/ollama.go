package httpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/ollama"
)

// ModelsResponse is the body of GET /ollama/models
type ModelsResponse struct {
	Models []ollama.Model `json:"models"`
}

// CatalogResponse is the body of GET /ollama/available
type CatalogResponse struct {
	Catalog []ollama.CatalogEntry `json:"catalog"`
}

// EnsureResponse is the body of GET /ollama/ensure
type EnsureResponse struct {
	OK      bool `json:"ok"`
	Started bool `json:"started"`
}

// OKResponse acknowledges a completed operation
type OKResponse struct {
	OK bool `json:"ok"`
}

// modelName is the body of the pull and delete routes
type modelName struct {
	Name string `json:"name"`
}

func (s *Server) handleOllamaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ollama.Status(r.Context()))
}

func (s *Server) handleOllamaModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.ollama.ListModels(r.Context())
	if err != nil {
		s.logger.Debug("listing models failed", zap.Error(err))
	}
	if models == nil {
		models = []ollama.Model{}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}

func (s *Server) handleOllamaAvailable(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CatalogResponse{Catalog: ollama.Catalog()})
}

func (s *Server) handleOllamaEnsure(w http.ResponseWriter, r *http.Request) {
	started, err := s.ollama.EnsureRunning(r.Context())
	if err != nil {
		s.logger.Warn("ollama is not available", zap.Bool("started", started), zap.Error(err))
		writeJSON(w, http.StatusGatewayTimeout, EnsureResponse{OK: false, Started: started})
		return
	}
	writeJSON(w, http.StatusOK, EnsureResponse{OK: true, Started: started})
}

func (s *Server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)

	var payload ollama.ChatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Bad payload")
		return
	}
	req, err := payload.ChatRequest()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Bad payload")
		return
	}

	ctx := r.Context()
	if err := s.ollama.EnsureModel(ctx, req.Model); err != nil {
		s.logger.Warn("model unavailable", zap.String("model", req.Model), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	body, err := s.ollama.ChatStream(ctx, req)
	if err != nil {
		s.logger.Warn("chat request failed", zap.String("model", req.Model), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer body.Close()

	s.relay(w, body, "chat")
}

func (s *Server) handleOllamaPull(w http.ResponseWriter, r *http.Request) {
	name, ok := s.decodeModelName(w, r)
	if !ok {
		return
	}

	body, err := s.ollama.Pull(r.Context(), name)
	if err != nil {
		s.logger.Warn("pull failed", zap.String("model", name), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "pull failed")
		return
	}
	defer body.Close()

	s.relay(w, body, "pull")
}

func (s *Server) handleOllamaDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := s.decodeModelName(w, r)
	if !ok {
		return
	}

	if err := s.ollama.Delete(r.Context(), name); err != nil {
		s.logger.Warn("delete failed", zap.String("model", name), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *Server) decodeModelName(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)

	var body modelName
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name required")
		return "", false
	}
	return body.Name, true
}

// relay streams an upstream NDJSON body to the client line by line
func (s *Server) relay(w http.ResponseWriter, body io.Reader, op string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() { _ = rc.Flush() }

	if err := ollama.RelayNDJSON(w, body, flush); err != nil {
		s.logger.Debug("ndjson relay aborted", zap.String("op", op), zap.Error(err))
	}
}
