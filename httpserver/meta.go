package httpserver

import "net/http"

// RuntimeInfo describes one canonical runtime in GET /languages
type RuntimeInfo struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	Extension string   `json:"extension"`
	Aliases   []string `json:"aliases"`
}

// LanguagesResponse is the body of GET /languages
type LanguagesResponse struct {
	Runtimes []RuntimeInfo `json:"runtimes"`
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status           string `json:"status"`
	ActiveExecutions int    `json:"active_executions"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	runtimes := s.sandbox.Registry().Runtimes()

	resp := LanguagesResponse{Runtimes: make([]RuntimeInfo, 0, len(runtimes))}
	for _, rt := range runtimes {
		aliases := rt.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		resp.Runtimes = append(resp.Runtimes, RuntimeInfo{
			Name:      rt.Name,
			Command:   rt.Command,
			Extension: rt.Extension,
			Aliases:   aliases,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", ActiveExecutions: s.sandbox.ActiveCount()})
}
