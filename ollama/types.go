package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
)

// Message is a single chat turn
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest is the body of POST /api/chat. Messages are kept raw so that
// fields this package does not know about reach the daemon untouched.
type ChatRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
	Options  map[string]any    `json:"options,omitempty"`
	Stream   bool              `json:"stream"`
}

// ChatPayload is what a browser client posts to the chat proxy
type ChatPayload struct {
	Model    string          `json:"model"`
	Messages json.RawMessage `json:"messages"`
	Options  map[string]any  `json:"options"`
	System   string          `json:"system"`
}

// ErrBadPayload is returned for chat payloads without a model or a messages array
var ErrBadPayload = errors.New("bad payload")

// ChatRequest validates the payload and builds the upstream request: the
// system prompt goes first and server defaults sit under client options.
func (p ChatPayload) ChatRequest() (ChatRequest, error) {
	trimmed := bytes.TrimSpace(p.Messages)
	if p.Model == "" || len(trimmed) == 0 || trimmed[0] != '[' {
		return ChatRequest{}, ErrBadPayload
	}

	var messages []json.RawMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return ChatRequest{}, ErrBadPayload
	}

	if p.System != "" {
		system, err := json.Marshal(Message{Role: "system", Content: p.System})
		if err != nil {
			return ChatRequest{}, err
		}
		messages = append([]json.RawMessage{system}, messages...)
	}

	return ChatRequest{
		Model:    p.Model,
		Messages: messages,
		Options:  MergeOptions(p.Options),
		Stream:   true,
	}, nil
}

// DefaultOptions are the sampling options applied when a client sends none
func DefaultOptions() map[string]any {
	return map[string]any{
		"temperature":    0.25,
		"top_p":          0.9,
		"top_k":          40,
		"repeat_penalty": 1.1,
		"num_predict":    512,
	}
}

// MergeOptions overlays client options on DefaultOptions
func MergeOptions(client map[string]any) map[string]any {
	merged := DefaultOptions()
	maps.Copy(merged, client)
	return merged
}

// PullRequest is the body of POST /api/pull
type PullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// DeleteRequest is the body of DELETE /api/delete
type DeleteRequest struct {
	Name string `json:"name"`
}

// VersionResponse is returned by GET /api/version
type VersionResponse struct {
	Version string `json:"version"`
}

// Model is an installed model as listed by GET /api/tags
type Model struct {
	Name       string          `json:"name"`
	Model      string          `json:"model,omitempty"`
	ModifiedAt string          `json:"modified_at,omitempty"`
	Size       int64           `json:"size"`
	Digest     string          `json:"digest,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// TagsResponse is returned by GET /api/tags
type TagsResponse struct {
	Models []Model `json:"models"`
}

// RunningModel is a loaded model as listed by GET /api/ps
type RunningModel struct {
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	Size      int64  `json:"size"`
	SizeVRAM  int64  `json:"size_vram,omitempty"`
	Digest    string `json:"digest"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// PsResponse is returned by GET /api/ps
type PsResponse struct {
	Models []RunningModel `json:"models"`
}

// LoadedModel is the status view of a running model
type LoadedModel struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Status summarizes the daemon's models. RAMApprox is the sum of loaded model sizes in bytes.
type Status struct {
	Installed []string      `json:"installed"`
	Loaded    []LoadedModel `json:"loaded"`
	RAMApprox int64         `json:"ramApprox"`
}

// CatalogEntry is a suggested model for download
type CatalogEntry struct {
	Name   string `json:"name"`
	Family string `json:"family"`
	Task   string `json:"task"`
}

// Catalog returns the models suggested for download
func Catalog() []CatalogEntry {
	return []CatalogEntry{
		{Name: "llama3.2:1b", Family: "llama", Task: "chat"},
		{Name: "llama3.2:3b", Family: "llama", Task: "chat"},
		{Name: "llama3.1:8b", Family: "llama", Task: "chat"},
		{Name: "mistral:7b-instruct", Family: "mistral", Task: "chat"},
		{Name: "qwen2.5:7b-instruct", Family: "qwen", Task: "chat"},
		{Name: "deepseek-coder:6.7b", Family: "code", Task: "code"},
		{Name: "phi3:mini-4k-instruct-q4", Family: "phi", Task: "chat"},
		{Name: "llava:7b", Family: "vision", Task: "vision"},
	}
}
