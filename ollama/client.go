package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isdmx/execbox/config"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same type, so errors.Is works against the sentinels.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeInvalidResponse
	ErrTypeStart
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound   = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrInvalidResponse = &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid response from Ollama"}
	ErrStart           = &ClientError{Type: ErrTypeStart, Message: "Ollama did not start"}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client defaults
const (
	DefaultBaseURL      = "http://127.0.0.1:11434"
	DefaultTimeout      = 30 * time.Second
	DefaultProbeTimeout = 1500 * time.Millisecond
	DefaultPollAttempts = 5
	DefaultPollInterval = 300 * time.Millisecond
)

// Client talks to the Ollama HTTP API. It is safe for concurrent use.
type Client struct {
	baseURL      string
	logger       *zap.Logger
	httpClient   *http.Client
	streamClient *http.Client
	starter      Starter
	probeTimeout time.Duration
	pollAttempts int
	pollInterval time.Duration
}

// Option defines a functional option for Client
type Option func(*Client)

// WithHTTPClient sets the client used for both unary and streaming calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = hc
	}
}

// WithStarter sets how a missing daemon is launched
func WithStarter(s Starter) Option {
	return func(c *Client) {
		c.starter = s
	}
}

// WithPolling sets how often EnsureRunning probes a freshly started daemon
func WithPolling(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		c.pollAttempts = attempts
		c.pollInterval = interval
	}
}

// WithProbeTimeout bounds a single liveness probe
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.probeTimeout = d
	}
}

// NewClient creates a client for the daemon at baseURL. timeout bounds
// unary calls; streams are bounded only by their context.
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:      NormalizeBaseURL(baseURL),
		logger:       logger,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		starter:      ProcessStarter{},
		probeTimeout: DefaultProbeTimeout,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client from the ollama configuration section
func NewClientFromConfig(logger *zap.Logger, cfg *config.Config) *Client {
	return NewClient(logger, cfg.Ollama.BaseURL, time.Duration(cfg.Ollama.TimeoutSec)*time.Second)
}

// NormalizeBaseURL accepts OLLAMA_HOST style values such as "127.0.0.1:11434"
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// BaseURL returns the daemon address in use
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ClientError{Type: ErrTypeTimeout, Message: method + " " + path + " timed out", Cause: err}
		}
		return nil, &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not reachable", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp, method+" "+path)
	}
	return resp, nil
}

func statusError(resp *http.Response, op string) error {
	var upstream struct {
		Error string `json:"error"`
	}
	msg := op + " failed: " + resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&upstream); err == nil && upstream.Error != "" {
		msg = op + " failed: " + upstream.Error
	}

	errType := ErrTypeInvalidResponse
	if resp.StatusCode == http.StatusNotFound {
		errType = ErrTypeModelNotFound
	}
	return &ClientError{Type: errType, Message: msg}
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Version returns the daemon version
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/version", nil)
	if err != nil {
		return "", err
	}
	var v VersionResponse
	if err := decodeJSON(resp, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// IsUp reports whether the daemon answers a version probe
func (c *Client) IsUp(ctx context.Context) bool {
	_, err := c.Version(ctx)
	return err == nil
}

// EnsureRunning starts the daemon when it is not answering and waits briefly
// for it. started reports whether a start was attempted.
func (c *Client) EnsureRunning(ctx context.Context) (started bool, err error) {
	if c.IsUp(ctx) {
		return false, nil
	}

	c.logger.Info("starting ollama daemon", zap.String("base_url", c.baseURL))
	if err := c.starter.Start(); err != nil {
		return false, &ClientError{Type: ErrTypeStart, Message: "failed to start Ollama", Cause: err}
	}

	for range c.pollAttempts {
		select {
		case <-ctx.Done():
			return true, &ClientError{Type: ErrTypeStart, Message: "Ollama startup cancelled", Cause: ctx.Err()}
		case <-time.After(c.pollInterval):
		}
		if c.IsUp(ctx) {
			return true, nil
		}
	}

	return true, &ClientError{
		Type:    ErrTypeStart,
		Message: fmt.Sprintf("Ollama not responding after %d probes", c.pollAttempts),
	}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels returns the locally installed models
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var tags TagsResponse
	if err := decodeJSON(resp, &tags); err != nil {
		return nil, err
	}
	return tags.Models, nil
}

// ListRunning returns the models currently loaded in memory
func (c *Client) ListRunning(ctx context.Context) ([]RunningModel, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/ps", nil)
	if err != nil {
		return nil, err
	}
	var ps PsResponse
	if err := decodeJSON(resp, &ps); err != nil {
		return nil, err
	}
	return ps.Models, nil
}

// Status summarizes installed and loaded models. Both lists are fetched
// concurrently and each degrades to empty on failure.
func (c *Client) Status(ctx context.Context) Status {
	var (
		installed []Model
		running   []RunningModel
		g         errgroup.Group
	)

	g.Go(func() error {
		models, err := c.ListModels(ctx)
		if err != nil {
			c.logger.Debug("listing installed models failed", zap.Error(err))
		}
		installed = models
		return nil
	})
	g.Go(func() error {
		models, err := c.ListRunning(ctx)
		if err != nil {
			c.logger.Debug("listing loaded models failed", zap.Error(err))
		}
		running = models
		return nil
	})
	_ = g.Wait()

	st := Status{Installed: make([]string, 0, len(installed)), Loaded: make([]LoadedModel, 0, len(running))}
	for _, m := range installed {
		st.Installed = append(st.Installed, m.Name)
	}
	for _, m := range running {
		st.Loaded = append(st.Loaded, LoadedModel{Name: m.Name, Size: m.Size, Digest: m.Digest})
		st.RAMApprox += m.Size
	}
	return st
}

// HasModel reports whether name is installed
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// EnsureModel pulls name when it is not installed and waits for the pull to finish
func (c *Client) EnsureModel(ctx context.Context, name string) error {
	ok, err := c.HasModel(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	c.logger.Info("pulling missing model", zap.String("model", name))
	stream, err := c.Pull(ctx, name)
	if err != nil {
		return err
	}
	defer stream.Close()

	return DrainProgress(stream)
}

// Pull starts downloading a model and returns the NDJSON progress stream
func (c *Client) Pull(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/pull", PullRequest{Name: name, Stream: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete removes an installed model
func (c *Client) Delete(ctx context.Context, name string) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodDelete, "/api/delete", DeleteRequest{Name: name})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// =============================================================================
// CHAT
// =============================================================================

// ChatStream sends a streaming chat request and returns the NDJSON response body
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
