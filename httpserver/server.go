package httpserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/ollama"
	"github.com/isdmx/execbox/sandbox"
)

// Server defaults
const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultMaxRequestBytes = 512 * 1024
	DefaultRetryAfter      = 5 * time.Second
	DefaultWriteSlack      = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 60 * time.Second
)

// Sandbox is the part of the runner the HTTP layer depends on
type Sandbox interface {
	sandbox.Executor
	Registry() *sandbox.Registry
	ActiveCount() int
	Timeout() time.Duration
}

// Server routes HTTP requests to the sandbox runner and the Ollama proxy
type Server struct {
	logger          *zap.Logger
	sandbox         Sandbox
	ollama          *ollama.Client
	mcpPath         string
	mcpHandler      http.Handler
	addr            string
	maxRequestBytes int64
	retryAfter      time.Duration
	writeSlack      time.Duration

	router     *chi.Mux
	httpServer *http.Server
	serveErr   chan error
}

// Option defines a functional option for Server
type Option func(*Server)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithOllama mounts the chat proxy routes under /ollama
func WithOllama(client *ollama.Client) Option {
	return func(s *Server) {
		s.ollama = client
	}
}

// WithMCPHandler mounts an MCP transport at path
func WithMCPHandler(path string, handler http.Handler) Option {
	return func(s *Server) {
		s.mcpPath = path
		s.mcpHandler = handler
	}
}

// WithMaxRequestBytes caps the size of JSON request bodies
func WithMaxRequestBytes(n int64) Option {
	return func(s *Server) {
		s.maxRequestBytes = n
	}
}

// WithWriteSlack sets how long past the execution timeout an exec response
// may take to reach the client
func WithWriteSlack(d time.Duration) Option {
	return func(s *Server) {
		s.writeSlack = d
	}
}

// WithRetryAfter sets the Retry-After hint sent with 503 responses
func WithRetryAfter(d time.Duration) Option {
	return func(s *Server) {
		s.retryAfter = d
	}
}

// New creates a Server and builds its routes
func New(logger *zap.Logger, sb Sandbox, opts ...Option) *Server {
	s := &Server{
		logger:          logger,
		sandbox:         sb,
		addr:            DefaultAddr,
		maxRequestBytes: DefaultMaxRequestBytes,
		retryAfter:      DefaultRetryAfter,
		writeSlack:      DefaultWriteSlack,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()
	return s
}

// NewFromConfig creates a Server from the server section of cfg. llm and
// mcp may be nil when the corresponding feature is disabled.
func NewFromConfig(logger *zap.Logger, cfg *config.Config, sb Sandbox, llm *ollama.Client, mcp http.Handler) *Server {
	opts := []Option{
		WithAddr(cfg.Addr()),
		WithMaxRequestBytes(int64(cfg.Server.MaxRequestKB) * 1024),
		WithRetryAfter(max(cfg.QueueTimeout(), time.Second)),
	}
	if llm != nil {
		opts = append(opts, WithOllama(llm))
	}
	if mcp != nil {
		opts = append(opts, WithMCPHandler(cfg.Server.MCPPath, mcp))
	}
	return New(logger, sb, opts...)
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Post("/exec", s.handleExec)
	r.Post("/api/exec", s.handleExec)
	r.Get("/languages", s.handleLanguages)
	r.Get("/healthz", s.handleHealth)

	if s.ollama != nil {
		r.Route("/ollama", func(r chi.Router) {
			r.Get("/status", s.handleOllamaStatus)
			r.Get("/models", s.handleOllamaModels)
			r.Get("/available", s.handleOllamaAvailable)
			r.Get("/ensure", s.handleOllamaEnsure)
			r.Post("/chat", s.handleOllamaChat)
			r.Post("/pull", s.handleOllamaPull)
			r.Post("/delete", s.handleOllamaDelete)
		})
	}

	if s.mcpHandler != nil {
		r.Handle(s.mcpPath, s.mcpHandler)
	}

	return r
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address, resolved to the bound port once Start succeeds
func (s *Server) Addr() string {
	return s.addr
}

// Start binds the listen address and serves in the background. Bind errors
// are returned directly; later serve errors are reported by Shutdown.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// no WriteTimeout: exec responses stream for as long as the sandbox timeout allows
		ErrorLog: zap.NewStdLog(s.logger.Named("http")),
	}
	s.serveErr = make(chan error, 1)

	s.logger.Info("http server listening", zap.String("addr", s.addr))

	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}()

	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-s.serveErr; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) retryAfterSeconds() int {
	return max(int(math.Ceil(s.retryAfter.Seconds())), 1)
}
