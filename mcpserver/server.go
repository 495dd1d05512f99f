package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/sandbox"
)

// Server identity reported to MCP clients
const (
	ServerName    = "execbox"
	ServerVersion = "1.0.0"
	ToolName      = "execute_code"
)

// Sandbox is the part of the runner the MCP tool depends on
type Sandbox interface {
	sandbox.Executor
	Registry() *sandbox.Registry
}

// MCPServer represents the MCP server
type MCPServer struct {
	logger         *zap.Logger
	sandbox        Sandbox
	maxOutputBytes int
	mcpServer      *server.MCPServer
}

// New creates a new MCPServer with the execute_code tool registered
func New(cfg *config.Config, logger *zap.Logger, sb Sandbox) *MCPServer {
	s := &MCPServer{
		logger:         logger,
		sandbox:        sb,
		maxOutputBytes: cfg.Sandbox.MaxOutputKB * 1024,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.String("server.addr", cfg.Addr()),
		zap.Bool("server.mcp_enabled", cfg.Server.MCPEnabled),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.max_concurrent", cfg.Sandbox.MaxConcurrent),
		zap.Int("sandbox.max_output_kb", cfg.Sandbox.MaxOutputKB),
		zap.Strings("languages", sb.Registry().Names()),
	)

	s.mcpServer = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerExecuteCodeTool()

	return s
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.NewTool(ToolName,
		mcp.WithDescription("Run a short program in a throwaway sandbox and return its combined stdout and stderr, "+
			"followed by an [exit <code>] line. The exit code is empty when the program was killed."),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Runtime language or alias"),
			mcp.Enum(s.sandbox.Registry().Names()...),
		),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Complete source code, passed to the interpreter as a file"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	language, err := request.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := sandbox.Collect(ctx, s.sandbox, sandbox.ExecuteRequest{Language: language, Code: code}, s.maxOutputBytes)
	if err != nil {
		if errors.Is(err, sandbox.ErrValidation) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.logger.Warn("tool execution failed", zap.String("language", language), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	s.logger.Info("tool execution completed",
		zap.String("execution_id", result.ExecutionID),
		zap.String("language", result.Language),
		zap.Int("output_len", len(result.Output)),
		zap.Bool("truncated", result.Truncated))

	return mcp.NewToolResultText(result.Output), nil
}

// ServeStdio serves the protocol on in and out until ctx is done or in is closed
func (s *MCPServer) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server on stdio")
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger.Named("mcp")))
	return stdio.Listen(ctx, in, out)
}

// HTTPHandler returns the streamable HTTP transport, ready to mount on a router
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
