// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the sandbox runner to MCP clients as the
// execute_code tool. It uses the mark3labs/mcp-go library to handle the
// protocol details. Output is collected up to sandbox.max_output_kb and
// returned as text ending in the same exit marker the HTTP endpoint streams.
//
// The server is reachable over stdio, or over streamable HTTP when its
// handler is mounted on the HTTP router.
//
// Usage:
//
//	server := mcpserver.New(cfg, logger, runner)
//	err := server.ServeStdio(ctx, os.Stdin, os.Stdout)
//	// or
//	router.Handle(cfg.Server.MCPPath, server.HTTPHandler())
package mcpserver
