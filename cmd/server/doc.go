// Package main is the entry point for the execbox server.
//
// The execbox server runs short, untrusted programs (bash, Python, Node) in
// throwaway sandboxes and streams their output back over HTTP, or serves the
// same runner as an MCP tool on stdio. It also proxies a local Ollama daemon
// for the chat console.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
//
// Usage:
//
//	execbox-server [--config config.yaml]
//	execbox-server config    # print the effective configuration
package main
