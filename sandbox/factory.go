package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
)

// BytesPerMB converts configured megabytes
const BytesPerMB = 1024 * 1024

// NewBackend creates the spawning backend named by the sandbox configuration
func NewBackend(cfg config.SandboxConfig) (Backend, error) {
	switch cfg.Backend {
	case "docker", "podman":
		return NewContainerBackend(cfg.Backend,
			WithContainerMemory(cfg.MemoryMB),
			WithContainerNetwork(cfg.NetworkEnabled),
		), nil
	case "local":
		if !cfg.EnableLocalBackend {
			return nil, fmt.Errorf("local backend is disabled")
		}
		return LocalBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// NewRunnerFromConfig creates a Runner from the application configuration
func NewRunnerFromConfig(logger *zap.Logger, cfg *config.Config) (*Runner, error) {
	registry, err := RegistryFromConfig(cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("invalid languages: %w", err)
	}

	backend, err := NewBackend(cfg.Sandbox)
	if err != nil {
		return nil, err
	}

	return NewRunner(logger, registry,
		WithBackend(backend),
		WithTempDir(cfg.Sandbox.TempDir),
		WithTimeout(cfg.GetTimeout()),
		WithWaitDelay(cfg.WaitDelay()),
		WithMaxConcurrent(cfg.Sandbox.MaxConcurrent),
		WithQueueTimeout(cfg.QueueTimeout()),
		WithMaxFileSize(uint64(cfg.Sandbox.MaxFileSizeMB)*BytesPerMB), //nolint:gosec // validated non-negative
	), nil
}
