package ollama

import (
	"fmt"
	"os"
	"os/exec"
)

// Starter launches the daemon in the background
type Starter interface {
	Start() error
}

// ProcessStarter runs "ollama serve" detached from the server's process group
type ProcessStarter struct {
	// Path overrides the PATH lookup of the ollama binary
	Path string
}

// Start spawns the daemon and releases it; it never waits for readiness
func (p ProcessStarter) Start() error {
	path := p.Path
	if path == "" {
		found, err := exec.LookPath("ollama")
		if err != nil {
			return fmt.Errorf("ollama not found in PATH: %w", err)
		}
		path = found
	}

	cmd := exec.Command(path, "serve") //nolint:gosec // fixed binary, no user input
	cmd.Env = os.Environ()
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", path, err)
	}
	return cmd.Process.Release()
}
