//go:build !windows

package ollama

import (
	"os/exec"
	"syscall"
)

// detach gives the daemon its own process group so signals to ours skip it
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
