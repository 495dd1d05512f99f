//go:build windows

package sandbox

import (
	"os"
	"os/exec"
)

// Windows has no process groups to signal; exec.CommandContext kills the
// direct child only.
func configureProcess(*exec.Cmd) {}

func killProcessGroup(*os.Process) error { return nil }
