//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// applyLimits sets rlimits on a freshly started process. Children inherit them.
func applyLimits(pid int, l Limits) error {
	if l.CPUSeconds > 0 {
		rl := unix.Rlimit{Cur: l.CPUSeconds, Max: l.CPUSeconds}
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, &rl, nil); err != nil {
			return fmt.Errorf("failed to set RLIMIT_CPU: %w", err)
		}
	}
	if l.FileSizeBytes > 0 {
		rl := unix.Rlimit{Cur: l.FileSizeBytes, Max: l.FileSizeBytes}
		if err := unix.Prlimit(pid, unix.RLIMIT_FSIZE, &rl, nil); err != nil {
			return fmt.Errorf("failed to set RLIMIT_FSIZE: %w", err)
		}
	}
	return nil
}
