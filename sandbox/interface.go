package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ExecuteRequest is one unit of code to run
type ExecuteRequest struct {
	Language string
	Code     string
}

// Executor starts executions. The returned Stream must be read to EOF or closed.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (*Stream, error)
}

// CommandRunner runs engine housekeeping commands such as `docker rm -f`
// outside any execution. Output is buffered; a non-zero exit is reported
// through exitCode, not err.
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner runs housekeeping commands on the host
type RealCommandRunner struct{}

// RunCommand runs args[0] with the remaining args and waits for it
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) == 0 {
		return "", "", 0, errors.New("empty housekeeping command")
	}

	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // engine binary and container name are built by ContainerBackend
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if runErr := cmd.Run(); runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", "", 0, fmt.Errorf("%s: %w", args[0], runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return outBuf.String(), errBuf.String(), exitCode, nil
}

// FileSystem defines the file system operations needed to provision a workspace
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
