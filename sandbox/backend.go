package sandbox

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Backend turns a runtime and a provisioned workspace into the process to spawn
type Backend interface {
	Name() string
	// Command returns the argv and environment of the process to start
	Command(rt Runtime, ws *Workspace, executionID string) (argv, env []string)
	// Isolated reports whether the process already runs behind its own
	// resource limits, in which case host rlimits are not applied.
	Isolated() bool
	// Cleanup releases anything the killed process may have left running
	Cleanup(ctx context.Context, executionID string) error
}

// LocalBackend runs interpreters directly on the host
type LocalBackend struct{}

func (LocalBackend) Name() string { return "local" }

func (LocalBackend) Isolated() bool { return false }

func (LocalBackend) Command(rt Runtime, ws *Workspace, _ string) (argv, env []string) {
	argv = make([]string, 0, len(rt.Args)+2)
	argv = append(argv, rt.Command)
	argv = append(argv, rt.Args...)
	argv = append(argv, ws.SourcePath)

	env = append(os.Environ(), rt.Env...)
	return argv, env
}

func (LocalBackend) Cleanup(context.Context, string) error { return nil }

// Container defaults
const (
	ContainerWorkdir   = "/workspace"
	ContainerPrefix    = "execbox-"
	DefaultPidsLimit   = 128
	DefaultContainerMB = 512
)

// ContainerBackend runs each execution in a throwaway docker or podman container
type ContainerBackend struct {
	engine    string
	memoryMB  int
	pidsLimit int
	network   bool
	cmdRunner CommandRunner
}

// ContainerOption defines a functional option for ContainerBackend
type ContainerOption func(*ContainerBackend)

// WithContainerCommandRunner sets the CommandRunner used for container cleanup
func WithContainerCommandRunner(cmdRunner CommandRunner) ContainerOption {
	return func(c *ContainerBackend) {
		c.cmdRunner = cmdRunner
	}
}

// WithContainerMemory sets the memory limit passed to the engine
func WithContainerMemory(mb int) ContainerOption {
	return func(c *ContainerBackend) {
		c.memoryMB = mb
	}
}

// WithContainerNetwork attaches containers to the default bridge network
func WithContainerNetwork(enabled bool) ContainerOption {
	return func(c *ContainerBackend) {
		c.network = enabled
	}
}

// WithPidsLimit caps the number of processes inside a container
func WithPidsLimit(n int) ContainerOption {
	return func(c *ContainerBackend) {
		c.pidsLimit = n
	}
}

// NewContainerBackend creates a backend driving the given engine CLI ("docker" or "podman")
func NewContainerBackend(engine string, opts ...ContainerOption) *ContainerBackend {
	c := &ContainerBackend{
		engine:    engine,
		memoryMB:  DefaultContainerMB,
		pidsLimit: DefaultPidsLimit,
		cmdRunner: &RealCommandRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContainerName is the engine-side name of an execution's container
func ContainerName(executionID string) string {
	return ContainerPrefix + executionID
}

func (c *ContainerBackend) Name() string { return c.engine }

func (*ContainerBackend) Isolated() bool { return true }

func (c *ContainerBackend) Command(rt Runtime, ws *Workspace, executionID string) (argv, env []string) {
	network := "none"
	if c.network {
		network = "bridge"
	}

	argv = []string{
		c.engine, "run",
		"--rm",
		"--name", ContainerName(executionID),
		"--network", network,
		"--memory", fmt.Sprintf("%dm", c.memoryMB),
		"--pids-limit", strconv.Itoa(c.pidsLimit),
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"-v", ws.Dir + ":" + ContainerWorkdir,
		"-w", ContainerWorkdir,
	}
	for _, kv := range rt.Env {
		argv = append(argv, "-e", kv)
	}

	argv = append(argv, rt.Image, rt.Command)
	argv = append(argv, rt.Args...)
	argv = append(argv, ContainerWorkdir+"/"+ws.SourceName)

	// the engine CLI needs DOCKER_HOST, XDG_RUNTIME_DIR and friends
	return argv, os.Environ()
}

// Cleanup force-removes the container; killing the engine CLI does not stop it
func (c *ContainerBackend) Cleanup(ctx context.Context, executionID string) error {
	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.engine, "rm", "-f", ContainerName(executionID)})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	if exitCode != 0 && !strings.Contains(stderr, "No such container") && !strings.Contains(stderr, "no such container") {
		return fmt.Errorf("%s rm exited with %d: %s", c.engine, exitCode, strings.TrimSpace(stderr))
	}
	return nil
}
