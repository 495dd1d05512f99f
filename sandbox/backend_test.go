package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendCommand(t *testing.T) {
	rt := Runtime{Name: "node", Command: "node", Args: []string{"--no-deprecation"}, Extension: ".mjs", Env: []string{"NODE_NO_WARNINGS=1"}}
	ws := &Workspace{Dir: "/tmp/execbox-1", SourceName: "f.mjs", SourcePath: "/tmp/execbox-1/f.mjs"}

	argv, env := LocalBackend{}.Command(rt, ws, "id")

	assert.Equal(t, []string{"node", "--no-deprecation", "/tmp/execbox-1/f.mjs"}, argv)
	require.NotEmpty(t, env)
	assert.Equal(t, "NODE_NO_WARNINGS=1", env[len(env)-1])
	assert.False(t, LocalBackend{}.Isolated())
	assert.NoError(t, LocalBackend{}.Cleanup(context.Background(), "id"))
}

func TestContainerBackendCommand(t *testing.T) {
	rt := Runtime{
		Name:      "python",
		Command:   "python3",
		Extension: ".py",
		Image:     "python:3.12-slim",
		Env:       []string{"PYTHONUNBUFFERED=1"},
	}
	ws := &Workspace{Dir: "/tmp/execbox-1", SourceName: "f.py", SourcePath: "/tmp/execbox-1/f.py"}

	t.Run("Defaults", func(t *testing.T) {
		backend := NewContainerBackend("docker")
		argv, _ := backend.Command(rt, ws, "abc")

		assert.Equal(t, []string{
			"docker", "run",
			"--rm",
			"--name", "execbox-abc",
			"--network", "none",
			"--memory", "512m",
			"--pids-limit", "128",
			"--security-opt", "no-new-privileges:true",
			"--cap-drop", "ALL",
			"-v", "/tmp/execbox-1:/workspace",
			"-w", "/workspace",
			"-e", "PYTHONUNBUFFERED=1",
			"python:3.12-slim", "python3", "/workspace/f.py",
		}, argv)
		assert.Equal(t, "docker", backend.Name())
		assert.True(t, backend.Isolated())
	})

	t.Run("Options", func(t *testing.T) {
		backend := NewContainerBackend("podman",
			WithContainerMemory(256),
			WithContainerNetwork(true),
			WithPidsLimit(16),
		)
		argv, _ := backend.Command(rt, ws, "abc")

		assert.Equal(t, "podman", argv[0])
		assert.Contains(t, argv, "256m")
		assert.Contains(t, argv, "bridge")
		assert.Contains(t, argv, "16")
		assert.NotContains(t, argv, "none")
	})
}

func TestContainerBackendCleanup(t *testing.T) {
	t.Run("RemovesContainer", func(t *testing.T) {
		runner := &MockCommandRunner{}
		backend := NewContainerBackend("podman", WithContainerCommandRunner(runner))

		require.NoError(t, backend.Cleanup(context.Background(), "abc"))
		assert.Equal(t, [][]string{{"podman", "rm", "-f", "execbox-abc"}}, runner.Calls())
	})

	t.Run("AlreadyGone", func(t *testing.T) {
		runner := &MockCommandRunner{exitCode: 1, stderr: "Error: No such container: execbox-abc"}
		backend := NewContainerBackend("docker", WithContainerCommandRunner(runner))

		assert.NoError(t, backend.Cleanup(context.Background(), "abc"))
	})

	t.Run("EngineFailure", func(t *testing.T) {
		runner := &MockCommandRunner{exitCode: 125, stderr: "permission denied"}
		backend := NewContainerBackend("docker", WithContainerCommandRunner(runner))

		err := backend.Cleanup(context.Background(), "abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
	})

	t.Run("EngineMissing", func(t *testing.T) {
		runner := &MockCommandRunner{err: errors.New("executable file not found")}
		backend := NewContainerBackend("docker", WithContainerCommandRunner(runner))

		assert.Error(t, backend.Cleanup(context.Background(), "abc"))
	})
}
