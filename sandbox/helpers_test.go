package sandbox

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu       sync.Mutex
	calls    [][]string
	stdout   string
	stderr   string
	exitCode int
	err      error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	return m.stdout, m.stderr, m.exitCode, m.err
}

func (m *MockCommandRunner) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mu            sync.Mutex
	mkdirTempErr  error
	writeFileErr  error
	writeFileData map[string][]byte
	writeFileMode map[string]os.FileMode
	removed       []string
}

func (m *MockFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	if m.mkdirTempErr != nil {
		return "", m.mkdirTempErr
	}
	return dir + "/" + strings.Replace(pattern, "*", "mock", 1), nil
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFileErr != nil {
		return m.writeFileErr
	}
	if m.writeFileData == nil {
		m.writeFileData = make(map[string][]byte)
		m.writeFileMode = make(map[string]os.FileMode)
	}
	m.writeFileData[filename] = data
	m.writeFileMode[filename] = perm
	return nil
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, path)
	return nil
}

// testRegistry holds runtimes every unix host has: cat echoes the submitted
// code back, sh runs it as a script.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Runtime{Name: "echo", Command: "cat", Extension: ".txt", Aliases: []string{"cat"}},
		Runtime{Name: "shell", Command: "sh", Extension: ".sh", Executable: true, Env: []string{"EXECBOX_TEST=1"}},
		Runtime{Name: "missing", Command: "execbox-no-such-interpreter", Extension: ".x"},
	)
	require.NoError(t, err)
	return r
}

func newTestRunner(t *testing.T, opts ...RunnerOption) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	opts = append([]RunnerOption{WithTempDir(root), WithWaitDelay(200 * time.Millisecond)}, opts...)
	return NewRunner(zaptest.NewLogger(t), testRegistry(t), opts...), root
}

func readAll(t *testing.T, s *Stream) string {
	t.Helper()
	out, err := io.ReadAll(s)
	require.NoError(t, err)
	return string(out)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace left behind in %s", dir)
}
