package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/execbox/httpserver"
	"github.com/isdmx/execbox/sandbox"
)

// stubSandbox fails every execution with err
type stubSandbox struct {
	err      error
	registry *sandbox.Registry
	active   int
}

func (s *stubSandbox) Execute(context.Context, sandbox.ExecuteRequest) (*sandbox.Stream, error) {
	return nil, s.err
}

func (s *stubSandbox) Registry() *sandbox.Registry { return s.registry }

func (s *stubSandbox) ActiveCount() int { return s.active }

func (*stubSandbox) Timeout() time.Duration { return time.Second }

// testRegistry holds runtimes every unix host has: cat echoes the code back,
// sh runs it as a script.
func testRegistry(t *testing.T) *sandbox.Registry {
	t.Helper()
	r, err := sandbox.NewRegistry(
		sandbox.Runtime{Name: "echo", Command: "cat", Extension: ".txt", Aliases: []string{"cat"}},
		sandbox.Runtime{Name: "shell", Command: "sh", Extension: ".sh", Executable: true},
	)
	require.NoError(t, err)
	return r
}

func newTestRunner(t *testing.T, opts ...sandbox.RunnerOption) (*sandbox.Runner, string) {
	t.Helper()
	root := t.TempDir()
	opts = append([]sandbox.RunnerOption{
		sandbox.WithTempDir(root),
		sandbox.WithWaitDelay(200 * time.Millisecond),
	}, opts...)
	return sandbox.NewRunner(zaptest.NewLogger(t), testRegistry(t), opts...), root
}

func newTestServer(t *testing.T, sb httpserver.Sandbox, opts ...httpserver.Option) *httpserver.Server {
	t.Helper()
	return httpserver.New(zaptest.NewLogger(t), sb, opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
