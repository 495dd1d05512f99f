package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/execbox/httpserver"
	"github.com/isdmx/execbox/sandbox"
)

func TestLanguages(t *testing.T) {
	srv := newTestServer(t, &stubSandbox{registry: testRegistry(t)})

	rec := do(t, srv.Handler(), http.MethodGet, "/languages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[httpserver.LanguagesResponse](t, rec)
	require.Len(t, resp.Runtimes, 2)
	assert.Equal(t, httpserver.RuntimeInfo{Name: "echo", Command: "cat", Extension: ".txt", Aliases: []string{"cat"}}, resp.Runtimes[0])
	assert.Equal(t, "shell", resp.Runtimes[1].Name)
	assert.NotNil(t, resp.Runtimes[1].Aliases)
}

func TestLanguagesDefaultRegistry(t *testing.T) {
	srv := newTestServer(t, &stubSandbox{registry: sandbox.DefaultRegistry()})

	rec := do(t, srv.Handler(), http.MethodGet, "/languages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	for _, rt := range decode[httpserver.LanguagesResponse](t, rec).Runtimes {
		names = append(names, rt.Name)
	}
	assert.Equal(t, []string{"bash", "node", "python"}, names)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubSandbox{registry: testRegistry(t), active: 3})

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, httpserver.HealthResponse{Status: "ok", ActiveExecutions: 3}, decode[httpserver.HealthResponse](t, rec))
}

func TestUnknownRoutes(t *testing.T) {
	srv := newTestServer(t, &stubSandbox{registry: testRegistry(t)})

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv.Handler(), http.MethodGet, "/exec", nil).Code)
	// the chat proxy is only mounted with a client
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/ollama/status", nil).Code)
}

func TestMCPMount(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mcp"))
	})

	t.Run("Mounted", func(t *testing.T) {
		srv := newTestServer(t, &stubSandbox{registry: testRegistry(t)}, httpserver.WithMCPHandler("/mcp", mcp))
		rec := do(t, srv.Handler(), http.MethodPost, "/mcp", "{}")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "mcp", rec.Body.String())
	})

	t.Run("Absent", func(t *testing.T) {
		srv := newTestServer(t, &stubSandbox{registry: testRegistry(t)})
		rec := do(t, srv.Handler(), http.MethodPost, "/mcp", "{}")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStartShutdown(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, &stubSandbox{registry: testRegistry(t)}, httpserver.WithAddr("127.0.0.1:0"))

	require.NoError(t, srv.Start(ctx))
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	var health httpserver.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "ok", health.Status)

	require.NoError(t, srv.Shutdown(ctx))

	_, err = http.Get("http://" + srv.Addr() + "/healthz")
	assert.Error(t, err)
}

func TestStartBindError(t *testing.T) {
	ctx := context.Background()
	first := newTestServer(t, &stubSandbox{registry: testRegistry(t)}, httpserver.WithAddr("127.0.0.1:0"))
	require.NoError(t, first.Start(ctx))
	t.Cleanup(func() { _ = first.Shutdown(ctx) })

	second := newTestServer(t, &stubSandbox{registry: testRegistry(t)}, httpserver.WithAddr(first.Addr()))
	err := second.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.NoError(t, second.Shutdown(ctx))
}
