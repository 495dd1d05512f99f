package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/execbox/httpserver"
)

func init() {
	color.NoColor = true
}

func TestSplitMarker(t *testing.T) {
	tests := []struct {
		name   string
		tail   string
		output string
		code   *int
		ok     bool
	}{
		{name: "ExitZero", tail: "hello\n[exit 0]\n", output: "hello", code: intPtr(0), ok: true},
		{name: "TrailingNewlineKept", tail: "hello\n\n[exit 3]\n", output: "hello\n", code: intPtr(3), ok: true},
		{name: "Killed", tail: "[timeout after 15s]\n[exit ]\n", output: "[timeout after 15s]", ok: true},
		{name: "MarkerOnly", tail: "\n[exit 1]\n", output: "", code: intPtr(1), ok: true},
		{name: "NoMarker", tail: "cut off mid-line", output: "cut off mid-line"},
		{name: "MarkerNotLast", tail: "\n[exit 0]\nmore", output: "\n[exit 0]\nmore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, code, ok := splitMarker([]byte(tt.tail))
			assert.Equal(t, tt.output, string(output))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRelayHoldsBackTail(t *testing.T) {
	body := strings.Repeat("x", 100) + "\n[exit 0]\n"
	var out bytes.Buffer

	tail, err := relay(&out, iotest.OneByteReader(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Len(t, tail, markerHoldback)
	assert.Equal(t, body, out.String()+string(tail))
}

func TestRelayShortStream(t *testing.T) {
	var out bytes.Buffer
	tail, err := relay(&out, strings.NewReader("\n[exit 0]\n"))
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Equal(t, "\n[exit 0]\n", string(tail))
}

func fakeExecServer(t *testing.T, status int, body string) (*httptest.Server, *httpserver.ExecRequest) {
	t.Helper()
	var got httpserver.ExecRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exec", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClientRun(t *testing.T) {
	ctx := context.Background()

	t.Run("ReturnsRemoteExitCode", func(t *testing.T) {
		srv, got := fakeExecServer(t, http.StatusOK, "line one\nline two\n\n[exit 3]\n")
		var stdout, stderr bytes.Buffer

		code, err := newClient(srv.URL+"/").Run(ctx, "python", "print(1)", &stdout, &stderr)
		require.NoError(t, err)
		assert.Equal(t, 3, code)
		assert.Equal(t, "line one\nline two\n", stdout.String())
		assert.Equal(t, "\n[exit 3]\n", stderr.String())
		assert.Equal(t, httpserver.ExecRequest{Lang: "python", Code: "print(1)"}, *got)
	})

	t.Run("KilledIsOne", func(t *testing.T) {
		srv, _ := fakeExecServer(t, http.StatusOK, "partial\n[timeout after 15s]\n[exit ]\n")
		var stdout, stderr bytes.Buffer

		code, err := newClient(srv.URL).Run(ctx, "bash", "sleep 99", &stdout, &stderr)
		require.NoError(t, err)
		assert.Equal(t, 1, code)
		assert.Equal(t, "partial\n[timeout after 15s]", stdout.String())
		assert.Equal(t, "\n[exit ]\n", stderr.String())
	})

	t.Run("Rejected", func(t *testing.T) {
		srv, _ := fakeExecServer(t, http.StatusBadRequest, "code must not be empty\n")

		_, err := newClient(srv.URL).Run(ctx, "bash", "", io.Discard, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "code must not be empty")
	})

	t.Run("MissingMarker", func(t *testing.T) {
		srv, _ := fakeExecServer(t, http.StatusOK, "no marker here")
		var stdout bytes.Buffer

		_, err := newClient(srv.URL).Run(ctx, "bash", "echo", &stdout, io.Discard)
		require.Error(t, err)
		assert.Equal(t, "no marker here", stdout.String())
	})
}

func TestClientLanguages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/languages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(httpserver.LanguagesResponse{Runtimes: []httpserver.RuntimeInfo{
			{Name: "bash", Command: "bash", Extension: ".sh", Aliases: []string{"sh"}},
		}})
	}))
	t.Cleanup(srv.Close)

	runtimes, err := newClient(srv.URL).Languages(context.Background())
	require.NoError(t, err)
	require.Len(t, runtimes, 1)
	assert.Equal(t, []string{"sh"}, runtimes[0].Aliases)
}

func intPtr(n int) *int { return &n }
