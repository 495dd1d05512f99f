package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"

	"github.com/isdmx/execbox/httpserver"
	"github.com/isdmx/execbox/sandbox"
)

// markerHoldback is how many trailing bytes stay buffered while streaming,
// enough to hold the longest exit marker.
const markerHoldback = 32

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// no timeout: the server bounds every execution
		http: &http.Client{},
	}
}

// Run executes code remotely, copying program output to stdout and the exit
// marker to stderr. It returns the remote exit code, 1 when there is none.
func (c *client) Run(ctx context.Context, lang, code string, stdout, stderr io.Writer) (int, error) {
	body, err := json.Marshal(httpserver.ExecRequest{Lang: lang, Code: code})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	tail, err := relay(stdout, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("stream interrupted: %w", err)
	}

	output, exitCode, ok := splitMarker(tail)
	if _, err := stdout.Write(output); err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("stream ended without an exit marker")
	}

	printMarker(stderr, exitCode)
	if exitCode == nil {
		return 1, nil
	}
	return *exitCode, nil
}

// relay copies src to dst as it arrives but keeps the last markerHoldback
// bytes back, returning them once src is exhausted.
func relay(dst io.Writer, src io.Reader) ([]byte, error) {
	var pending []byte
	buf := make([]byte, 32*1024)

	for {
		n, err := src.Read(buf)
		pending = append(pending, buf[:n]...)
		if cut := len(pending) - markerHoldback; cut > 0 {
			if _, werr := dst.Write(pending[:cut]); werr != nil {
				return nil, werr
			}
			pending = append(pending[:0], pending[cut:]...)
		}
		if err == io.EOF {
			return pending, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// splitMarker separates the trailing exit marker from the output before it
func splitMarker(tail []byte) (output []byte, exitCode *int, ok bool) {
	idx := bytes.LastIndex(tail, []byte("\n[exit "))
	if idx < 0 {
		return tail, nil, false
	}
	code, ok := sandbox.ParseExitMarker(string(tail[idx+1:]))
	if !ok {
		return tail, nil, false
	}
	return tail[:idx], code, true
}

func printMarker(w io.Writer, exitCode *int) {
	marker := strings.TrimSpace(sandbox.FormatExitMarker(exitCode))
	switch {
	case exitCode == nil:
		color.New(color.FgYellow, color.Bold).Fprintln(w, "\n"+marker)
	case *exitCode == 0:
		color.New(color.FgGreen).Fprintln(w, "\n"+marker)
	default:
		color.New(color.FgRed, color.Bold).Fprintln(w, "\n"+marker)
	}
}

// Languages fetches the runtime listing
func (c *client) Languages(ctx context.Context) ([]httpserver.RuntimeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	var out httpserver.LanguagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode languages: %w", err)
	}
	return out.Runtimes, nil
}
