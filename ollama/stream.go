package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// RelayNDJSON copies src to dst one line at a time, calling flush after each
// line so that every chunk reaches the client as soon as it arrives.
func RelayNDJSON(dst io.Writer, src io.Reader, flush func()) error {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := dst.Write(line); werr != nil {
				return werr
			}
			if flush != nil {
				flush()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// progressLine is one NDJSON record of a pull
type progressLine struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// DrainProgress consumes a pull stream and fails on the first error record
func DrainProgress(src io.Reader) error {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var p progressLine
			if jerr := json.Unmarshal(line, &p); jerr == nil && p.Error != "" {
				return &ClientError{Type: ErrTypeInvalidResponse, Message: "pull failed: " + p.Error}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
