package sandbox

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of one execution, available once its stream is done
type Result struct {
	ExecutionID string
	Language    string
	// ExitCode is nil when the process produced no status: killed by a
	// signal, or never started.
	ExitCode   *int
	TimedOut   bool
	Canceled   bool
	SpawnError error
	Duration   time.Duration
}

// Marker is the trailer written after the last byte of program output
func (r Result) Marker() string {
	return FormatExitMarker(r.ExitCode)
}

// FormatExitMarker renders "\n[exit <code>]\n", with an empty code for nil
func FormatExitMarker(code *int) string {
	if code == nil {
		return "\n[exit ]\n"
	}
	return "\n[exit " + strconv.Itoa(*code) + "]\n"
}

var exitMarkerRe = regexp.MustCompile(`^\[exit (-?\d*)\]$`)

// ParseExitMarker recognizes a marker line. ok is false for any other line;
// code is nil for the empty marker.
func ParseExitMarker(line string) (code *int, ok bool) {
	m := exitMarkerRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, false
	}
	if m[1] == "" {
		return nil, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	return &n, true
}

// Stream is the live, merged stdout and stderr of one execution followed by
// its exit marker. Closing it before EOF kills the execution.
type Stream struct {
	id       string
	language string
	pr       *io.PipeReader
	cancel   context.CancelFunc
	done     chan struct{}
	result   Result
}

func newStream(id, language string, cancel context.CancelFunc) (*Stream, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &Stream{
		id:       id,
		language: language,
		pr:       pr,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, pw
}

// ID is the unique execution identifier
func (s *Stream) ID() string { return s.id }

// Language is the canonical runtime name
func (s *Stream) Language() string { return s.language }

func (s *Stream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the execution if it is still running and discards further output
func (s *Stream) Close() error {
	s.cancel()
	return s.pr.Close()
}

// Done is closed once the process is gone and the workspace removed
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait blocks until the execution finished. The stream must be drained or
// closed concurrently, otherwise output backpressure keeps it running.
func (s *Stream) Wait() Result {
	<-s.done
	return s.result
}

func (s *Stream) finish(res Result) {
	s.result = res
	close(s.done)
}
