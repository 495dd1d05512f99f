package sandbox

import "errors"

var (
	// ErrValidation matches every request rejected before any resource is created
	ErrValidation = errors.New("validation error")
	// ErrBusy is returned when no execution slot frees up within the queue timeout
	ErrBusy = errors.New("execution capacity exhausted")
	// ErrClosed is returned once the runner has been shut down
	ErrClosed = errors.New("runner is shut down")
	// ErrOutputStalled ends a stream whose reader stopped consuming after the run was over
	ErrOutputStalled = errors.New("output reader stalled")
)

// ValidationError describes a malformed or disallowed execution request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (*ValidationError) Unwrap() error {
	return ErrValidation
}
