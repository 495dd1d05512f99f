package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner defaults
const (
	DefaultTimeout       = 15 * time.Second
	DefaultWaitDelay     = time.Second
	DefaultMaxConcurrent = 4
	DefaultQueueTimeout  = 5 * time.Second
	DefaultStallTimeout  = 5 * time.Second
	cleanupTimeout       = 10 * time.Second
)

// Limits are host rlimits applied to locally spawned processes
type Limits struct {
	CPUSeconds    uint64
	FileSizeBytes uint64
}

// Runner executes code snippets as short-lived, killable processes and
// streams their output. It is safe for concurrent use.
type Runner struct {
	logger       *zap.Logger
	registry     *Registry
	backend      Backend
	fs           FileSystem
	tempDir      string
	timeout      time.Duration
	waitDelay    time.Duration
	queueTimeout time.Duration
	stallTimeout time.Duration
	maxFileSize  uint64
	slots        *semaphore.Weighted
	active       *xsync.MapOf[string, *Stream]
	closed       atomic.Bool
}

// RunnerOption defines a functional option for Runner
type RunnerOption func(*Runner)

// WithBackend sets how processes are spawned
func WithBackend(backend Backend) RunnerOption {
	return func(r *Runner) {
		r.backend = backend
	}
}

// WithFileSystem sets the FileSystem used for workspaces
func WithFileSystem(fs FileSystem) RunnerOption {
	return func(r *Runner) {
		r.fs = fs
	}
}

// WithTempDir sets the parent of workspace directories; empty means os.TempDir
func WithTempDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.tempDir = dir
	}
}

// WithTimeout sets the wall-clock limit of every execution
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithWaitDelay bounds how long output pipes are drained after a kill
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithMaxConcurrent sets the number of executions allowed to run at once
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		r.slots = semaphore.NewWeighted(int64(max(n, 1)))
	}
}

// WithQueueTimeout sets how long a request waits for a free slot. Zero rejects immediately.
func WithQueueTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.queueTimeout = d
	}
}

// WithStallTimeout sets how long a reader may leave output unconsumed once
// the run has ended, on top of the wait delay
func WithStallTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.stallTimeout = d
	}
}

// WithMaxFileSize caps the size of any file a local process writes
func WithMaxFileSize(bytes uint64) RunnerOption {
	return func(r *Runner) {
		r.maxFileSize = bytes
	}
}

// NewRunner creates a Runner over the given registry
func NewRunner(logger *zap.Logger, registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:       logger,
		registry:     registry,
		backend:      LocalBackend{},
		fs:           &RealFileSystem{},
		timeout:      DefaultTimeout,
		waitDelay:    DefaultWaitDelay,
		queueTimeout: DefaultQueueTimeout,
		stallTimeout: DefaultStallTimeout,
		slots:        semaphore.NewWeighted(DefaultMaxConcurrent),
		active:       xsync.NewMapOf[string, *Stream](),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Registry returns the language registry the runner resolves against
func (r *Runner) Registry() *Registry { return r.registry }

// Backend returns the spawning backend
func (r *Runner) Backend() Backend { return r.backend }

// Timeout returns the per-execution wall-clock limit
func (r *Runner) Timeout() time.Duration { return r.timeout }

// ActiveCount is the number of executions currently holding a slot
func (r *Runner) ActiveCount() int { return r.active.Size() }

// Execute validates the request, waits for a free slot and starts the
// process. Validation and admission failures are returned as errors before
// anything is created; every later failure is reported inside the stream.
func (r *Runner) Execute(ctx context.Context, req ExecuteRequest) (*Stream, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	rt, err := r.registry.Resolve(req.Language)
	if err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, &ValidationError{Field: "code", Message: "code must not be empty"}
	}

	if err := r.admit(ctx); err != nil {
		return nil, err
	}

	id := xid.New().String()
	// ends with the caller's context, Stream.Close or Shutdown
	execCtx, cancel := context.WithCancel(ctx)
	s, pw := newStream(id, rt.Name, cancel)
	r.active.Store(id, s)

	r.logger.Info("execution started",
		zap.String("execution_id", id),
		zap.String("language", rt.Name),
		zap.String("backend", r.backend.Name()),
		zap.Int("code_bytes", len(req.Code)))

	go r.run(execCtx, s, pw, rt, req.Code)

	return s, nil
}

func (r *Runner) admit(ctx context.Context) error {
	if r.slots.TryAcquire(1) {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.queueTimeout)
	defer cancel()

	if err := r.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

func (r *Runner) run(ctx context.Context, s *Stream, pw *io.PipeWriter, rt Runtime, code string) {
	start := time.Now()

	runCtx, cancelRun := context.WithTimeout(ctx, r.timeout)
	defer cancelRun()
	stopWatch := r.watchOutput(runCtx, s.id, pw)

	res := r.execute(ctx, runCtx, s.id, pw, rt, code)
	res.Duration = time.Since(start)

	_, _ = io.WriteString(pw, res.Marker())
	_ = pw.Close()
	stopWatch()

	s.cancel()
	r.active.Delete(s.id)
	r.slots.Release(1)

	fields := []zap.Field{
		zap.String("execution_id", s.id),
		zap.String("language", rt.Name),
		zap.Duration("duration", res.Duration),
		zap.Bool("timed_out", res.TimedOut),
		zap.Bool("canceled", res.Canceled),
	}
	if res.ExitCode != nil {
		fields = append(fields, zap.Int("exit_code", *res.ExitCode))
	}
	if res.SpawnError != nil {
		r.logger.Warn("execution failed to start", append(fields, zap.Error(res.SpawnError))...)
	} else {
		r.logger.Info("execution finished", fields...)
	}

	s.finish(res)
}

// watchOutput closes pw with ErrOutputStalled when the reader has not taken
// the remaining output within waitDelay+stallTimeout of runCtx ending. A
// blocked pipe write would otherwise hold cmd.Wait, the slot and the
// workspace for as long as the reader does.
func (r *Runner) watchOutput(runCtx context.Context, id string, pw *io.PipeWriter) (stop func()) {
	finished := make(chan struct{})
	go func() {
		select {
		case <-finished:
			return
		case <-runCtx.Done():
		}

		timer := time.NewTimer(r.waitDelay + r.stallTimeout)
		defer timer.Stop()
		select {
		case <-finished:
		case <-timer.C:
			r.logger.Warn("output reader stalled, dropping stream", zap.String("execution_id", id))
			_ = pw.CloseWithError(ErrOutputStalled)
		}
	}()
	return func() { close(finished) }
}

// execute runs the process to completion under runCtx, writing its output to
// out. The workspace is gone by the time it returns.
//
//nolint:funlen // linear lifecycle: provision, spawn, wait, sweep, release
func (r *Runner) execute(ctx, runCtx context.Context, id string, out io.Writer, rt Runtime, code string) Result {
	res := Result{ExecutionID: id, Language: rt.Name}

	ws, err := provisionWorkspace(r.fs, r.tempDir, rt, code)
	if err != nil {
		res.SpawnError = err
		fmt.Fprintf(out, "[spawn error: %v]\n", err)
		return res
	}
	defer func() {
		if rmErr := ws.Release(); rmErr != nil {
			r.logger.Error("failed to remove workspace", zap.String("path", ws.Dir), zap.Error(rmErr))
		}
	}()

	argv, env := r.backend.Command(rt, ws, id)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec // argv comes from the registry, code only reaches it as a file
	cmd.Dir = ws.Dir
	cmd.Env = env
	// one writer for both streams keeps their relative order
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = r.waitDelay
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		res.SpawnError = err
		res.Canceled = ctx.Err() != nil
		fmt.Fprintf(out, "[spawn error: %v]\n", err)
		return res
	}

	if !r.backend.Isolated() {
		if err := applyLimits(cmd.Process.Pid, r.limits()); err != nil {
			r.logger.Warn("failed to apply resource limits", zap.String("execution_id", id), zap.Error(err))
		}
	}

	waitErr := cmd.Wait()
	// descendants that outlived the interpreter still share its group
	_ = killProcessGroup(cmd.Process)

	if cmd.ProcessState != nil {
		if exitCode := cmd.ProcessState.ExitCode(); exitCode >= 0 {
			res.ExitCode = &exitCode
		}
	}

	// a process that exited on its own keeps its status even if the
	// deadline fired right after. runCtx records whichever of the deadline
	// and the caller's cancel came first.
	if res.ExitCode == nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			res.TimedOut = true
		case ctx.Err() != nil:
			res.Canceled = true
		}
	}

	if waitErr != nil && errors.Is(waitErr, exec.ErrWaitDelay) {
		r.logger.Debug("output pipes closed after wait delay", zap.String("execution_id", id))
	}

	if res.TimedOut {
		fmt.Fprintf(out, "\n[timeout after %s]", r.timeout)
	}

	if (res.TimedOut || res.Canceled) && r.backend.Isolated() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cleanupCancel()
		if err := r.backend.Cleanup(cleanupCtx, id); err != nil {
			r.logger.Warn("backend cleanup failed", zap.String("execution_id", id), zap.Error(err))
		}
	}

	return res
}

func (r *Runner) limits() Limits {
	return Limits{
		// RLIMIT_CPU sums every thread of the process. Scaled by the core
		// count it cannot fire before the wall-clock timer does.
		CPUSeconds:    (uint64(math.Ceil(r.timeout.Seconds())) + 1) * uint64(runtime.NumCPU()),
		FileSizeBytes: r.maxFileSize,
	}
}

// Shutdown refuses new executions, kills running ones and waits for them to
// release their resources or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.closed.Store(true)

	var pending []*Stream
	r.active.Range(func(_ string, s *Stream) bool {
		s.cancel()
		pending = append(pending, s)
		return true
	})

	if len(pending) > 0 {
		r.logger.Info("killing active executions", zap.Int("count", len(pending)))
	}

	for _, s := range pending {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("shutdown interrupted with %d executions active: %w", r.ActiveCount(), ctx.Err())
		}
	}
	return nil
}
