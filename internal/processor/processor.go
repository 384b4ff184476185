// Package processor runs the external image-analysis program once per
// upload and captures what it printed.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
)

// Environment variables handed to the external program so it can write
// into a request-scoped output namespace.
const (
	EnvRequestID = "LOTLENS_REQUEST_ID"
	EnvOutputDir = "LOTLENS_OUTPUT_DIR"
)

// Invocation is the per-request execution context of the program.
type Invocation struct {
	InputPath string
	IsArchive bool
	RequestID string
	OutputDir string
}

// Args returns the two positional arguments the program expects.
func (inv Invocation) Args() []string {
	return []string{inv.InputPath, strconv.FormatBool(inv.IsArchive)}
}

// Output holds the captured streams of a finished run.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// FailedError reports a run that could not produce a result: the program
// could not be started, exited non-zero, or ran past its deadline.
type FailedError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("external processor failed (exit code %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *FailedError) Unwrap() error { return e.Err }

// Config configures a Runner.
type Config struct {
	Command       string
	Args          []string
	Dir           string
	Timeout       time.Duration
	MaxConcurrent int
}

// DefaultConfig mirrors the layout of the bundled analysis script.
func DefaultConfig() Config {
	return Config{
		Command:       "python3",
		Args:          []string{"python/process_zip.py"},
		Dir:           ".",
		Timeout:       5 * time.Minute,
		MaxConcurrent: 2,
	}
}

// Runner spawns the program. It is safe for concurrent use; at most
// MaxConcurrent children run at any time, further callers wait their turn
// until their context ends.
type Runner struct {
	cfg  Config
	pool *workerpool.WorkerPool

	mu     sync.RWMutex
	closed bool
}

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("processor runner is closed")

// NewRunner validates cfg and starts the worker pool.
func NewRunner(cfg Config) (*Runner, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("processor command is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Runner{cfg: cfg, pool: workerpool.New(cfg.MaxConcurrent)}, nil
}

// Close stops the pool after queued runs finish.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.pool != nil {
		r.pool.StopWait()
	}
	return nil
}

// Run executes one invocation and blocks until the child exits, the
// deadline passes or ctx is cancelled. ctx also bounds the wait for a free
// slot; a run abandoned while queued never spawns. Non-empty stderr alone
// is not a failure; only the exit status is.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Output, error) {
	type result struct {
		out *Output
		err error
	}
	done := make(chan result, 1)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, &FailedError{ExitCode: -1, Err: ErrClosed}
	}
	r.pool.Submit(func() {
		out, err := r.run(ctx, inv)
		done <- result{out, err}
	})
	r.mu.RUnlock()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, &FailedError{ExitCode: -1, Err: ctx.Err()}
	}
}

func (r *Runner) run(ctx context.Context, inv Invocation) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FailedError{ExitCode: -1, Err: err}
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.cfg.Args...), inv.Args()...)
	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = append(os.Environ(),
		EnvRequestID+"="+inv.RequestID,
		EnvOutputDir+"="+inv.OutputDir,
	)
	// the child may have spawned helpers holding our pipes open
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Starting external processor",
		"request_id", inv.RequestID, "command", r.cfg.Command, "args", args)

	start := time.Now()
	runErr := cmd.Run()
	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd),
		Duration: time.Since(start),
	}

	if runErr != nil {
		cause := runErr
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = ctxErr
		}
		return out, &FailedError{ExitCode: out.ExitCode, Stderr: out.Stderr, Err: cause}
	}

	if strings.TrimSpace(out.Stderr) != "" {
		slog.Warn("External processor wrote to stderr",
			"request_id", inv.RequestID, "stderr", out.Stderr)
	}
	return out, nil
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}
