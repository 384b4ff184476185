package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/lotlens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, fp *testutil.FakeProcessor, timeout time.Duration, maxConcurrent int) *Runner {
	t.Helper()
	r, err := NewRunner(Config{
		Command:       fp.Path,
		Dir:           t.TempDir(),
		Timeout:       timeout,
		MaxConcurrent: maxConcurrent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func stageInput(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o600))
	return p
}

func TestNewRunner_RequiresCommand(t *testing.T) {
	_, err := NewRunner(Config{Command: "  "})
	assert.Error(t, err)
}

func TestInvocation_Args(t *testing.T) {
	assert.Equal(t, []string{"/in/lot.zip", "true"}, Invocation{InputPath: "/in/lot.zip", IsArchive: true}.Args())
	assert.Equal(t, []string{"/in/a.jpg", "false"}, Invocation{InputPath: "/in/a.jpg"}.Args())
}

func TestRunner_Success(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{
		Stdout: "results/a.jpg\n\nresults/b.jpg\n",
		Stderr: "deprecation warning",
	})
	r := newTestRunner(t, fp, 10*time.Second, 1)
	input := stageInput(t, "lot.zip")

	out, err := r.Run(context.Background(), Invocation{InputPath: input, IsArchive: true, RequestID: "req-1"})
	require.NoError(t, err, "stderr alone must not fail the run")

	assert.Equal(t, "results/a.jpg\n\nresults/b.jpg\n", out.Stdout)
	assert.Equal(t, "deprecation warning", out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
	assert.Positive(t, out.Duration)
	assert.Equal(t, [][2]string{{input, "true"}}, fp.Calls(t))
}

func TestRunner_NonZeroExit(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{Stderr: "bad archive", ExitCode: 1})
	r := newTestRunner(t, fp, 10*time.Second, 1)

	out, err := r.Run(context.Background(), Invocation{InputPath: stageInput(t, "lot.zip"), IsArchive: true})
	require.Error(t, err)

	var failed *FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, failed.ExitCode)
	assert.Equal(t, "bad archive", failed.Stderr)
	assert.Contains(t, failed.Error(), "bad archive")
	require.NotNil(t, out)
	assert.Equal(t, 1, out.ExitCode)
}

func TestRunner_SpawnFailure(t *testing.T) {
	r, err := NewRunner(Config{Command: filepath.Join(t.TempDir(), "does-not-exist"), MaxConcurrent: 1})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.Run(context.Background(), Invocation{InputPath: "x", IsArchive: false})
	var failed *FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, -1, failed.ExitCode)
}

func TestRunner_TimeoutKillsChild(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{Sleep: "10", Stdout: "late.jpg"})
	r := newTestRunner(t, fp, 200*time.Millisecond, 1)

	start := time.Now()
	_, err := r.Run(context.Background(), Invocation{InputPath: stageInput(t, "a.jpg")})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestRunner_CancelledContext(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{Stdout: "a.jpg"})
	r := newTestRunner(t, fp, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Invocation{InputPath: stageInput(t, "a.jpg")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fp.Calls(t))
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{Sleep: "0.3", Stdout: "a.jpg"})
	r := newTestRunner(t, fp, 10*time.Second, 1)
	input := stageInput(t, "a.jpg")

	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)
	start := time.Now()
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Run(context.Background(), Invocation{InputPath: input}); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond, "runs must be serialised with one slot")
	assert.Len(t, fp.Calls(t), 3)
}

func TestRunner_QueuedRunHonoursDeadline(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{Sleep: "2", Stdout: "a.jpg"})
	r := newTestRunner(t, fp, 10*time.Second, 1)
	input := stageInput(t, "a.jpg")

	firstDone := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), Invocation{InputPath: input})
		firstDone <- err
	}()
	require.Eventually(t, func() bool {
		calls, err := fp.ReadCalls()
		return err == nil && len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, Invocation{InputPath: input})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, -1, failed.ExitCode)
	assert.Less(t, elapsed, time.Second, "a queued run must not outlive its context")

	require.NoError(t, <-firstDone)
	require.NoError(t, r.Close())
	assert.Len(t, fp.Calls(t), 1, "an abandoned queued run must not spawn")
}

func TestRunner_RunAfterClose(t *testing.T) {
	fp := testutil.NewFakeProcessor(t, testutil.FakeProcessorSpec{Stdout: "a.jpg"})
	r := newTestRunner(t, fp, time.Second, 1)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	var err error
	assert.NotPanics(t, func() {
		_, err = r.Run(context.Background(), Invocation{InputPath: stageInput(t, "a.jpg")})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, fp.Calls(t))
}

func TestRunner_PassesOutputNamespace(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	script := filepath.Join(t.TempDir(), "env.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$"+EnvRequestID+"\"\necho \"$"+EnvOutputDir+"\"\n"), 0o755)) //nolint:gosec // executable test script

	r, err := NewRunner(Config{Command: script, MaxConcurrent: 1})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	out, err := r.Run(context.Background(), Invocation{InputPath: "in", RequestID: "abc", OutputDir: "/pub/results/abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc\n/pub/results/abc\n", out.Stdout)
}
