package support

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/lotlens/internal/browse"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/processor"
	"github.com/MeKo-Tech/lotlens/internal/server"
	"github.com/MeKo-Tech/lotlens/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	TempDir    string
	StagingDir string
	PublicDir  string

	Fake       *testutil.FakeProcessor
	runner     *processor.Runner
	App        *server.Server
	HTTPServer *httptest.Server

	// HTTP response state
	LastStatus int
	LastBody   []byte

	// CLI state
	CommandOutput string
	CommandErr    error

	// Session is the browse session opened by the last initial batch.
	Session string
	batches int
}

// NewTestContext creates a scenario context with its own directories and a
// fake processor that prints nothing.
func NewTestContext() (*TestContext, error) {
	dir, err := os.MkdirTemp("", "lotlens-bdd-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	tc := &TestContext{
		TempDir:    dir,
		StagingDir: filepath.Join(dir, "input"),
		PublicDir:  filepath.Join(dir, "public"),
	}
	if err := tc.setProcessor(testutil.FakeProcessorSpec{}); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return tc, nil
}

// setProcessor rewrites the fake program in place. A running server picks
// the change up on its next invocation.
func (tc *TestContext) setProcessor(spec testutil.FakeProcessorSpec) error {
	fp, err := testutil.WriteFakeProcessor(tc.TempDir, spec)
	if err != nil {
		return fmt.Errorf("failed to write fake processor: %w", err)
	}
	tc.Fake = fp
	return nil
}

// StartServer wires the real pipeline behind an httptest server.
func (tc *TestContext) StartServer() error {
	if tc.HTTPServer != nil {
		return nil
	}
	runner, err := processor.NewRunner(processor.Config{
		Command:       tc.Fake.Path,
		Timeout:       10 * time.Second,
		MaxConcurrent: 2,
	})
	if err != nil {
		return err
	}
	svc, err := orchestrator.NewService(orchestrator.Config{StagingDir: tc.StagingDir, PublicDir: tc.PublicDir}, runner)
	if err != nil {
		_ = runner.Close()
		return err
	}
	store, err := browse.NewStore(64, browse.DefaultMaxInitial, browse.DefaultMaxBatch)
	if err != nil {
		_ = runner.Close()
		return err
	}
	app, err := server.NewServer(server.Config{MaxUploadMB: 10, TimeoutSec: 20, PublicDir: tc.PublicDir}, svc, store)
	if err != nil {
		_ = runner.Close()
		return err
	}

	tc.runner = runner
	tc.App = app
	tc.HTTPServer = httptest.NewServer(app.Handler())
	return nil
}

// Cleanup stops the server and removes the scenario's files.
func (tc *TestContext) Cleanup() error {
	if tc.HTTPServer != nil {
		tc.HTTPServer.Close()
		tc.HTTPServer = nil
	}
	if tc.runner != nil {
		_ = tc.runner.Close()
		tc.runner = nil
	}
	return os.RemoveAll(tc.TempDir)
}
