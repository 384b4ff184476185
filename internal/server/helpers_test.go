package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lotlens/internal/browse"
	"github.com/MeKo-Tech/lotlens/internal/intake"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/processor"
	"github.com/MeKo-Tech/lotlens/internal/results"
	"github.com/MeKo-Tech/lotlens/internal/testutil"
)

// stubProcessor stands in for orchestrator.Service. It fires the observer
// hooks and replies with images, or err when set.
type stubProcessor struct {
	mu     sync.Mutex
	images []string
	err    error
	calls  []orchestrator.Upload
	bodies [][]byte
}

func (p *stubProcessor) ProcessObserved(_ context.Context, up orchestrator.Upload, obs orchestrator.Observer) (*orchestrator.Result, error) {
	var body []byte
	if up.Body != nil {
		body, _ = io.ReadAll(up.Body)
	}
	p.mu.Lock()
	p.calls = append(p.calls, up)
	p.bodies = append(p.bodies, body)
	p.mu.Unlock()

	if up.Body == nil || up.Name == "" {
		return nil, orchestrator.ErrMissingFile
	}
	if obs.OnStaged != nil {
		obs.OnStaged(&intake.Staged{ID: "req-1", Name: up.Name})
	}
	if obs.OnInvoke != nil {
		obs.OnInvoke(processor.Invocation{RequestID: "req-1"})
	}
	if p.err != nil {
		return nil, p.err
	}
	return &orchestrator.Result{
		RequestID: "req-1",
		Role:      up.Role,
		Images:    results.ResultSet(p.images),
		Duration:  time.Millisecond,
	}, nil
}

func (p *stubProcessor) uploads() []orchestrator.Upload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]orchestrator.Upload(nil), p.calls...)
}

func newTestStore(t *testing.T) *browse.Store {
	t.Helper()
	store, err := browse.NewStore(16, browse.DefaultMaxInitial, browse.DefaultMaxBatch)
	require.NoError(t, err)
	return store
}

func newStubServer(t *testing.T, proc *stubProcessor) *Server {
	t.Helper()
	s, err := NewServer(Config{MaxUploadMB: 5, TimeoutSec: 10, PublicDir: t.TempDir()}, proc, newTestStore(t))
	require.NoError(t, err)
	return s
}

// fakeBackend is a server running the real pipeline against a fake
// external program.
type fakeBackend struct {
	server  *Server
	fake    *testutil.FakeProcessor
	staging string
	public  string
}

func newFakeBackend(t *testing.T, spec testutil.FakeProcessorSpec) *fakeBackend {
	t.Helper()
	fp := testutil.NewFakeProcessor(t, spec)
	runner, err := processor.NewRunner(processor.Config{Command: fp.Path, Timeout: 10 * time.Second, MaxConcurrent: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = runner.Close() })

	root := t.TempDir()
	staging := filepath.Join(root, "input")
	public := filepath.Join(root, "public")
	svc, err := orchestrator.NewService(orchestrator.Config{StagingDir: staging, PublicDir: public}, runner)
	require.NoError(t, err)

	s, err := NewServer(Config{MaxUploadMB: 5, TimeoutSec: 10, PublicDir: public}, svc, newTestStore(t))
	require.NoError(t, err)
	return &fakeBackend{server: s, fake: fp, staging: staging, public: public}
}

// multipartBody builds a /process-images form. An empty filename omits
// the file part.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, h http.Handler, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, filename, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/process-images", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
