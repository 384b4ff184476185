// Package orchestrator ties intake, invocation and collection into the
// single operation behind POST /process-images.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/lotlens/internal/common"
	"github.com/MeKo-Tech/lotlens/internal/intake"
	"github.com/MeKo-Tech/lotlens/internal/processor"
	"github.com/MeKo-Tech/lotlens/internal/results"
)

// BatchRole says whether an upload seeds the result view or adds to it.
type BatchRole string

const (
	RoleInitial       BatchRole = "initial"
	RoleSupplementary BatchRole = "supplementary"
)

// RoleFromFlag maps the isAdditional form value to a role. Only the
// literal "true" selects the supplementary role.
func RoleFromFlag(isAdditional string) BatchRole {
	if isAdditional == "true" {
		return RoleSupplementary
	}
	return RoleInitial
}

// Upload is one client submission.
type Upload struct {
	Name string
	Body io.Reader
	Role BatchRole
}

// Result is a successful run.
type Result struct {
	RequestID string
	Role      BatchRole
	Kind      intake.Kind
	Images    results.ResultSet
	Duration  time.Duration
}

// Empty reports whether the program produced no result paths.
func (r *Result) Empty() bool { return r == nil || len(r.Images) == 0 }

// Runner is the part of processor.Runner the service needs.
type Runner interface {
	Run(ctx context.Context, inv processor.Invocation) (*processor.Output, error)
}

// Observer receives progress notifications. All methods are optional.
type Observer struct {
	OnStaged   func(staged *intake.Staged)
	OnInvoke   func(inv processor.Invocation)
	OnComplete func(res *Result, err error)
}

// Config configures a Service.
type Config struct {
	StagingDir string
	PublicDir  string
	// ResultsPrefix is the directory below PublicDir that request output
	// namespaces are created in.
	ResultsPrefix string
	// OnCleanupError is told about staged input that could not be removed.
	OnCleanupError func(*CleanupError)
}

// Service runs uploads through stage, invoke and collect.
type Service struct {
	cfg       Config
	stager    *intake.Stager
	runner    Runner
	collector *results.Collector
}

// NewService wires the pipeline together.
func NewService(cfg Config, runner Runner) (*Service, error) {
	if runner == nil {
		return nil, errors.New("orchestrator: runner is required")
	}
	if cfg.StagingDir == "" {
		return nil, errors.New("orchestrator: staging dir is required")
	}
	if cfg.ResultsPrefix == "" {
		cfg.ResultsPrefix = "results"
	}
	collector := &results.Collector{OnCleanupError: func(requestID string, err error) {
		if cfg.OnCleanupError != nil {
			cfg.OnCleanupError(&CleanupError{RequestID: requestID, Err: err})
		}
	}}
	return &Service{
		cfg:       cfg,
		stager:    intake.NewStager(cfg.StagingDir),
		runner:    runner,
		collector: collector,
	}, nil
}

// Process handles one upload. The staged input is removed before it
// returns, on every path.
func (s *Service) Process(ctx context.Context, up Upload) (*Result, error) {
	return s.ProcessObserved(ctx, up, Observer{})
}

// ProcessObserved is Process with progress callbacks.
func (s *Service) ProcessObserved(ctx context.Context, up Upload, obs Observer) (res *Result, err error) {
	if up.Body == nil || strings.TrimSpace(up.Name) == "" {
		return nil, ErrMissingFile
	}
	if up.Role == "" {
		up.Role = RoleInitial
	}
	defer func() {
		if obs.OnComplete != nil {
			obs.OnComplete(res, err)
		}
	}()

	timer := common.NewNamedTimer("process")

	staged, err := s.stager.Stage(ctx, up.Name, up.Body)
	if err != nil {
		if errors.Is(err, intake.ErrInvalidName) {
			return nil, fmt.Errorf("%w: %w", ErrMissingFile, err)
		}
		return nil, newProcessingFailed("", "stage", err)
	}
	timer.Lap("stage")
	if obs.OnStaged != nil {
		obs.OnStaged(staged)
	}

	log := slog.With("request_id", staged.ID, "file", staged.Name, "role", string(up.Role))
	log.Info("Staged upload", "kind", string(staged.Kind), "bytes", staged.Size)

	inv := processor.Invocation{
		InputPath: staged.Path,
		IsArchive: intake.IsArchive(staged.Name),
		RequestID: staged.ID,
		OutputDir: s.outputDir(staged.ID),
	}
	if obs.OnInvoke != nil {
		obs.OnInvoke(inv)
	}

	out, runErr := s.runner.Run(ctx, inv)
	timer.Lap("invoke")
	if runErr != nil {
		s.collector.Cleanup(staged.ID, staged)
		pfe := newProcessingFailed(staged.ID, "invoke", runErr)
		log.Error("External processor failed",
			"exit_code", pfe.ExitCode, "stderr", pfe.Stderr, "error", runErr)
		return nil, pfe
	}

	images := s.collector.Finish(staged.ID, out.Stdout, staged)
	timer.Lap("collect")

	res = &Result{
		RequestID: staged.ID,
		Role:      up.Role,
		Kind:      staged.Kind,
		Images:    images,
		Duration:  timer.Elapsed(),
	}
	log.Info("Processed upload", append([]any{"images", len(images)}, timer.LogAttrs()...)...)
	return res, nil
}

func (s *Service) outputDir(requestID string) string {
	if s.cfg.PublicDir == "" {
		return ""
	}
	dir := filepath.Join(s.cfg.PublicDir, s.cfg.ResultsPrefix, requestID)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
