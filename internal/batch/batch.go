// Package batch runs many local files through the upload pipeline, the way
// the HTTP endpoint runs one.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
)

// ErrNoFiles is returned when discovery finds nothing to process.
var ErrNoFiles = errors.New("no matching files found")

// Processor is the part of orchestrator.Service a batch needs.
type Processor interface {
	Process(ctx context.Context, up orchestrator.Upload) (*orchestrator.Result, error)
}

// Item is the outcome for one file.
type Item struct {
	File      string
	RequestID string
	Images    []string
	Duration  time.Duration
	Err       error
}

// Failed reports whether the file could not be processed.
func (it Item) Failed() bool { return it.Err != nil }

// Result holds the result of batch processing. Items are in file order.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Stats summarises a Result.
type Stats struct {
	Files            int
	Processed        int
	Failed           int
	Images           int
	Workers          int
	TotalDuration    time.Duration
	AveragePerFile   time.Duration
	ThroughputPerSec float64
}

// ProcessBatch discovers files from paths and processes each one.
func ProcessBatch(ctx context.Context, proc Processor, paths []string, cfg Config) (*Result, error) {
	if proc == nil {
		return nil, errors.New("batch: processor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files, err := discoverFiles(paths, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	role := orchestrator.RoleInitial
	if cfg.Additional {
		role = orchestrator.RoleSupplementary
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(cfg.workers(), len(files))
	wp := workerpool.New(workers)
	items := make([]Item, len(files))
	var once sync.Once

	start := time.Now()
	for i, file := range files {
		wp.Submit(func() {
			items[i] = processFile(ctx, proc, file, role)
			if items[i].Failed() && cfg.StopOnError {
				once.Do(cancel)
			}
		})
	}
	wp.StopWait()

	return &Result{
		Items:       items,
		Duration:    time.Since(start),
		WorkerCount: workers,
	}, nil
}

func processFile(ctx context.Context, proc Processor, path string, role orchestrator.BatchRole) Item {
	item := Item{File: path}
	if err := ctx.Err(); err != nil {
		item.Err = err
		return item
	}

	f, err := os.Open(path) //nolint:gosec // G304: paths come from discovery over the caller's arguments
	if err != nil {
		item.Err = fmt.Errorf("open input: %w", err)
		return item
	}
	defer func() { _ = f.Close() }()

	res, err := proc.Process(ctx, orchestrator.Upload{Name: filepath.Base(path), Body: f, Role: role})
	if err != nil {
		slog.Warn("Batch file failed", "file", path, "error", err)
		item.Err = err
		return item
	}
	item.RequestID = res.RequestID
	item.Images = res.Images
	item.Duration = res.Duration
	return item
}

// Stats computes summary statistics.
func (r *Result) Stats() Stats {
	s := Stats{Files: len(r.Items), Workers: r.WorkerCount, TotalDuration: r.Duration}
	var busy time.Duration
	for _, it := range r.Items {
		if it.Failed() {
			s.Failed++
			continue
		}
		s.Processed++
		s.Images += len(it.Images)
		busy += it.Duration
	}
	if s.Processed > 0 {
		s.AveragePerFile = busy / time.Duration(s.Processed)
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		s.ThroughputPerSec = float64(s.Processed) / secs
	}
	return s
}

// Err joins the per-file errors, or returns nil when every file succeeded.
func (r *Result) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Failed() {
			errs = append(errs, fmt.Errorf("%s: %w", it.File, it.Err))
		}
	}
	return errors.Join(errs...)
}
