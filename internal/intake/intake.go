// Package intake stages a single uploaded file on local disk so the
// external analysis program can read it.
//
// Every upload gets its own subdirectory under the staging root, keyed
// by a generated request id, so concurrent uploads that share a file
// name never touch the same path.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/MeKo-Tech/lotlens/internal/mempool"
)

// Kind classifies an upload by its file name suffix.
type Kind string

const (
	KindArchive    Kind = "archive"
	KindLooseImage Kind = "loose-image"
)

const archiveSuffix = ".zip"

// KindOf derives the upload kind from a file name. Only the suffix is
// considered; the content is never sniffed.
func KindOf(name string) Kind {
	if IsArchive(name) {
		return KindArchive
	}
	return KindLooseImage
}

// IsArchive reports whether name ends in .zip, ignoring case.
func IsArchive(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), archiveSuffix)
}

var (
	// ErrNoContent is returned when Stage is called without a reader.
	ErrNoContent = errors.New("no upload content")
)

// Staged is one uploaded file written into its private staging directory.
type Staged struct {
	ID   string
	Dir  string
	Path string
	Name string
	Kind Kind
	Size int64
}

// Remove deletes the staged file and its directory. A file that is
// already gone is not an error.
func (s *Staged) Remove() error {
	if s == nil {
		return nil
	}
	var result *multierror.Error
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		result = multierror.Append(result, fmt.Errorf("remove staged file: %w", err))
	}
	if err := os.Remove(s.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		result = multierror.Append(result, fmt.Errorf("remove staging dir: %w", err))
	}
	return result.ErrorOrNil()
}

// Stager writes uploads below Root.
type Stager struct {
	Root string

	// newID is replaceable in tests.
	newID func() string
}

// NewStager creates a stager rooted at dir. The directory is created on
// first use.
func NewStager(dir string) *Stager {
	return &Stager{Root: dir}
}

// Stage copies r into <Root>/<id>/<sanitized name>. On any failure the
// partially written entry is removed before returning.
func (s *Stager) Stage(ctx context.Context, name string, r io.Reader) (*Staged, error) {
	if r == nil {
		return nil, ErrNoContent
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := s.id()
	dir := filepath.Join(s.Root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	staged := &Staged{
		ID:   id,
		Dir:  dir,
		Path: filepath.Join(dir, clean),
		Name: clean,
		Kind: KindOf(clean),
	}

	f, err := os.OpenFile(staged.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = staged.Remove()
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	n, copyErr := mempool.Copy(f, contextReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = staged.Remove()
		if copyErr != nil {
			return nil, fmt.Errorf("write staged file: %w", copyErr)
		}
		return nil, fmt.Errorf("close staged file: %w", closeErr)
	}
	staged.Size = n

	abs, err := filepath.Abs(staged.Path)
	if err == nil {
		staged.Path = abs
		staged.Dir = filepath.Dir(abs)
	}
	return staged, nil
}

// contextReader stops a long copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

func (s *Stager) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.New().String()
}
