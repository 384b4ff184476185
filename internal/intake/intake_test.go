package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected Kind
	}{
		{"lower zip", "lot.zip", KindArchive},
		{"upper zip", "LOT.ZIP", KindArchive},
		{"mixed zip", "lot.Zip", KindArchive},
		{"jpeg", "car.jpg", KindLooseImage},
		{"zip in middle", "lot.zip.png", KindLooseImage},
		{"no extension", "zip", KindLooseImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.filename))
		})
	}
}

func TestStager_Stage(t *testing.T) {
	root := filepath.Join(t.TempDir(), "input")
	stager := NewStager(root)

	staged, err := stager.Stage(context.Background(), "lot.zip", strings.NewReader("PK\x03\x04payload"))
	require.NoError(t, err)

	assert.Equal(t, "lot.zip", staged.Name)
	assert.Equal(t, KindArchive, staged.Kind)
	assert.Equal(t, int64(len("PK\x03\x04payload")), staged.Size)
	assert.True(t, filepath.IsAbs(staged.Path))
	assert.Equal(t, staged.ID, filepath.Base(staged.Dir))

	data, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04payload", string(data))

	require.NoError(t, staged.Remove())
	_, err = os.Stat(staged.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(staged.Dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// root survives for the next request
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStager_SameNameDoesNotCollide(t *testing.T) {
	stager := NewStager(t.TempDir())

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			staged, err := stager.Stage(context.Background(), "lot.zip", strings.NewReader(strings.Repeat("x", i+1)))
			if assert.NoError(t, err) {
				paths[i] = staged.Path
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, p := range paths {
		require.NotEmpty(t, p)
		assert.False(t, seen[p], "duplicate staging path %s", p)
		seen[p] = true

		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Len(t, data, i+1)
	}
}

func TestStager_PathTraversalStaysInside(t *testing.T) {
	root := t.TempDir()
	stager := NewStager(root)

	staged, err := stager.Stage(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	defer func() { _ = staged.Remove() }()

	rootAbs, err := filepath.Abs(root)
	require.NoError(t, err)
	rel, err := filepath.Rel(rootAbs, staged.Path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."))
	assert.Equal(t, "passwd", staged.Name)
}

func TestStager_Errors(t *testing.T) {
	stager := NewStager(t.TempDir())

	_, err := stager.Stage(context.Background(), "a.jpg", nil)
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = stager.Stage(context.Background(), "..", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidName)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stager.Stage(ctx, "a.jpg", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(stager.Root)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed stages must not leave directories behind")
}

// cancelAfterRead cancels its context once the first chunk has been read.
type cancelAfterRead struct {
	cancel context.CancelFunc
	reads  int
}

func (c *cancelAfterRead) Read(p []byte) (int, error) {
	c.reads++
	if c.reads == 1 {
		c.cancel()
	}
	return copy(p, "chunk"), nil
}

func TestStager_CancelledDuringCopy(t *testing.T) {
	stager := NewStager(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &cancelAfterRead{cancel: cancel}
	_, err := stager.Stage(ctx, "lot.zip", r)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.reads)

	entries, err := os.ReadDir(stager.Root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStaged_RemoveIsIdempotent(t *testing.T) {
	stager := NewStager(t.TempDir())
	staged, err := stager.Stage(context.Background(), "a.png", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, staged.Remove())
	assert.NoError(t, staged.Remove())

	var nilStaged *Staged
	assert.NoError(t, nilStaged.Remove())
}
