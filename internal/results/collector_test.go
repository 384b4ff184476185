package results

import (
	"errors"
	"os"
	"testing"

	"github.com/MeKo-Tech/lotlens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		expected ResultSet
	}{
		{"scenario output", "results/a.jpg\n\nresults/b.jpg\n", ResultSet{"results/a.jpg", "results/b.jpg"}},
		{"empty", "", ResultSet{}},
		{"only blanks", "\n \n\t\n", ResultSet{}},
		{"crlf", "a.jpg\r\nb.jpg\r\n", ResultSet{"a.jpg", "b.jpg"}},
		{"duplicates kept", "a.jpg\na.jpg\n", ResultSet{"a.jpg", "a.jpg"}},
		{"no trailing newline", "x/y.png", ResultSet{"x/y.png"}},
		{"order preserved", "c\nb\na", ResultSet{"c", "b", "a"}},
		{"surrounding spaces kept", " results/a b.jpg \r\n\n\tx.jpg\n", ResultSet{" results/a b.jpg ", "\tx.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Collect(tt.stdout))
		})
	}
}

func TestResultSet_Truncate(t *testing.T) {
	rs := ResultSet{"a", "b", "c"}

	assert.Equal(t, ResultSet{"a", "b"}, rs.Truncate(2))
	assert.Equal(t, rs, rs.Truncate(10))
	assert.Equal(t, ResultSet{}, rs.Truncate(0))
	assert.Equal(t, rs, rs.Truncate(-1))

	cut := rs.Truncate(2)
	cut[0] = "changed"
	assert.Equal(t, "a", rs[0], "truncate must copy")
}

func TestParseList(t *testing.T) {
	assert.Equal(t, ResultSet{"a.jpg", "b.jpg"}, ParseList("a.jpg,b.jpg"))
	assert.Equal(t, ResultSet{}, ParseList(""))
	assert.Equal(t, ResultSet{"a.jpg", "b.jpg"}, ParseList("a.jpg,,b.jpg,"))
	assert.Equal(t, ResultSet{"a.jpg"}, ParseList(" a.jpg , "))
	assert.Equal(t, "a.jpg,b.jpg", ResultSet{"a.jpg", "b.jpg"}.Join(","))
}

type fakeRemover struct {
	calls int
	err   error
}

func (f *fakeRemover) Remove() error {
	f.calls++
	return f.err
}

func TestCollector_FinishAlwaysRemoves(t *testing.T) {
	var reported []error
	c := &Collector{OnCleanupError: func(_ string, err error) { reported = append(reported, err) }}

	ok := &fakeRemover{}
	set := c.Finish("req", "a.jpg\n", ok)
	assert.Equal(t, ResultSet{"a.jpg"}, set)
	assert.Equal(t, 1, ok.calls)
	assert.Empty(t, reported)

	failing := &fakeRemover{err: errors.New("busy")}
	set = c.Finish("req", "b.jpg\n", failing)
	assert.Equal(t, ResultSet{"b.jpg"}, set, "cleanup failure must not affect the result")
	assert.Equal(t, 1, failing.calls)
	require.Len(t, reported, 1)

	c.Cleanup("req", nil)
	var nilCollector *Collector
	nilCollector.Cleanup("req", failing)
	assert.Equal(t, 2, failing.calls)
}

func TestResultSet_VerifyUnder(t *testing.T) {
	root := t.TempDir()
	testutil.WritePNG(t, root, "results/r1/a.png", 4, 4)
	require.NoError(t, os.MkdirAll(root+"/results/dir", 0o750))

	assert.NoError(t, ResultSet{"results/r1/a.png", "/results/r1/a.png"}.VerifyUnder(root))
	assert.ErrorIs(t, ResultSet{"../etc/passwd"}.VerifyUnder(root), ErrOutsideRoot)
	assert.ErrorIs(t, ResultSet{"results/missing.png"}.VerifyUnder(root), os.ErrNotExist)
	assert.Error(t, ResultSet{"results/dir"}.VerifyUnder(root))
}
