package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipOfImages(t *testing.T) {
	data := ZipOfImages(t, "a.png", "sub/b.png")
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "a.png", zr.File[0].Name)
	assert.Equal(t, "sub/b.png", zr.File[1].Name)
}

func TestFakeProcessor(t *testing.T) {
	fp := NewFakeProcessor(t, FakeProcessorSpec{Stdout: "results/a.jpg\n", Stderr: "note", ExitCode: 0})

	input := filepath.Join(t.TempDir(), "lot.zip")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o600))

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(fp.Path, input, "true")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run())

	assert.Equal(t, "results/a.jpg\n", stdout.String())
	assert.Equal(t, "note", stderr.String())
	assert.Equal(t, [][2]string{{input, "true"}}, fp.Calls(t))
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	WritePNG(t, dir, "x/y.png", 4, 4)
	assert.Equal(t, []string{filepath.Join("x", "y.png")}, ListFiles(t, dir))
	assert.Empty(t, ListFiles(t, filepath.Join(dir, "missing")))
}

func TestWriteFakeProcessor_RewriteKeepsCallLog(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake processor requires a POSIX shell")
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "car.jpg")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o600))

	fp, err := WriteFakeProcessor(dir, FakeProcessorSpec{Stdout: "first\n"})
	require.NoError(t, err)
	calls, err := fp.ReadCalls()
	require.NoError(t, err)
	assert.Empty(t, calls)
	require.NoError(t, exec.Command(fp.Path, input, "false").Run())

	fp, err = WriteFakeProcessor(dir, FakeProcessorSpec{Stdout: "second\n"})
	require.NoError(t, err)
	out, err := exec.Command(fp.Path, input, "true").Output()
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(out))

	calls, err = fp.ReadCalls()
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{input, "false"}, {input, "true"}}, calls)
}
