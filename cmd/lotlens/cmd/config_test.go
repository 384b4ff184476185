package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lotlens.yaml")

	out, err := executeRoot(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "staging_dir")

	_, err = executeRoot(t, "config", "init", path)
	assert.Error(t, err, "refuses to overwrite")
}

func TestConfigShow(t *testing.T) {
	out, err := executeRoot(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "processor:")
	assert.Contains(t, out, "max_initial: 10")
}
