package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := NewNamedTimer("upload")
	assert.Equal(t, "upload", timer.Name())

	time.Sleep(10 * time.Millisecond)
	stage := timer.Lap("stage")
	assert.GreaterOrEqual(t, stage, 10*time.Millisecond)

	timer.Lap("invoke")

	laps := timer.Laps()
	require.Len(t, laps, 2)
	assert.Equal(t, "stage", laps[0].Name)
	assert.Equal(t, "invoke", laps[1].Name)
	assert.GreaterOrEqual(t, timer.Elapsed(), stage)

	str := timer.String()
	assert.Contains(t, str, "upload")
	assert.Contains(t, str, "stage=")

	attrs := timer.LogAttrs()
	assert.Len(t, attrs, 6)
	assert.Equal(t, "stage_ms", attrs[0])
	assert.Equal(t, "total_ms", attrs[4])
}
