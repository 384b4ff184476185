package intake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{input: "lot.zip", expected: "lot.zip"},
		{input: "dir/sub/lot.zip", expected: "lot.zip"},
		{input: `C:\Users\me\lot.zip`, expected: "lot.zip"},
		{input: "../../secret.png", expected: "secret.png"},
		{input: "  spaced.jpg  ", expected: "spaced.jpg"},
		{input: "bad\x00name\n.jpg", expected: "badname.jpg"},
		{input: "cafe\u0301.jpg", expected: "caf\u00e9.jpg"},
		{input: "", wantErr: true},
		{input: "..", wantErr: true},
		{input: "dir/", wantErr: true},
		{input: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := SanitizeName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeName_LongNameKeepsExtension(t *testing.T) {
	got, err := SanitizeName(strings.Repeat("a", 400) + ".ZIP")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), maxNameLen)
	assert.True(t, IsArchive(got))
}
