package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Size
	}{
		{"1024", 1024},
		{"1024B", 1024},
		{"100 bytes", 100},
		{"5K", 5 * KB},
		{"5KB", 5 * KB},
		{"5KiB", 5 * KB},
		{"5 KB", 5 * KB},
		{"5kb", 5 * KB},
		{"500MB", 500 * MB},
		{"1.5GB", GB + 512*MB},
		{"1.5 GB", GB + 512*MB},
		{"2TB", 2 * TB},
		{"1PB", PB},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "MB", "5 parsecs", "abc"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		size Size
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{KB, "1KB"},
		{5 * MB, "5MB"},
		{GB + 512*MB, "1.5GB"},
		{2 * TB, "2TB"},
		{-5 * MB, "-5MB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.size))
			assert.Equal(t, tt.want, tt.size.String())
		})
	}
}

func TestBytes(t *testing.T) {
	assert.Equal(t, int64(5242880), (5 * MB).Bytes())
}
