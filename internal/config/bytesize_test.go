package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSizeUnmarshalText(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1024", 1024},
		{"500KB", 500 * 1024},
		{"5MB", 5 * 1024 * 1024},
		{"1.5GB", 1536 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var b ByteSize
			require.NoError(t, b.UnmarshalText([]byte(tt.input)))
			assert.Equal(t, tt.want, b.Bytes())
		})
	}

	var b ByteSize
	assert.Error(t, b.UnmarshalText([]byte("lots")))
}

func TestByteSizeJSONRoundTrip(t *testing.T) {
	type limits struct {
		MinFreeDisk ByteSize `json:"min_free_disk"`
	}

	var cfg limits
	require.NoError(t, json.Unmarshal([]byte(`{"min_free_disk":"500MB"}`), &cfg))
	assert.Equal(t, int64(500*1024*1024), cfg.MinFreeDisk.Bytes())

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"min_free_disk":"500MB"}`, string(out))

	// Raw byte counts still accepted.
	require.NoError(t, json.Unmarshal([]byte(`{"min_free_disk":1048576}`), &cfg))
	assert.Equal(t, int64(1<<20), cfg.MinFreeDisk.Bytes())
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "5MB", ByteSize(5*1024*1024).String())
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "0B", ByteSize(0).String())
}
