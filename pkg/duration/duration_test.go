package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"720h", 720 * time.Hour},
		{"100ms", 100 * time.Millisecond},
		{"1d", Day},
		{"30d", 30 * Day},
		{"2w", 2 * Week},
		{"1w2d12h", Week + 2*Day + 12*time.Hour},
		{"1mo", Month},
		{"1y", Year},
		{"30 days", 30 * Day},
		{"2 weeks", 2 * Week},
		{"1 month", Month},
		{"3 hours", 3 * time.Hour},
		{"45 minutes", 45 * time.Minute},
		{"10 secs", 10 * time.Second},
		{"1 hr 30 min", 90 * time.Minute},
		{"1.5h", 90 * time.Minute},
		{"-30m", -30 * time.Minute},
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
	for _, input := range []string{"", "abc", "12", "5 fortnights", "h30m", "--1h"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Minute, "1h30m"},
		{36 * time.Hour, "1d12h"},
		{Week + 2*Day + 12*time.Hour, "1w2d12h"},
		{45 * Day, "6w3d"},
		{Year, "1y"},
		{time.Hour + 10*time.Second, "1h10s"},
		{1500 * time.Millisecond, "1s500ms"},
		{-90 * time.Minute, "-1h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.d))
		})
	}
}

func TestFormatRoundTrips(t *testing.T) {
	for _, d := range []time.Duration{
		30 * time.Second,
		90 * time.Minute,
		36 * time.Hour,
		30 * Day,
		2*Week + 3*Day,
	} {
		back, err := Parse(Format(d))
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
	assert.Equal(t, 30*Day, MustParse("30d"))
}
