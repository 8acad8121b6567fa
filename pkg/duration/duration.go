// Package duration parses and formats human-readable durations. It accepts
// everything time.ParseDuration does and adds calendar-ish units (days,
// weeks, months, years) plus spelled-out unit names, so config values like
// "30 days" or "2w" work. Months are 30 days and years 365; these are
// retention knobs, not calendar math.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// units maps every accepted unit spelling to its duration. Plurals for the
// spelled-out names are generated in init rather than listed out.
var units = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanosecond": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond, "micro": time.Microsecond, "microsecond": time.Microsecond,
	"ms": time.Millisecond, "milli": time.Millisecond, "millisecond": time.Millisecond,
	"s": time.Second, "sec": time.Second, "second": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour,
	"d": Day, "day": Day,
	"w": Week, "wk": Week, "week": Week,
	"mo": Month, "month": Month,
	"y": Year, "yr": Year, "year": Year,
}

func init() {
	plurals := map[string]time.Duration{}
	for name, d := range units {
		if len(name) > 2 || name == "wk" || name == "yr" || name == "hr" || name == "mo" {
			plurals[name+"s"] = d
		}
	}
	plurals["mins"] = time.Minute
	plurals["secs"] = time.Second
	for name, d := range plurals {
		units[name] = d
	}
}

// Parse parses a human-readable duration string such as "90s", "1h30m",
// "30 days", or "1w2d12h". Whitespace between value and unit is optional.
// A bare number other than "0" is rejected; every value needs a unit.
func Parse(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(s[1:])
	}
	if s == "0" {
		return 0, nil
	}

	var total time.Duration
	for s != "" {
		s = strings.TrimSpace(s)

		// Value: digits with an optional fraction.
		i := 0
		for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("duration: invalid value %q", orig)
		}
		value, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid value %q", orig)
		}
		s = strings.TrimSpace(s[i:])

		// Unit: everything up to the next digit or space.
		j := 0
		for j < len(s) && !unicode.IsDigit(rune(s[j])) && !unicode.IsSpace(rune(s[j])) {
			j++
		}
		if j == 0 {
			return 0, fmt.Errorf("duration: missing unit in %q", orig)
		}
		unit, ok := units[strings.ToLower(s[:j])]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", s[:j], orig)
		}
		s = s[j:]

		total += time.Duration(value * float64(unit))
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is Parse for package-level constants; it panics on error.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// formatUnits is the descending unit ladder Format walks. Months are
// deliberately absent: "45d" is less surprising than "1mo15d" given the
// 30-day approximation.
var formatUnits = []struct {
	d    time.Duration
	name string
}{
	{Year, "y"},
	{Week, "w"},
	{Day, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
	{time.Millisecond, "ms"},
	{time.Microsecond, "µs"},
	{time.Nanosecond, "ns"},
}

// Format renders a duration compactly with zero components omitted:
// 36*time.Hour becomes "1d12h", 90*time.Second becomes "1m30s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	for _, u := range formatUnits {
		if n := d / u.d; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.name)
			d -= n * u.d
		}
	}
	return b.String()
}
