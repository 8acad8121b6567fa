// Package bytesize parses and formats human-readable byte counts. Units are
// binary (1024-based) regardless of spelling: "5MB", "5MiB", and "5m" all
// mean 5*1024*1024 bytes. A bare number is a byte count.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024 * B
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
	PB Size = 1024 * TB
)

// suffixes, largest first, for Format.
var suffixes = []struct {
	size Size
	name string
}{
	{PB, "PB"},
	{TB, "TB"},
	{GB, "GB"},
	{MB, "MB"},
	{KB, "KB"},
}

func unitFor(name string) (Size, bool) {
	switch strings.ToLower(strings.TrimSuffix(name, "s")) {
	case "", "b", "byte":
		return B, true
	case "k", "kb", "kib":
		return KB, true
	case "m", "mb", "mib":
		return MB, true
	case "g", "gb", "gib":
		return GB, true
	case "t", "tb", "tib":
		return TB, true
	case "p", "pb", "pib":
		return PB, true
	}
	return 0, false
}

// Parse parses strings like "500KB", "1.5 GB", "5MiB", or "1024". Whitespace
// between value and unit is optional; units are case-insensitive.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	split := len(trimmed)
	for i, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	if split == 0 {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}

	value, err := strconv.ParseFloat(trimmed[:split], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}
	unit, ok := unitFor(strings.TrimSpace(trimmed[split:]))
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", strings.TrimSpace(trimmed[split:]))
	}
	return Size(value * float64(unit)), nil
}

// MustParse is Parse for package-level constants; it panics on error.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a size with the largest unit that keeps the value at or
// above one, trimming trailing zeros: 5242880 becomes "5MB", 1610612736
// becomes "1.5GB".
func Format(s Size) string {
	neg := ""
	if s < 0 {
		neg = "-"
		s = -s
	}
	for _, u := range suffixes {
		if s >= u.size {
			v := strconv.FormatFloat(float64(s)/float64(u.size), 'f', 2, 64)
			v = strings.TrimRight(strings.TrimRight(v, "0"), ".")
			return neg + v + u.name
		}
	}
	return fmt.Sprintf("%s%dB", neg, s)
}

// Bytes returns the size as a plain int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

func (s Size) String() string {
	return Format(s)
}
