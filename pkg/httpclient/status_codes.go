package httpclient

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusCodeSet is a set of HTTP status codes expressed as inclusive ranges.
// The zero value is empty; an empty set accepts nothing, so callers that want
// "anything 2xx" use Default2xxStatusCodes.
type StatusCodeSet struct {
	ranges [][2]int
}

// ParseStatusCodes parses a spec like "200-299", "200-399,404", or "418".
func ParseStatusCodes(s string) (*StatusCodeSet, error) {
	set := &StatusCodeSet{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			hi = lo
		}
		min, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid status code %q", part)
		}
		max, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid status code %q", part)
		}
		if min > max || min < 100 || max > 599 {
			return nil, fmt.Errorf("httpclient: invalid status range %q", part)
		}
		set.ranges = append(set.ranges, [2]int{min, max})
	}
	if len(set.ranges) == 0 {
		return nil, fmt.Errorf("httpclient: empty status code spec %q", s)
	}
	return set, nil
}

// MustParseStatusCodes is ParseStatusCodes for literals; it panics on error.
func MustParseStatusCodes(s string) *StatusCodeSet {
	set, err := ParseStatusCodes(s)
	if err != nil {
		panic(err)
	}
	return set
}

// Default2xxStatusCodes returns the conventional success set.
func Default2xxStatusCodes() *StatusCodeSet {
	return &StatusCodeSet{ranges: [][2]int{{200, 299}}}
}

// Contains reports whether the code is in the set.
func (s *StatusCodeSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	for _, r := range s.ranges {
		if code >= r[0] && code <= r[1] {
			return true
		}
	}
	return false
}

func (s *StatusCodeSet) String() string {
	if s == nil || len(s.ranges) == 0 {
		return ""
	}
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		if r[0] == r[1] {
			parts[i] = strconv.Itoa(r[0])
		} else {
			parts[i] = fmt.Sprintf("%d-%d", r[0], r[1])
		}
	}
	return strings.Join(parts, ",")
}
