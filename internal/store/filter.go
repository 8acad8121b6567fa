package store

import (
	"encoding/json"
	"strings"
)

// Filter ops. Equality works on any JSON scalar; ordering works on numbers
// and strings (ISO dates order lexically).
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
)

// Filter is one predicate over a document field. Field may be a dotted path
// into nested objects.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// WhereOp builds a filter with an explicit operator.
func WhereOp(field, op string, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Matches evaluates every filter against the raw document. Documents that
// are not JSON objects match only an empty filter list.
func Matches(data []byte, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	for _, f := range filters {
		value, ok := lookupField(doc, f.Field)
		if !ok {
			return false
		}
		if !compare(value, f.Op, f.Value) {
			return false
		}
	}
	return true
}

func lookupField(doc map[string]any, field string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compare(got any, op string, want any) bool {
	if gn, ok := toFloat(got); ok {
		if wn, ok := toFloat(want); ok {
			return compareOrdered(gn, op, wn)
		}
		return false
	}
	if gs, ok := got.(string); ok {
		if ws, ok := want.(string); ok {
			return compareOrdered(gs, op, ws)
		}
		return false
	}
	if gb, ok := got.(bool); ok {
		wb, ok := want.(bool)
		if !ok {
			return false
		}
		switch op {
		case OpEqual:
			return gb == wb
		case OpNotEqual:
			return gb != wb
		}
		return false
	}
	if got == nil {
		switch op {
		case OpEqual:
			return want == nil
		case OpNotEqual:
			return want != nil
		}
	}
	return false
}

func compareOrdered[T float64 | string](got T, op string, want T) bool {
	switch op {
	case OpEqual:
		return got == want
	case OpNotEqual:
		return got != want
	case OpLess:
		return got < want
	case OpLessOrEqual:
		return got <= want
	case OpGreater:
		return got > want
	case OpGreaterOrEqual:
		return got >= want
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
