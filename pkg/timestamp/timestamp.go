// Package timestamp provides standardized timestamp normalization for
// livemirror records.
//
// The canonical representation is the RFC3339 UTC string. Remote document
// stores hand back their own timestamp types; any value that exposes a
// "convert to time" capability is rewritten to its canonical string form
// during record parsing so that callers always see one shape.
//
// Zero Value Semantics:
//   - A zero time.Time normalizes to the empty string
//   - Values without a timestamp capability are left untouched
package timestamp

import (
	"strconv"
	"time"
)

// Timestamper is the capability remote-store timestamp types expose to
// convert themselves to Go time. Protobuf timestamps and most store SDK
// timestamp wrappers satisfy it.
type Timestamper interface {
	AsTime() time.Time
}

// Now returns the current time in canonical RFC3339 UTC form.
func Now() string {
	return Format(time.Now())
}

// Format converts a time.Time to the canonical RFC3339 UTC string.
// Returns empty string for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Parse converts various timestamp representations to time.Time.
// Supports:
//   - string (RFC3339, or a Unix second/millisecond numeric string)
//   - int64 / int / float64 (Unix seconds, or milliseconds if > 1e12)
//   - time.Time / *time.Time
//   - Timestamper values
//
// Returns the zero time for anything else.
func Parse(input any) time.Time {
	switch v := input.(type) {
	case nil:
		return time.Time{}

	case time.Time:
		return v

	case *time.Time:
		if v == nil {
			return time.Time{}
		}
		return *v

	case Timestamper:
		return v.AsTime()

	case int64:
		return fromUnix(v)

	case int:
		return fromUnix(int64(v))

	case float64:
		return fromUnix(int64(v))

	case string:
		if v == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return fromUnix(n)
		}
		return time.Time{}

	default:
		return time.Time{}
	}
}

// Normalize rewrites a timestamp-capable value to its canonical RFC3339
// string form. The second return reports whether the value carried a
// timestamp capability; when false the value must be passed through as-is.
//
// Only values that genuinely expose "convert to time" are rewritten.
// Bare numbers and strings stay opaque record fields.
func Normalize(v any) (string, bool) {
	switch tv := v.(type) {
	case time.Time:
		return Format(tv), true
	case *time.Time:
		if tv == nil {
			return "", false
		}
		return Format(*tv), true
	case Timestamper:
		return Format(tv.AsTime()), true
	default:
		return "", false
	}
}

// fromUnix interprets n as Unix milliseconds when it is larger than 1e12
// (mid-2001 in milliseconds) and as Unix seconds otherwise.
func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
