package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Canonical returns a stable serialization of v suitable as an equality
// signature. Map keys are emitted in sorted order so structurally equal
// documents produce the same string regardless of key insertion order.
func Canonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical encode %T: %w", v, err)
	}
	return string(b), nil
}

// MustMarshal encodes v as JSON, returning "{}" for values that cannot be
// encoded. Used for props blobs built from plain structs and maps.
func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// FlexibleString renders a scalar returned by a database driver as a string.
// Integral floats are printed without a fractional part, byte slices are
// treated as text, and times use RFC 3339. Returns nil for nil input.
func FlexibleString(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case []byte:
		s = string(val)
	case time.Time:
		s = val.UTC().Format(time.RFC3339Nano)
	case float64:
		s = formatFloat(val)
	case float32:
		s = formatFloat(float64(val))
	case int64:
		s = strconv.FormatInt(val, 10)
	case int:
		s = strconv.Itoa(val)
	case int32:
		s = strconv.FormatInt(int64(val), 10)
	case bool:
		s = strconv.FormatBool(val)
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprintf("%v", val)
	}
	return &s
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
