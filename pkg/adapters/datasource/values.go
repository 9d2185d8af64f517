package datasource

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tolerant converters for catalog values. Drivers disagree on the Go types
// they return for the same catalog column (MySQL returns []byte for text,
// Oracle returns NUMBER as string or float, SQLite returns int64 for
// booleans), so catalog rows are read through these.

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }

// AsString converts a driver value to a string. The second result is false
// for nil and for values that have no sensible string form.
func AsString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	case fmt.Stringer:
		return val.String(), true
	case int64, int32, int, int16, int8, uint64, uint32, uint16, uint8, float64, float32, bool:
		return fmt.Sprintf("%v", val), true
	}
	return "", false
}

// AsInt64 converts a driver value to an integer.
func AsInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case int:
		return int64(val), true
	case int16:
		return int64(val), true
	case int8:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint8:
		return int64(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int64(val), true
	case float32:
		return int64(val), true
	case []byte:
		return parseInt(string(val))
	case string:
		return parseInt(val)
	case fmt.Stringer:
		// pgtype.Numeric and decimal types
		return parseInt(val.String())
	}
	return 0, false
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f), true
	}
	return 0, false
}

// AsBool converts a driver value to a boolean. Accepts YES/NO and Y/N as
// reported by information_schema and Oracle dictionaries.
func AsBool(v any) (bool, bool) {
	switch val := v.(type) {
	case nil:
		return false, false
	case bool:
		return val, true
	case []byte:
		return parseBool(string(val))
	case string:
		return parseBool(val)
	}
	if n, ok := AsInt64(v); ok {
		return n != 0, true
	}
	return false, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "t", "1":
		return true, true
	case "no", "n", "false", "f", "0":
		return false, true
	}
	return false, false
}

// GetString reads a column through AsString.
func (r Row) GetString(name string) (string, bool) {
	v, _ := r.Get(name)
	return AsString(v)
}

// GetInt64 reads a column through AsInt64.
func (r Row) GetInt64(name string) (int64, bool) {
	v, _ := r.Get(name)
	return AsInt64(v)
}

// GetBool reads a column through AsBool.
func (r Row) GetBool(name string) (bool, bool) {
	v, _ := r.Get(name)
	return AsBool(v)
}
