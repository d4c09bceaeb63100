package opcua

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/plcwire/uabridge/internal/tags"
)

// ParsePayload converts an inbound command payload into the canonical
// value for the tag's declared type. The payload is trimmed first.
//
// Canonical types are bool, int64, float64 and string.
//
// Accepted forms:
//   - bool: true/1/on/yes and false/0/off/no, case-insensitive
//   - int: decimal integer, or a float with no fractional loss intent
//     ("42.0" becomes 42, "42.7" truncates to 42)
//   - float: anything strconv.ParseFloat accepts
//   - string: the trimmed payload as-is
func ParsePayload(t tags.DataType, payload string) (any, error) {
	s := strings.TrimSpace(payload)

	switch t {
	case tags.TypeBool:
		switch strings.ToLower(s) {
		case "true", "1", "on", "yes":
			return true, nil
		case "false", "0", "off", "no":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidPayload, s)

	case tags.TypeInt:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, nil
		}
		// Accept float syntax for integer tags; truncates toward zero.
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), nil
		}
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidPayload, s)

	case tags.TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidPayload, s)
		}
		return f, nil

	case tags.TypeString:
		return s, nil
	}

	return nil, fmt.Errorf("%w: unsupported data type %v", ErrInvalidPayload, t)
}

// CoerceValue converts a decoded OPC UA variant value into the canonical
// value for the tag's declared type.
//
// PLCs report in whatever width the server exposes (Int16 from an S7 INT,
// float32 from a REAL), so every plausible numeric width is accepted.
func CoerceValue(t tags.DataType, v any) (any, error) {
	switch t {
	case tags.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if n, ok := toInt64(v); ok {
			return n != 0, nil
		}
		return nil, fmt.Errorf("%w: %T is not a boolean", ErrTypeMismatch, v)

	case tags.TypeInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
		if f, ok := toFloat64(v); ok {
			return int64(f), nil
		}
		return nil, fmt.Errorf("%w: %T is not an integer", ErrTypeMismatch, v)

	case tags.TypeFloat:
		if f, ok := toFloat64(v); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: non-finite float", ErrTypeMismatch)
			}
			return f, nil
		}
		if n, ok := toInt64(v); ok {
			return float64(n), nil
		}
		return nil, fmt.Errorf("%w: %T is not a number", ErrTypeMismatch, v)

	case tags.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %T is not a string", ErrTypeMismatch, v)
	}

	return nil, fmt.Errorf("%w: unsupported data type %v", ErrTypeMismatch, t)
}

// toInt64 widens any integer type to int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// toFloat64 widens any float type to float64.
func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return 0, false
}

// FormatValue renders a canonical value as a state topic payload.
//
// Booleans become "true"/"false", floats use the shortest representation
// that round-trips ("22.5", not "22.500000"), integers are plain decimal.
func FormatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
