package gadget

import (
	"strconv"
	"strings"
)

// toFloat64 accepts the numeric shapes produced by JSON decoding and ZCL decoding.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toUint64(v any) (uint64, bool) {
	f, ok := toFloat64(v)
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

// ToBool interprets on/off style values: booleans, 0/1 numbers and
// the strings "on"/"off"/"true"/"false".
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "on":
			return true, true
		case "off":
			return false, true
		}
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	if f, ok := toFloat64(v); ok {
		return f != 0, true
	}
	return false, false
}

// ToFloat64 is the exported numeric coercion used by telemetry sinks.
// Booleans become 0 or 1.
func ToFloat64(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return toFloat64(v)
}
