package common

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CoerceFloat accepts a JSON value that may arrive as either a number or a
// numeric string (multipart form clients send strings) and returns the float.
func CoerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// CoerceInt accepts a JSON value that may arrive as either a number or a
// numeric string and returns the integer. Fractional values are rejected.
func CoerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
