package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value Coercion
// ---------------------------------------------------------------------------

// Decoded JSON values arrive as float64, string, bool, nil, or nested
// containers. Producers are sloppy about numeric types (historic client
// builds quote numbers), so every numeric read goes through floatValue.

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func intValue(v any) (int, bool) {
	f, ok := floatValue(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func int64Value(v any) (int64, bool) {
	f, ok := floatValue(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// WindDirectionDegrees normalizes a wind direction that oscillates between
// string and numeric across client versions. Non-numeric strings collapse
// to 0, never an error; weather is advisory data.
func WindDirectionDegrees(v any) float64 {
	f, ok := floatValue(v)
	if !ok {
		return 0
	}
	return f
}

// Marshal encodes a frame for the wire. Thin wrapper so callers do not
// import encoding/json for every send.
func Marshal(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding %T frame: %w", frame, err)
	}
	return data, nil
}
