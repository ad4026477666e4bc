package geo

import (
	"strings"
	"time"
)

// WireTimestampFormat is the local-clock layout used on the in-memory wire:
// history replay sort key, retention comparisons, and every broadcast
// "timestamp" field.
const WireTimestampFormat = "02-01-2006 15:04:05"

// isoLayouts are the accepted ISO-8601 layouts for client timestamps, tried
// in order after microsecond normalization.
var isoLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
}

// ParseClientTimestamp resolves the producer wall-clock for a frame.
// Preference order: ISO currentDateTime, then the wire-format
// formattedTimestamp, then ISO startDateTime, then the server clock.
func ParseClientTimestamp(currentDateTime, formattedTimestamp, startDateTime string) time.Time {
	if currentDateTime != "" {
		if t, ok := parseISO(currentDateTime); ok {
			return t
		}
		// Some client builds send "YYYY-MM-DD HH:MM:SS" without the T.
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", currentDateTime, time.Local); err == nil {
			return t
		}
	}

	if formattedTimestamp != "" {
		if t, err := time.ParseInLocation(WireTimestampFormat, formattedTimestamp, time.Local); err == nil {
			return t
		}
	}

	if startDateTime != "" {
		if t, ok := parseISO(startDateTime); ok {
			return t
		}
	}

	return time.Now()
}

// parseISO parses an ISO-8601 timestamp with the fractional second field
// normalized to exactly six digits. Trailing Z / +00:00 offsets are
// stripped; client clocks are local wall-clock.
func parseISO(s string) (time.Time, bool) {
	if !strings.Contains(s, "T") {
		return time.Time{}, false
	}

	s = NormalizeISOTimestamp(s)

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeISOTimestamp pads or truncates the fractional second part of an
// ISO timestamp to exactly six digits. Android's LocalDateTime drops
// trailing zeros, which strict layouts reject.
func NormalizeISOTimestamp(s string) string {
	s = strings.ReplaceAll(s, "Z", "")
	s = strings.ReplaceAll(s, "+00:00", "")

	datetime, frac, ok := strings.Cut(s, ".")
	if !ok {
		return s
	}

	switch {
	case len(frac) < 6:
		frac += strings.Repeat("0", 6-len(frac))
	case len(frac) > 6:
		frac = frac[:6]
	}

	return datetime + "." + frac
}
