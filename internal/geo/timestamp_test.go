package geo

import (
	"testing"
	"time"
)

func TestNormalizeISOTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short fraction padded", "2026-05-01T12:00:00.5", "2026-05-01T12:00:00.500000"},
		{"three digit fraction", "2026-05-01T12:00:00.123", "2026-05-01T12:00:00.123000"},
		{"exact six digits", "2026-05-01T12:00:00.123456", "2026-05-01T12:00:00.123456"},
		{"long fraction truncated", "2026-05-01T12:00:00.123456789", "2026-05-01T12:00:00.123456"},
		{"no fraction", "2026-05-01T12:00:00", "2026-05-01T12:00:00"},
		{"zulu suffix stripped", "2026-05-01T12:00:00.5Z", "2026-05-01T12:00:00.500000"},
		{"utc offset stripped", "2026-05-01T12:00:00+00:00", "2026-05-01T12:00:00"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NormalizeISOTimestamp(tt.in); got != tt.want {
				t.Errorf("NormalizeISOTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseClientTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		currentDateTime    string
		formattedTimestamp string
		startDateTime      string
		want               time.Time
	}{
		{
			name:            "iso current preferred",
			currentDateTime: "2026-05-01T12:30:45.5",
			want:            time.Date(2026, 5, 1, 12, 30, 45, 500_000_000, time.Local),
		},
		{
			name:               "current wins over formatted",
			currentDateTime:    "2026-05-01T12:30:45",
			formattedTimestamp: "01-05-2026 09:00:00",
			want:               time.Date(2026, 5, 1, 12, 30, 45, 0, time.Local),
		},
		{
			name:            "space separated current",
			currentDateTime: "2026-05-01 12:30:45",
			want:            time.Date(2026, 5, 1, 12, 30, 45, 0, time.Local),
		},
		{
			name:               "formatted fallback",
			formattedTimestamp: "01-05-2026 09:00:00",
			want:               time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local),
		},
		{
			name:            "garbage current falls through to formatted",
			currentDateTime: "not a timestamp",

			formattedTimestamp: "01-05-2026 09:00:00",
			want:               time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local),
		},
		{
			name:          "start as last explicit resort",
			startDateTime: "2026-05-01T08:00:00.25",
			want:          time.Date(2026, 5, 1, 8, 0, 0, 250_000_000, time.Local),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseClientTimestamp(tt.currentDateTime, tt.formattedTimestamp, tt.startDateTime)
			if !got.Equal(tt.want) {
				t.Errorf("ParseClientTimestamp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseClientTimestampFallsBackToServerClock(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got := ParseClientTimestamp("", "", "")
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("expected server clock fallback, got %v outside [%v, %v]", got, before, after)
	}
}
