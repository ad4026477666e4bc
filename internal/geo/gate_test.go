package geo

import (
	"strings"
	"testing"
)

func TestValidateCoordinates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		lat, lon   float64
		wantOK     bool
		wantReason string
	}{
		{
			name:   "vienna fix",
			lat:    48.2082,
			lon:    16.3738,
			wantOK: true,
		},
		{
			name:       "sentinel latitude",
			lat:        -999,
			lon:        16.3738,
			wantOK:     false,
			wantReason: "Placeholder coordinates",
		},
		{
			name:       "sentinel longitude",
			lat:        48.2082,
			lon:        -999,
			wantOK:     false,
			wantReason: "Placeholder coordinates",
		},
		{
			name:       "null island",
			lat:        0,
			lon:        0,
			wantOK:     false,
			wantReason: "Zero coordinates",
		},
		{
			name:   "zero latitude only",
			lat:    0,
			lon:    16.3738,
			wantOK: true,
		},
		{
			name:   "zero longitude only",
			lat:    48.2082,
			lon:    0,
			wantOK: true,
		},
		{
			name:       "latitude above range",
			lat:        90.0001,
			lon:        0,
			wantOK:     false,
			wantReason: "Invalid latitude",
		},
		{
			name:       "latitude below range",
			lat:        -90.0001,
			lon:        0,
			wantOK:     false,
			wantReason: "Invalid latitude",
		},
		{
			name:       "longitude above range",
			lat:        0,
			lon:        180.0001,
			wantOK:     false,
			wantReason: "Invalid longitude",
		},
		{
			name:       "longitude below range",
			lat:        0,
			lon:        -180.0001,
			wantOK:     false,
			wantReason: "Invalid longitude",
		},
		{
			name:   "north pole boundary",
			lat:    90,
			lon:    45,
			wantOK: true,
		},
		{
			name:   "south pole boundary",
			lat:    -90,
			lon:    45,
			wantOK: true,
		},
		{
			name:   "antimeridian east",
			lat:    45,
			lon:    180,
			wantOK: true,
		},
		{
			name:   "antimeridian west",
			lat:    45,
			lon:    -180,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, reason := ValidateCoordinates(tt.lat, tt.lon)
			if ok != tt.wantOK {
				t.Errorf("ValidateCoordinates(%v, %v) ok = %v, want %v", tt.lat, tt.lon, ok, tt.wantOK)
			}
			if tt.wantReason != "" && !strings.Contains(reason, tt.wantReason) {
				t.Errorf("reason = %q, want it to contain %q", reason, tt.wantReason)
			}
			if tt.wantOK && reason != "" {
				t.Errorf("valid coordinates produced reason %q", reason)
			}
		})
	}
}
