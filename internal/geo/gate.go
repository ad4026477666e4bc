// Package geo implements the per-frame GPS plausibility checks the hub
// applies before a point is allowed to touch durable state: coordinate
// validity gating, producer-restart (reset) detection, and client
// timestamp parsing.
package geo

import "fmt"

// SentinelCoordinate is the placeholder value producers send when no fix
// is available.
const SentinelCoordinate = -999.0

// ValidateCoordinates classifies a coordinate pair. It returns ok=false and
// a human-readable reason for sentinel values, the (0,0) null island fix,
// and out-of-range latitudes/longitudes. The range bounds are inclusive:
// exactly +-90 / +-180 is a valid fix.
func ValidateCoordinates(lat, lon float64) (bool, string) {
	if lat == SentinelCoordinate || lon == SentinelCoordinate {
		return false, "Placeholder coordinates (-999)"
	}

	if lat == 0 && lon == 0 {
		return false, "Zero coordinates (likely GPS error)"
	}

	if lat < -90 || lat > 90 {
		return false, fmt.Sprintf("Invalid latitude: %v", lat)
	}

	if lon < -180 || lon > 180 {
		return false, fmt.Sprintf("Invalid longitude: %v", lon)
	}

	return true, ""
}
