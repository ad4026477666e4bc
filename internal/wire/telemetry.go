package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Inbound Classification
// ---------------------------------------------------------------------------

var (
	// ErrMalformedFrame is returned for frames that are not valid JSON
	// objects.
	ErrMalformedFrame = errors.New("wire: malformed frame")

	// ErrMissingFields is returned for telemetry frames lacking one or
	// more required keys.
	ErrMissingFields = errors.New("wire: missing required fields")
)

// Frame is a decoded inbound JSON frame prior to dispatch.
type Frame struct {
	// Type is the frame's "type" key, "" for telemetry and waypoint
	// frames (which have none).
	Type string

	// SessionID and SessionIDs carry the request arguments for the typed
	// operations that take them.
	SessionID  string
	SessionIDs []string

	// Raw is the full decoded document.
	Raw map[string]any
}

// DecodeFrame parses one inbound JSON text frame. The bare-string
// heartbeat is handled by the caller before decoding.
func DecodeFrame(data []byte) (*Frame, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := &Frame{
		Type:      stringValue(raw["type"]),
		SessionID: stringValue(raw["sessionId"]),
		Raw:       raw,
	}

	if ids, ok := raw["sessionIds"].([]any); ok {
		f.SessionIDs = make([]string, 0, len(ids))
		for _, id := range ids {
			if s := stringValue(id); s != "" {
				f.SessionIDs = append(f.SessionIDs, s)
			}
		}
	}

	return f, nil
}

// IsWaypoint reports whether the frame carries a waypoint object with the
// required keys.
func (f *Frame) IsWaypoint() bool {
	wp, ok := f.Raw["waypoint"].(map[string]any)
	if !ok {
		return false
	}
	for _, key := range []string{"name", "latitude", "longitude"} {
		if _, present := wp[key]; !present {
			return false
		}
	}
	return f.SessionID != ""
}

// telemetryRequired are the keys a telemetry frame must carry with
// non-null numeric values, besides sessionId and a name.
var telemetryRequired = []string{
	"latitude",
	"longitude",
	"distance",
	"currentSpeed",
	"maxSpeed",
	"movingAverageSpeed",
	"averageSpeed",
}

// ---------------------------------------------------------------------------
// Telemetry
// ---------------------------------------------------------------------------

// Telemetry is a validated live tracking frame.
type Telemetry struct {
	SessionID string
	Name      string

	Latitude           float64
	Longitude          float64
	Distance           float64
	CurrentSpeed       float64
	MaxSpeed           float64
	MovingAverageSpeed float64
	AverageSpeed       float64

	raw map[string]any
}

// Telemetry validates the frame as a live tracking point and extracts the
// required fields. The error wraps ErrMissingFields and names every
// missing key, matching what gets logged before the frame is dropped.
func (f *Frame) Telemetry() (*Telemetry, error) {
	var missing []string

	if f.SessionID == "" {
		missing = append(missing, "sessionId")
	}

	name := stringValue(f.Raw["firstname"])
	if name == "" {
		name = stringValue(f.Raw["person"])
	}
	if name == "" {
		missing = append(missing, "firstname or person")
	}

	values := make(map[string]float64, len(telemetryRequired))
	for _, key := range telemetryRequired {
		v, ok := floatValue(f.Raw[key])
		if !ok {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	return &Telemetry{
		SessionID:          f.SessionID,
		Name:               name,
		Latitude:           values["latitude"],
		Longitude:          values["longitude"],
		Distance:           values["distance"],
		CurrentSpeed:       values["currentSpeed"],
		MaxSpeed:           values["maxSpeed"],
		MovingAverageSpeed: values["movingAverageSpeed"],
		AverageSpeed:       values["averageSpeed"],
		raw:                f.Raw,
	}, nil
}

// String returns the named raw key as a string, or "".
func (t *Telemetry) String(key string) string {
	return stringValue(t.raw[key])
}

// Float returns the named raw key coerced to float64.
func (t *Telemetry) Float(key string) (float64, bool) {
	return floatValue(t.raw[key])
}

// Int returns the named raw key coerced to int.
func (t *Telemetry) Int(key string) (int, bool) {
	return intValue(t.raw[key])
}

// Has reports whether the producer sent the named key.
func (t *Telemetry) Has(key string) bool {
	_, ok := t.raw[key]
	return ok
}

// BroadcastPoint builds the full broadcast shape for the frame: every raw
// key passed through, the wire timestamp and (possibly reset) session id
// stamped on, the kinematic and slope fields coerced to float64, and the
// firstname/person pair kept in sync for old map clients.
func (t *Telemetry) BroadcastPoint(timestamp, sessionID string) Point {
	p := make(Point, len(t.raw)+4)
	for k, v := range t.raw {
		p[k] = v
	}
	delete(p, "type")

	p["timestamp"] = timestamp
	p["sessionId"] = sessionID

	p["latitude"] = t.Latitude
	p["longitude"] = t.Longitude
	p["distance"] = t.Distance
	p["currentSpeed"] = t.CurrentSpeed
	p["maxSpeed"] = t.MaxSpeed
	p["movingAverageSpeed"] = t.MovingAverageSpeed
	p["averageSpeed"] = t.AverageSpeed

	for _, key := range []string{"slope", "averageSlope", "maxUphillSlope", "maxDownhillSlope"} {
		f, _ := floatValue(t.raw[key])
		p[key] = f
	}

	p["firstname"] = t.Name
	p["person"] = t.Name

	if hr, ok := intValue(t.raw["heartRate"]); ok {
		p["heartRate"] = hr
	}

	for _, key := range []string{"temperature", "windSpeed", "pressure", "altitudeFromPressure", "seaLevelPressure"} {
		if f, ok := floatValue(t.raw[key]); ok {
			p[key] = f
		}
	}

	// Historic frames send windDirection as either a bare number or a
	// string; the broadcast shape carries the string form.
	if v, ok := t.raw["windDirection"]; ok {
		p["windDirection"] = stringValue(v)
	}

	if h, ok := intValue(t.raw["humidity"]); ok {
		p["relativeHumidity"] = h
	}
	for _, key := range []string{"weatherTimestamp", "weatherCode", "pressureAccuracy"} {
		if n, ok := intValue(t.raw[key]); ok {
			p[key] = n
		}
	}

	return p
}

// InvalidPoint builds the shape stored (but never persisted) for a frame
// the coordinate gate rejected. It keeps the raw data for diagnostics and
// carries the rejection reason.
func (t *Telemetry) InvalidPoint(timestamp, reason string) Point {
	p := make(Point, len(t.raw)+4)
	for k, v := range t.raw {
		p[k] = v
	}
	delete(p, "type")

	p["timestamp"] = timestamp
	p["sessionId"] = t.SessionID
	p["invalidCoordinates"] = true
	p["reason"] = reason
	return p
}
