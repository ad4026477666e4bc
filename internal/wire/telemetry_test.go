package wire

import (
	"errors"
	"strings"
	"testing"
)

const validTelemetry = `{
	"sessionId": "s1",
	"firstname": "Ann",
	"latitude": 48.1818,
	"longitude": 16.3607,
	"distance": 1250.5,
	"currentSpeed": 12.4,
	"maxSpeed": 31.0,
	"movingAverageSpeed": 14.2,
	"averageSpeed": 11.9
}`

func TestDecodeFrameTyped(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"type":"follow_users","sessionIds":["a","b"]}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Type != TypeFollowUsers {
		t.Errorf("Type = %q, want %q", f.Type, TypeFollowUsers)
	}
	if len(f.SessionIDs) != 2 || f.SessionIDs[0] != "a" || f.SessionIDs[1] != "b" {
		t.Errorf("SessionIDs = %v, want [a b]", f.SessionIDs)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	t.Parallel()

	if _, err := DecodeFrame([]byte(`{not json`)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("err = %v, want ErrMalformedFrame", err)
	}
	// A JSON array is not a frame either.
	if _, err := DecodeFrame([]byte(`[1,2,3]`)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("err = %v, want ErrMalformedFrame for non-object", err)
	}
}

func TestTelemetryValid(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(validTelemetry))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	tel, err := f.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if tel.SessionID != "s1" || tel.Name != "Ann" {
		t.Errorf("identity = (%q, %q), want (s1, Ann)", tel.SessionID, tel.Name)
	}
	if tel.Latitude != 48.1818 || tel.Distance != 1250.5 {
		t.Errorf("unexpected numeric fields: lat=%v distance=%v", tel.Latitude, tel.Distance)
	}
}

func TestTelemetryLegacyPersonKey(t *testing.T) {
	t.Parallel()

	frame := strings.Replace(validTelemetry, `"firstname": "Ann"`, `"person": "Bob"`, 1)
	f, err := DecodeFrame([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	tel, err := f.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	if tel.Name != "Bob" {
		t.Errorf("Name = %q, want Bob via legacy person key", tel.Name)
	}
}

func TestTelemetryMissingFields(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"sessionId":"s1","latitude":48.0,"longitude":16.0}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	_, err = f.Telemetry()
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("err = %v, want ErrMissingFields", err)
	}
	for _, want := range []string{"firstname or person", "distance", "currentSpeed", "averageSpeed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name missing field %q", err, want)
		}
	}
}

func TestBroadcastPointShape(t *testing.T) {
	t.Parallel()

	frame := strings.Replace(validTelemetry, `"averageSpeed": 11.9`,
		`"averageSpeed": 11.9, "heartRate": 142.0, "windDirection": 270, "humidity": 65, "altitude": 210.5`, 1)
	f, err := DecodeFrame([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	tel, err := f.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}

	p := tel.BroadcastPoint("01-05-2026 10:00:00", "s1_reset_123")

	if got := p.SessionID(); got != "s1_reset_123" {
		t.Errorf("sessionId = %q, want the stamped id", got)
	}
	if got := p.Timestamp(); got != "01-05-2026 10:00:00" {
		t.Errorf("timestamp = %q", got)
	}
	if p["firstname"] != "Ann" || p["person"] != "Ann" {
		t.Errorf("firstname/person shim = (%v, %v), want both Ann", p["firstname"], p["person"])
	}
	if hr, ok := p["heartRate"].(int); !ok || hr != 142 {
		t.Errorf("heartRate = %v (%T), want int 142", p["heartRate"], p["heartRate"])
	}
	if wd, ok := p["windDirection"].(string); !ok || wd != "270" {
		t.Errorf("windDirection = %v (%T), want string \"270\"", p["windDirection"], p["windDirection"])
	}
	if rh, ok := p["relativeHumidity"].(int); !ok || rh != 65 {
		t.Errorf("relativeHumidity = %v, want 65", p["relativeHumidity"])
	}
	if _, stillThere := p["type"]; stillThere {
		t.Error("broadcast point must not carry a type key")
	}
	// Slope fields are always present as float64, defaulted to zero.
	if s, ok := p["slope"].(float64); !ok || s != 0 {
		t.Errorf("slope = %v (%T), want float64 0", p["slope"], p["slope"])
	}
}

func TestInvalidPoint(t *testing.T) {
	t.Parallel()

	frame := strings.Replace(validTelemetry, "48.1818", "-999", 1)
	f, err := DecodeFrame([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	tel, err := f.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}

	p := tel.InvalidPoint("01-05-2026 10:00:00", "Placeholder coordinates (-999)")
	if !p.Invalid() {
		t.Error("Invalid() = false for a gated point")
	}
	if p.Reason() == "" {
		t.Error("Reason() is empty")
	}
	if p.SessionID() != "s1" {
		t.Errorf("sessionId = %q, want the original id", p.SessionID())
	}
}

func TestFollowerView(t *testing.T) {
	t.Parallel()

	p := Point{
		"sessionId":    "s1",
		"firstname":    "Ann",
		"latitude":     48.2,
		"longitude":    16.3,
		"currentSpeed": 10.0,
		"distance":     500.0,
		"timestamp":    "01-05-2026 10:00:00",
		"eventName":    "Morning Run",
	}

	laps := []LapSummary{{LapNumber: 1, Duration: 300000, Distance: 1.0}}
	view := p.FollowerView(laps)

	if view["person"] != "Ann" {
		t.Errorf("person = %v, want Ann", view["person"])
	}
	if _, leaked := view["eventName"]; leaked {
		t.Error("follower view must not carry the full point's extra keys")
	}
	if view["altitude"] != 0.0 {
		t.Errorf("altitude = %v, want zero default", view["altitude"])
	}
	if view["lapTimes"] == nil {
		t.Error("lapTimes missing despite laps present")
	}

	empty := p.FollowerView(nil)
	if v, present := empty["lapTimes"]; !present || v != nil {
		t.Errorf("lapTimes = %v, want explicit null when no laps", v)
	}
}

func TestIsWaypoint(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"sessionId":"s1","eventName":"Hike","waypoint":{"name":"Summit","latitude":47.1,"longitude":15.4}}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !f.IsWaypoint() {
		t.Error("IsWaypoint = false for a complete waypoint frame")
	}

	f, err = DecodeFrame([]byte(`{"sessionId":"s1","waypoint":{"name":"Summit"}}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.IsWaypoint() {
		t.Error("IsWaypoint = true for a waypoint missing coordinates")
	}
}
