package wire

// Point is a broadcast-shaped tracking point. It carries every key the
// producer sent, plus the normalized keys the hub guarantees: "timestamp"
// (wire format), "sessionId", coerced float speeds/slopes, and the
// firstname/person compatibility pair.
//
// The map form is deliberate. Producers attach keys across client
// versions and the protocol contract is pass-through: whatever arrived is
// what observers see.
type Point map[string]any

// SessionID returns the point's session id, or "" when absent.
func (p Point) SessionID() string {
	return stringValue(p["sessionId"])
}

// Timestamp returns the wire-format timestamp, or "" when absent.
func (p Point) Timestamp() string {
	return stringValue(p["timestamp"])
}

// Name returns the producer's display name, preferring "firstname" over
// the legacy "person" key.
func (p Point) Name() string {
	if s := stringValue(p["firstname"]); s != "" {
		return s
	}
	return stringValue(p["person"])
}

// Float returns the named key coerced to float64, or 0 when the key is
// absent or non-numeric.
func (p Point) Float(key string) float64 {
	f, _ := floatValue(p[key])
	return f
}

// FloatOK returns the named key as float64 and whether it was present and
// numeric. Persistence uses the ok form to keep absent optionals NULL.
func (p Point) FloatOK(key string) (float64, bool) {
	return floatValue(p[key])
}

// IntOK returns the named key as int and whether it was present.
func (p Point) IntOK(key string) (int, bool) {
	return intValue(p[key])
}

// Int64OK returns the named key as int64 and whether it was present.
func (p Point) Int64OK(key string) (int64, bool) {
	return int64Value(p[key])
}

// String returns the named key as a string, or "".
func (p Point) String(key string) string {
	return stringValue(p[key])
}

// Invalid reports whether the point was flagged by the coordinate gate.
func (p Point) Invalid() bool {
	b, _ := p["invalidCoordinates"].(bool)
	return b
}

// Reason returns the coordinate gate's rejection reason, or "".
func (p Point) Reason() string {
	return stringValue(p["reason"])
}

// Clone returns a shallow copy. Values are JSON scalars in practice, so a
// shallow copy is enough to detach the point from its source map.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// FollowerView reduces the point to the compact shape sent to followers,
// attaching the session's lap summaries. Keys absent from the point come
// through as zero values for the positional fields and as nulls for the
// physiology and slope fields, matching what map clients expect.
func (p Point) FollowerView(laps []LapSummary) Point {
	view := Point{
		"sessionId":        p.SessionID(),
		"person":           p.Name(),
		"latitude":         p.Float("latitude"),
		"longitude":        p.Float("longitude"),
		"altitude":         p.Float("altitude"),
		"currentSpeed":     p.Float("currentSpeed"),
		"distance":         p.Float("distance"),
		"heartRate":        p["heartRate"],
		"slope":            p["slope"],
		"averageSlope":     p["averageSlope"],
		"maxUphillSlope":   p["maxUphillSlope"],
		"maxDownhillSlope": p["maxDownhillSlope"],
		"timestamp":        p.Timestamp(),
	}
	if len(laps) > 0 {
		view["lapTimes"] = laps
	} else {
		view["lapTimes"] = nil
	}
	return view
}

// LapSummary is the per-lap digest carried inside follower updates.
type LapSummary struct {
	LapNumber int     `json:"lapNumber"`
	Duration  int64   `json:"duration"`
	Distance  float64 `json:"distance"`
}

// ActiveUser is one entry of an active_users frame: the latest known
// position and identity of a live session.
type ActiveUser struct {
	SessionID  string  `json:"sessionId"`
	Person     string  `json:"person"`
	EventName  string  `json:"eventName"`
	LastUpdate string  `json:"lastUpdate"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// ActiveUserFromPoint builds the active_users entry for a session from its
// most recent history point.
func ActiveUserFromPoint(sessionID string, p Point) ActiveUser {
	return ActiveUser{
		SessionID:  sessionID,
		Person:     p.Name(),
		EventName:  stringValue(p["eventName"]),
		LastUpdate: p.Timestamp(),
		Latitude:   p.Float("latitude"),
		Longitude:  p.Float("longitude"),
	}
}

// SessionInfo is one entry of a session_list frame.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	IsActive  bool   `json:"isActive"`
}
