package wire

// ---------------------------------------------------------------------------
// Outbound Frames
// ---------------------------------------------------------------------------

// PongFrame answers a JSON ping.
type PongFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func NewPong(timestamp string) PongFrame {
	return PongFrame{Type: TypePong, Message: "Connection successful", Timestamp: timestamp}
}

// UpdateFrame is the full-shape broadcast sent to every connection on a
// valid ingest.
type UpdateFrame struct {
	Type  string `json:"type"`
	Point Point  `json:"point"`
}

func NewUpdate(p Point) UpdateFrame {
	return UpdateFrame{Type: TypeUpdate, Point: p}
}

// FollowedUserUpdateFrame is the reduced-shape update sent to followers of
// a session.
type FollowedUserUpdateFrame struct {
	Type  string `json:"type"`
	Point Point  `json:"point"`
}

func NewFollowedUserUpdate(p Point, laps []LapSummary) FollowedUserUpdateFrame {
	return FollowedUserUpdateFrame{Type: TypeFollowedUserUpdate, Point: p.FollowerView(laps)}
}

// InvalidCoordinatesFrame is the diagnostic broadcast for a gated frame.
// OtherData carries the salvageable non-positional readings.
type InvalidCoordinatesFrame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Reason    string         `json:"reason"`
	OtherData map[string]any `json:"otherData"`
}

func NewInvalidCoordinates(p Point) InvalidCoordinatesFrame {
	return InvalidCoordinatesFrame{
		Type:      TypeInvalidCoordinates,
		SessionID: p.SessionID(),
		Reason:    p.Reason(),
		OtherData: map[string]any{
			"heartRate":    p["heartRate"],
			"slope":        p["slope"],
			"currentSpeed": p["currentSpeed"],
			"timestamp":    p["timestamp"],
		},
	}
}

// ActiveUsersFrame lists the live sessions with their latest positions.
type ActiveUsersFrame struct {
	Type  string       `json:"type"`
	Users []ActiveUser `json:"users"`
}

func NewActiveUsers(users []ActiveUser) ActiveUsersFrame {
	if users == nil {
		users = []ActiveUser{}
	}
	return ActiveUsersFrame{Type: TypeActiveUsers, Users: users}
}

// HistoryBatchFrame carries up to one replay batch of history points.
type HistoryBatchFrame struct {
	Type   string  `json:"type"`
	Points []Point `json:"points"`
}

func NewHistoryBatch(points []Point) HistoryBatchFrame {
	return HistoryBatchFrame{Type: TypeHistoryBatch, Points: points}
}

// HistoryCompleteFrame terminates a history replay.
type HistoryCompleteFrame struct {
	Type string `json:"type"`
}

func NewHistoryComplete() HistoryCompleteFrame {
	return HistoryCompleteFrame{Type: TypeHistoryComplete}
}

// SessionListFrame enumerates every session held in memory with its
// activity status.
type SessionListFrame struct {
	Type     string        `json:"type"`
	Sessions []SessionInfo `json:"sessions"`
}

func NewSessionList(sessions []SessionInfo) SessionListFrame {
	if sessions == nil {
		sessions = []SessionInfo{}
	}
	return SessionListFrame{Type: TypeSessionList, Sessions: sessions}
}

// SessionDeletedFrame notifies all connections that a session is gone.
type SessionDeletedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func NewSessionDeleted(sessionID string) SessionDeletedFrame {
	return SessionDeletedFrame{Type: TypeSessionDeleted, SessionID: sessionID}
}

// CleanupResponseFrame reports the outcome of a manual memory cleanup.
type CleanupResponseFrame struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewCleanupResponse(success bool, message string) CleanupResponseFrame {
	return CleanupResponseFrame{Type: TypeCleanupResponse, Success: success, Message: message}
}

// FollowResponseFrame acknowledges a follow_users request with the subset
// of session ids actually followed.
type FollowResponseFrame struct {
	Type      string   `json:"type"`
	Success   bool     `json:"success"`
	Following []string `json:"following,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func NewFollowResponse(following []string) FollowResponseFrame {
	if following == nil {
		following = []string{}
	}
	return FollowResponseFrame{Type: TypeFollowResponse, Success: true, Following: following}
}

// UnfollowResponseFrame acknowledges an unfollow_users request.
type UnfollowResponseFrame struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewUnfollowResponse() UnfollowResponseFrame {
	return UnfollowResponseFrame{Type: TypeUnfollowResponse, Success: true}
}

// DeleteResponseFrame reports the outcome of a delete_session request.
// Reason explains a refusal (active session, unknown id, store error).
type DeleteResponseFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason"`
}

func NewDeleteResponse(sessionID string, success bool, reason string) DeleteResponseFrame {
	return DeleteResponseFrame{Type: TypeDeleteResponse, SessionID: sessionID, Success: success, Reason: reason}
}

// WeatherDataFrame carries the per-point weather samples of a session, or
// an error from the read path.
type WeatherDataFrame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Weather   []map[string]any `json:"weather"`
	Error     string           `json:"error,omitempty"`
}

// WeatherSummaryFrame carries the aggregated weather digest of a session.
type WeatherSummaryFrame struct {
	Type    string         `json:"type"`
	Summary map[string]any `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// BarometerDataFrame carries the per-point barometer samples of a session.
type BarometerDataFrame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Barometer []map[string]any `json:"barometer"`
	Error     string           `json:"error,omitempty"`
}

// BarometerSummaryFrame carries the aggregated barometer digest.
type BarometerSummaryFrame struct {
	Type    string         `json:"type"`
	Summary map[string]any `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// UploadResponseFrame reports the outcome of a bulk session upload. On a
// duplicate refusal, DuplicateOf names the existing session.
type UploadResponseFrame struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	Success     bool   `json:"success"`
	PointCount  int    `json:"pointCount,omitempty"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
