// Package wire defines the text-frame protocol spoken on the tracking
// endpoint: the inbound frame vocabulary (telemetry, waypoints, bulk
// uploads, and typed requests), the broadcast point shapes, and the
// outbound response frames.
//
// Every frame is a UTF-8 JSON document except the literal "ping"/"pong"
// heartbeat pair, which travels as a bare string.
package wire

// Inbound frame types.
const (
	TypePing                = "ping"
	TypeRequestHistory      = "request_history"
	TypeCleanupMemory       = "cleanup_memory"
	TypeGetActiveUsers      = "get_active_users"
	TypeFollowUsers         = "follow_users"
	TypeUnfollowUsers       = "unfollow_users"
	TypeRequestSessions     = "request_sessions"
	TypeDeleteSession       = "delete_session"
	TypeGetWeather          = "get_weather"
	TypeGetWeatherSummary   = "get_weather_summary"
	TypeGetBarometer        = "get_barometer"
	TypeGetBarometerSummary = "get_barometer_summary"
	TypeUploadSession       = "upload_session"
)

// Outbound frame types.
const (
	TypePong               = "pong"
	TypeUpdate             = "update"
	TypeFollowedUserUpdate = "followed_user_update"
	TypeInvalidCoordinates = "invalid_coordinates"
	TypeActiveUsers        = "active_users"
	TypeHistoryBatch       = "history_batch"
	TypeHistoryComplete    = "history_complete"
	TypeSessionList        = "session_list"
	TypeSessionDeleted     = "session_deleted"
	TypeCleanupResponse    = "cleanup_response"
	TypeFollowResponse     = "follow_response"
	TypeUnfollowResponse   = "unfollow_response"
	TypeDeleteResponse     = "delete_response"
	TypeWeatherData        = "weather_data"
	TypeWeatherSummary     = "weather_summary"
	TypeBarometerData      = "barometer_data"
	TypeBarometerSummary   = "barometer_summary"
	TypeUploadResponse     = "upload_response"
)

// Heartbeat is the bare-string ping; the reply is HeartbeatReply.
const (
	Heartbeat      = "ping"
	HeartbeatReply = "pong"
)
