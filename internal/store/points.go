package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Point Ingest
// -------------------------------------------------------------------------

// SaveTrackingPoint persists one broadcast-shaped point in a single
// transaction: user, session, device resolution, the point row, lap
// upserts, and the geocoding patch on the session. receivedAt overrides
// the row's received_at; nil means the database clock.
func (s *Store) SaveTrackingPoint(ctx context.Context, p wire.Point, receivedAt *time.Time) error {
	if !s.Available() {
		return ErrUnavailable
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		userID, err := s.resolvePointUser(ctx, tx, p)
		if err != nil {
			return err
		}

		sessionID := p.SessionID()
		if err := s.ensureSession(ctx, tx, sessionID, userID, p); err != nil {
			return err
		}

		var deviceID any
		if name := p.String("heartRateDevice"); name != "" {
			id, err := s.getOrCreateDevice(ctx, tx, name)
			switch {
			case err == nil:
				deviceID = id
			case errors.Is(err, ErrNoDevice):
				// No device attached; the column stays NULL.
			default:
				return err
			}
		}

		if err := s.insertPoint(ctx, tx, sessionID, deviceID, p, receivedAt); err != nil {
			return err
		}

		if laps, ok := p["lapTimes"].([]any); ok && len(laps) > 0 {
			if err := s.upsertLapTimes(ctx, tx, sessionID, userID, laps); err != nil {
				return err
			}
		}

		return s.patchSessionGeocoding(ctx, tx, sessionID, p)
	})
}

// resolvePointUser extracts the user identity from the point and resolves
// the row.
func (s *Store) resolvePointUser(ctx context.Context, tx pgx.Tx, p wire.Point) (int64, error) {
	var height, weight *float64
	if v, ok := p.FloatOK("height"); ok && v != 0 {
		height = &v
	}
	if v, ok := p.FloatOK("weight"); ok && v != 0 {
		weight = &v
	}
	return s.getOrCreateUser(ctx, tx,
		p.Name(), p.String("lastname"), p.String("birthdate"), height, weight)
}

// insertPoint writes the gps_tracking_points row. Absent optional keys
// insert as NULL; speed falls back to currentSpeed and covered_distance
// to distance, as older clients omit them.
func (s *Store) insertPoint(ctx context.Context, tx pgx.Tx,
	sessionID string, deviceID any, p wire.Point, receivedAt *time.Time) error {

	optFloat := func(key string) any {
		if v, ok := p.FloatOK(key); ok {
			return v
		}
		return nil
	}
	optInt := func(key string) any {
		if v, ok := p.IntOK(key); ok {
			return v
		}
		return nil
	}

	speed := optFloat("speed")
	if speed == nil {
		speed = p.Float("currentSpeed")
	}
	coveredDistance := optFloat("coveredDistance")
	if coveredDistance == nil {
		coveredDistance = p.Float("distance")
	}

	var heartRate any
	if hr, ok := p.IntOK("heartRate"); ok && hr > 0 {
		heartRate = hr
	}

	lap := 0
	if v, ok := p.IntOK("lap"); ok {
		lap = v
	}

	var windDirection any
	if v, ok := p["windDirection"]; ok {
		windDirection = wire.WindDirectionDegrees(v)
	}

	var weatherTimestamp any
	if v, ok := p.Int64OK("weatherTimestamp"); ok {
		weatherTimestamp = v
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO gps_tracking_points (
			session_id, latitude, longitude, altitude, horizontal_accuracy,
			vertical_accuracy_meters, number_of_satellites,
			used_number_of_satellites, current_speed, average_speed, max_speed,
			moving_average_speed, speed, speed_accuracy_meters_per_second,
			distance, covered_distance, cumulative_elevation_gain, heart_rate,
			heart_rate_device_id, lap, temperature, wind_speed, wind_direction,
			humidity, weather_timestamp, weather_code,
			pressure, pressure_accuracy, altitude_from_pressure, sea_level_pressure,
			slope, average_slope, max_uphill_slope, max_downhill_slope,
			received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
			$27, $28, $29, $30, $31, $32, $33, $34,
			COALESCE($35, NOW())
		)
	`,
		sessionID,
		p.Float("latitude"),
		p.Float("longitude"),
		optFloat("altitude"),
		optFloat("horizontalAccuracy"),
		optFloat("verticalAccuracyMeters"),
		optInt("numberOfSatellites"),
		optInt("usedNumberOfSatellites"),
		p.Float("currentSpeed"),
		p.Float("averageSpeed"),
		p.Float("maxSpeed"),
		p.Float("movingAverageSpeed"),
		speed,
		optFloat("speedAccuracyMetersPerSecond"),
		p.Float("distance"),
		coveredDistance,
		optFloat("cumulativeElevationGain"),
		heartRate,
		deviceID,
		lap,
		optFloat("temperature"),
		optFloat("windSpeed"),
		windDirection,
		optInt("relativeHumidity"),
		weatherTimestamp,
		optInt("weatherCode"),
		optFloat("pressure"),
		optInt("pressureAccuracy"),
		optFloat("altitudeFromPressure"),
		optFloat("seaLevelPressure"),
		optFloat("slope"),
		optFloat("averageSlope"),
		optFloat("maxUphillSlope"),
		optFloat("maxDownhillSlope"),
		nullableTime(receivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert point for session %q: %w", sessionID, err)
	}
	return nil
}

// upsertLapTimes writes the per-lap rows, replacing existing laps with
// the same (session, lap number).
func (s *Store) upsertLapTimes(ctx context.Context, tx pgx.Tx,
	sessionID string, userID int64, laps []any) error {

	for _, raw := range laps {
		lap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lp := wire.Point(lap)

		lapNumber, ok := lp.IntOK("lapNumber")
		if !ok {
			continue
		}
		startTime, okStart := lp.Int64OK("startTime")
		endTime, okEnd := lp.Int64OK("endTime")
		if !okStart || !okEnd {
			continue
		}
		distance := 1.0
		if v, okDist := lp.FloatOK("distance"); okDist {
			distance = v
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO lap_times (session_id, user_id, lap_number, start_time, end_time, distance)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, lap_number) DO UPDATE SET
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				distance = EXCLUDED.distance
		`, sessionID, userID, lapNumber, startTime, endTime, distance)
		if err != nil {
			return fmt.Errorf("upsert lap %d for session %q: %w", lapNumber, sessionID, err)
		}
	}
	return nil
}

// patchSessionGeocoding fills in start/end location columns when the
// producer attached geocoded addresses. COALESCE keeps earlier values
// when a later frame omits them.
func (s *Store) patchSessionGeocoding(ctx context.Context, tx pgx.Tx,
	sessionID string, p wire.Point) error {

	opt := func(key string) any {
		if v := p.String(key); v != "" {
			return v
		}
		return nil
	}

	fields := []any{
		opt("startCity"), opt("startCountry"), opt("startAddress"),
		opt("endCity"), opt("endCountry"), opt("endAddress"),
	}
	present := false
	for _, f := range fields {
		if f != nil {
			present = true
			break
		}
	}
	if !present {
		return nil
	}

	_, err := tx.Exec(ctx, `
		UPDATE tracking_sessions SET
			start_city = COALESCE($2, start_city),
			start_country = COALESCE($3, start_country),
			start_address = COALESCE($4, start_address),
			end_city = COALESCE($5, end_city),
			end_country = COALESCE($6, end_country),
			end_address = COALESCE($7, end_address),
			updated_at = NOW()
		WHERE session_id = $1
	`, append([]any{sessionID}, fields...)...)
	if err != nil {
		return fmt.Errorf("patch geocoding for session %q: %w", sessionID, err)
	}
	return nil
}

// DeleteSession removes the session row; points and laps cascade.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if !s.Available() {
		return ErrUnavailable
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tracking_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", sessionID, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Lap Times
// -------------------------------------------------------------------------

// LapTime is one stored lap of a session.
type LapTime struct {
	LapNumber int
	StartTime int64
	EndTime   int64
	Duration  int64
	Distance  float64
	CreatedAt time.Time
}

// LapTimesForSession returns the session's laps ordered by lap number.
func (s *Store) LapTimesForSession(ctx context.Context, sessionID string) ([]LapTime, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.pool.Query(ctx, `
		SELECT lap_number, start_time, end_time, duration, distance, created_at
		FROM lap_times
		WHERE session_id = $1
		ORDER BY lap_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query lap times for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var laps []LapTime
	for rows.Next() {
		var lap LapTime
		if err := rows.Scan(&lap.LapNumber, &lap.StartTime, &lap.EndTime,
			&lap.Duration, &lap.Distance, &lap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lap time: %w", err)
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

// Summaries converts stored laps to the wire digest carried in follower
// updates.
func Summaries(laps []LapTime) []wire.LapSummary {
	if len(laps) == 0 {
		return nil
	}
	out := make([]wire.LapSummary, len(laps))
	for i, lap := range laps {
		out[i] = wire.LapSummary{
			LapNumber: lap.LapNumber,
			Duration:  lap.Duration,
			Distance:  lap.Distance,
		}
	}
	return out
}
