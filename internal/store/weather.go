package store

import (
	"context"
	"fmt"
	"time"
)

// -------------------------------------------------------------------------
// Weather / Barometer Read Paths
// -------------------------------------------------------------------------

// The weather and barometer samples live on the GPS points themselves;
// these queries project the co-located readings and their aggregates for
// the get_weather / get_barometer request family. Responses are loosely
// shaped maps because the frames carry nullable fields the clients expect
// as JSON nulls.

// WeatherData returns the per-point weather samples of a session in
// received_at order.
func (s *Store) WeatherData(ctx context.Context, sessionID string) ([]map[string]any, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			id, latitude, longitude, temperature, wind_speed, wind_direction,
			humidity, weather_timestamp, weather_code, received_at
		FROM gps_tracking_points
		WHERE session_id = $1
		AND (temperature IS NOT NULL OR wind_speed IS NOT NULL OR humidity IS NOT NULL)
		ORDER BY received_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query weather data for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var (
			id                  int64
			latitude, longitude float64

			temperature, windSpeed, windDirection *float64
			humidity, weatherCode                 *int
			weatherTimestamp                      *int64

			receivedAt time.Time
		)
		if err := rows.Scan(&id, &latitude, &longitude, &temperature, &windSpeed,
			&windDirection, &humidity, &weatherTimestamp, &weatherCode, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan weather row: %w", err)
		}

		out = append(out, map[string]any{
			"id":               id,
			"latitude":         latitude,
			"longitude":        longitude,
			"temperature":      temperature,
			"windSpeed":        windSpeed,
			"windDirection":    windDirection,
			"humidity":         humidity,
			"weatherCode":      weatherCode,
			"weatherTimestamp": weatherTimestamp,
			"receivedAt":       receivedAt.Format(time.RFC3339Nano),
		})
	}
	return out, rows.Err()
}

// WeatherSummary aggregates the session's weather samples. A session with
// no weather data returns a zero-count summary, not an error.
func (s *Store) WeatherSummary(ctx context.Context, sessionID string) (map[string]any, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	var (
		count                         int64
		avgTemp, minTemp, maxTemp     *float64
		avgWind, maxWind, avgHumidity *float64
		first, last                   *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			AVG(temperature), MIN(temperature), MAX(temperature),
			AVG(wind_speed), MAX(wind_speed),
			AVG(humidity),
			MIN(received_at), MAX(received_at)
		FROM gps_tracking_points
		WHERE session_id = $1
		AND (temperature IS NOT NULL OR wind_speed IS NOT NULL OR humidity IS NOT NULL)
	`, sessionID).Scan(&count, &avgTemp, &minTemp, &maxTemp,
		&avgWind, &maxWind, &avgHumidity, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("query weather summary for session %q: %w", sessionID, err)
	}

	if count == 0 {
		return map[string]any{"sessionId": sessionID, "weatherPointCount": 0}, nil
	}

	return map[string]any{
		"sessionId":         sessionID,
		"weatherPointCount": count,
		"avgTemperature":    avgTemp,
		"minTemperature":    minTemp,
		"maxTemperature":    maxTemp,
		"avgWindSpeed":      avgWind,
		"maxWindSpeed":      maxWind,
		"avgHumidity":       avgHumidity,
		"firstWeatherTime":  formatTime(first),
		"lastWeatherTime":   formatTime(last),
	}, nil
}

// BarometerData returns the per-point barometer samples of a session.
func (s *Store) BarometerData(ctx context.Context, sessionID string) ([]map[string]any, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			id, latitude, longitude, pressure, pressure_accuracy,
			altitude_from_pressure, sea_level_pressure, altitude, received_at
		FROM gps_tracking_points
		WHERE session_id = $1
		AND (pressure IS NOT NULL OR altitude_from_pressure IS NOT NULL)
		ORDER BY received_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query barometer data for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var (
			id                  int64
			latitude, longitude float64

			pressure, altitudeFromPressure, seaLevelPressure, gpsAltitude *float64
			pressureAccuracy                                              *int

			receivedAt time.Time
		)
		if err := rows.Scan(&id, &latitude, &longitude, &pressure, &pressureAccuracy,
			&altitudeFromPressure, &seaLevelPressure, &gpsAltitude, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan barometer row: %w", err)
		}

		out = append(out, map[string]any{
			"id":                   id,
			"latitude":             latitude,
			"longitude":            longitude,
			"pressure":             pressure,
			"pressureAccuracy":     pressureAccuracy,
			"altitudeFromPressure": altitudeFromPressure,
			"seaLevelPressure":     seaLevelPressure,
			"gpsAltitude":          gpsAltitude,
			"receivedAt":           receivedAt.Format(time.RFC3339Nano),
		})
	}
	return out, rows.Err()
}

// BarometerSummary aggregates the session's barometer samples.
func (s *Store) BarometerSummary(ctx context.Context, sessionID string) (map[string]any, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	var (
		count                                 int64
		avgPressure, minPressure, maxPressure *float64
		avgAlt, minAlt, maxAlt                *float64
		avgSeaLevel                           *float64
		first, last                           *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			AVG(pressure), MIN(pressure), MAX(pressure),
			AVG(altitude_from_pressure), MIN(altitude_from_pressure), MAX(altitude_from_pressure),
			AVG(sea_level_pressure),
			MIN(received_at), MAX(received_at)
		FROM gps_tracking_points
		WHERE session_id = $1
		AND (pressure IS NOT NULL OR altitude_from_pressure IS NOT NULL)
	`, sessionID).Scan(&count, &avgPressure, &minPressure, &maxPressure,
		&avgAlt, &minAlt, &maxAlt, &avgSeaLevel, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("query barometer summary for session %q: %w", sessionID, err)
	}

	if count == 0 {
		return map[string]any{"sessionId": sessionID, "barometerPointCount": 0}, nil
	}

	return map[string]any{
		"sessionId":             sessionID,
		"barometerPointCount":   count,
		"avgPressure":           avgPressure,
		"minPressure":           minPressure,
		"maxPressure":           maxPressure,
		"avgBarometricAltitude": avgAlt,
		"minBarometricAltitude": minAlt,
		"maxBarometricAltitude": maxAlt,
		"avgSeaLevelPressure":   avgSeaLevel,
		"firstBarometerTime":    formatTime(first),
		"lastBarometerTime":     formatTime(last),
	}, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
