package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bernd-roth/GeoTracker/internal/geo"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// History Preload
// -------------------------------------------------------------------------

// LoadHistorySince reconstructs the in-memory history from sessions that
// started within the retention window, rebuilding the broadcast point
// shape the observers expect. Points come back grouped per session in
// received_at order.
func (s *Store) LoadHistorySince(ctx context.Context, cutoff time.Time) (map[string][]wire.Point, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			gtp.session_id,
			u.firstname, u.lastname, u.birthdate, u.height, u.weight,
			s.event_name, s.sport_type, s.comment, s.clothing,
			s.min_distance_meters, s.min_time_seconds, s.voice_announcement_interval,
			gtp.latitude, gtp.longitude, gtp.altitude,
			gtp.current_speed, gtp.average_speed, gtp.max_speed, gtp.moving_average_speed,
			gtp.distance, gtp.heart_rate, hrd.device_name AS heart_rate_device,
			gtp.temperature, gtp.wind_speed, gtp.wind_direction,
			gtp.humidity, gtp.weather_timestamp, gtp.weather_code,
			gtp.pressure, gtp.pressure_accuracy, gtp.altitude_from_pressure, gtp.sea_level_pressure,
			gtp.slope, gtp.average_slope, gtp.max_uphill_slope, gtp.max_downhill_slope,
			gtp.received_at
		FROM gps_tracking_points gtp
		JOIN tracking_sessions s ON gtp.session_id = s.session_id
		JOIN users u ON s.user_id = u.user_id
		LEFT JOIN heart_rate_devices hrd ON gtp.heart_rate_device_id = hrd.device_id
		WHERE s.start_date_time >= $1
		ORDER BY gtp.session_id, gtp.received_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query tracking history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]wire.Point)
	count := 0

	for rows.Next() {
		var (
			sessionID           string
			firstname           string
			lastname, birthdate *string
			height, weight      *float64

			eventName, sportType, comment, clothing *string
			minDistance, minTime, announceInterval  *int

			latitude, longitude float64
			altitude            *float64

			currentSpeed, averageSpeed, maxSpeed, movingAverageSpeed, distance *float64

			heartRate       *int
			heartRateDevice *string

			temperature, windSpeed, windDirection *float64
			humidity, weatherCode                 *int
			weatherTimestamp                      *int64

			pressure, altitudeFromPressure, seaLevelPressure *float64
			pressureAccuracy                                 *int

			slope, averageSlope, maxUphillSlope, maxDownhillSlope *float64

			receivedAt time.Time
		)

		err := rows.Scan(
			&sessionID,
			&firstname, &lastname, &birthdate, &height, &weight,
			&eventName, &sportType, &comment, &clothing,
			&minDistance, &minTime, &announceInterval,
			&latitude, &longitude, &altitude,
			&currentSpeed, &averageSpeed, &maxSpeed, &movingAverageSpeed,
			&distance, &heartRate, &heartRateDevice,
			&temperature, &windSpeed, &windDirection,
			&humidity, &weatherTimestamp, &weatherCode,
			&pressure, &pressureAccuracy, &altitudeFromPressure, &seaLevelPressure,
			&slope, &averageSlope, &maxUphillSlope, &maxDownhillSlope,
			&receivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		p := wire.Point{
			"timestamp": receivedAt.Format(geo.WireTimestampFormat),
			"sessionId": sessionID,
			"firstname": firstname,
			"lastname":  strOr(lastname, ""),
			"birthdate": strOr(birthdate, ""),
			"height":    floatOr(height, 0),
			"weight":    floatOr(weight, 0),

			"minDistanceMeters":         intOr(minDistance, 0),
			"minTimeSeconds":            intOr(minTime, 0),
			"voiceAnnouncementInterval": intOr(announceInterval, 0),

			"eventName": strOr(eventName, ""),
			"sportType": strOr(sportType, ""),
			"comment":   strOr(comment, ""),
			"clothing":  strOr(clothing, ""),

			"latitude":  latitude,
			"longitude": longitude,
			"altitude":  floatOr(altitude, 0),

			"currentSpeed":       floatOr(currentSpeed, 0),
			"maxSpeed":           floatOr(maxSpeed, 0),
			"movingAverageSpeed": floatOr(movingAverageSpeed, 0),
			"averageSpeed":       floatOr(averageSpeed, 0),
			"distance":           floatOr(distance, 0),

			"slope":            floatOr(slope, 0),
			"averageSlope":     floatOr(averageSlope, 0),
			"maxUphillSlope":   floatOr(maxUphillSlope, 0),
			"maxDownhillSlope": floatOr(maxDownhillSlope, 0),

			// Legacy clients key on "person".
			"person": firstname,
		}

		if heartRate != nil && *heartRate > 0 {
			p["heartRate"] = *heartRate
		}
		if heartRateDevice != nil && *heartRateDevice != "" {
			p["heartRateDevice"] = *heartRateDevice
		}

		if temperature != nil {
			p["temperature"] = *temperature
		}
		if windSpeed != nil {
			p["windSpeed"] = *windSpeed
		}
		if windDirection != nil {
			p["windDirection"] = *windDirection
		}
		if humidity != nil {
			p["relativeHumidity"] = *humidity
		}
		if weatherTimestamp != nil {
			p["weatherTimestamp"] = *weatherTimestamp
		}
		if weatherCode != nil {
			p["weatherCode"] = *weatherCode
		}

		if pressure != nil {
			p["pressure"] = *pressure
		}
		if pressureAccuracy != nil {
			p["pressureAccuracy"] = *pressureAccuracy
		}
		if altitudeFromPressure != nil {
			p["altitudeFromPressure"] = *altitudeFromPressure
		}
		if seaLevelPressure != nil {
			p["seaLevelPressure"] = *seaLevelPressure
		}

		history[sessionID] = append(history[sessionID], p)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	s.logger.Info("loaded tracking history from database",
		"points", count, "sessions", len(history))
	return history, nil
}

func strOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
