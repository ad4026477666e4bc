package store

import (
	"context"
	"fmt"
)

// schemaStatements create the normalized tables and their indexes. Order
// matters: referenced tables first. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id SERIAL PRIMARY KEY,
		firstname VARCHAR(100) NOT NULL,
		lastname VARCHAR(100),
		birthdate VARCHAR(20),
		height NUMERIC(5, 2),
		weight NUMERIC(5, 2),
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(firstname, lastname, birthdate)
	)`,

	`CREATE TABLE IF NOT EXISTS heart_rate_devices (
		device_id SERIAL PRIMARY KEY,
		device_name VARCHAR(100) UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS tracking_sessions (
		session_id VARCHAR(255) PRIMARY KEY,
		user_id INTEGER REFERENCES users(user_id) ON DELETE CASCADE,
		event_name VARCHAR(255),
		sport_type VARCHAR(100),
		comment TEXT,
		clothing VARCHAR(255),
		start_date_time TIMESTAMPTZ,
		min_distance_meters INTEGER,
		min_time_seconds INTEGER,
		voice_announcement_interval INTEGER,
		start_city VARCHAR(255),
		start_country VARCHAR(255),
		start_address TEXT,
		end_city VARCHAR(255),
		end_country VARCHAR(255),
		end_address TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS gps_tracking_points (
		id SERIAL PRIMARY KEY,
		session_id VARCHAR(255) REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
		latitude NUMERIC(10, 8) NOT NULL,
		longitude NUMERIC(11, 8) NOT NULL,
		altitude NUMERIC(10, 4),
		horizontal_accuracy NUMERIC(8, 4),
		vertical_accuracy_meters NUMERIC(8, 4),
		number_of_satellites INTEGER,
		used_number_of_satellites INTEGER,
		current_speed NUMERIC(8, 4) NOT NULL,
		average_speed NUMERIC(8, 4) NOT NULL,
		max_speed NUMERIC(8, 4) NOT NULL,
		moving_average_speed NUMERIC(8, 4) NOT NULL,
		speed NUMERIC(8, 4),
		speed_accuracy_meters_per_second NUMERIC(8, 4),
		distance NUMERIC(12, 4) NOT NULL,
		covered_distance NUMERIC(12, 4),
		cumulative_elevation_gain NUMERIC(10, 4),
		heart_rate INTEGER,
		heart_rate_device_id INTEGER REFERENCES heart_rate_devices(device_id),
		lap INTEGER DEFAULT 0,
		temperature NUMERIC(5, 2),
		wind_speed NUMERIC(6, 2),
		wind_direction NUMERIC(5, 1),
		humidity INTEGER,
		weather_timestamp BIGINT,
		weather_code INTEGER,
		pressure NUMERIC(8, 2),
		pressure_accuracy INTEGER,
		altitude_from_pressure NUMERIC(10, 4),
		sea_level_pressure NUMERIC(8, 2),
		slope NUMERIC(6, 2),
		average_slope NUMERIC(6, 2),
		max_uphill_slope NUMERIC(6, 2),
		max_downhill_slope NUMERIC(6, 2),
		received_at TIMESTAMPTZ DEFAULT NOW(),
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS lap_times (
		id SERIAL PRIMARY KEY,
		session_id VARCHAR(255) NOT NULL,
		user_id INTEGER REFERENCES users(user_id),
		lap_number INTEGER NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		duration BIGINT GENERATED ALWAYS AS (end_time - start_time) STORED,
		distance NUMERIC(8, 4) NOT NULL DEFAULT 1.0,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(session_id, lap_number)
	)`,

	`CREATE TABLE IF NOT EXISTS waypoints (
		waypoint_id SERIAL PRIMARY KEY,
		session_id VARCHAR(255) REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
		user_id INTEGER REFERENCES users(user_id) ON DELETE CASCADE,
		event_name VARCHAR(255),
		waypoint_name VARCHAR(255) NOT NULL,
		waypoint_description TEXT,
		latitude NUMERIC(10, 8) NOT NULL,
		longitude NUMERIC(11, 8) NOT NULL,
		elevation NUMERIC(10, 4),
		waypoint_timestamp BIGINT NOT NULL,
		received_at TIMESTAMPTZ DEFAULT NOW(),
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS planned_events (
		planned_event_id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		planned_event_name VARCHAR(255) NOT NULL,
		planned_event_date DATE NOT NULL,
		planned_event_type VARCHAR(100),
		planned_event_country VARCHAR(100) NOT NULL,
		planned_event_city VARCHAR(100) NOT NULL,
		planned_latitude NUMERIC(10, 8),
		planned_longitude NUMERIC(11, 8),
		is_entered_and_finished BOOLEAN DEFAULT FALSE,
		website VARCHAR(500),
		comment TEXT,
		reminder_date_time TIMESTAMPTZ,
		is_reminder_active BOOLEAN DEFAULT FALSE,
		is_recurring BOOLEAN DEFAULT FALSE,
		recurring_type VARCHAR(20),
		recurring_interval INTEGER DEFAULT 1,
		recurring_end_date DATE,
		recurring_days_of_week VARCHAR(20),
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		created_by_user_id INTEGER NOT NULL,
		is_public BOOLEAN DEFAULT TRUE,

		CONSTRAINT fk_planned_events_user_id
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
		CONSTRAINT fk_planned_events_created_by
			FOREIGN KEY (created_by_user_id) REFERENCES users(user_id) ON DELETE CASCADE,
		CONSTRAINT chk_recurring_type
			CHECK (recurring_type IN ('daily', 'weekly', 'monthly', 'yearly') OR recurring_type IS NULL),
		CONSTRAINT chk_recurring_interval
			CHECK (recurring_interval > 0),
		CONSTRAINT chk_latitude_range
			CHECK (planned_latitude >= -90 AND planned_latitude <= 90),
		CONSTRAINT chk_longitude_range
			CHECK (planned_longitude >= -180 AND planned_longitude <= 180)
	)`,

	`CREATE TABLE IF NOT EXISTS session_media (
		media_id SERIAL PRIMARY KEY,
		session_id VARCHAR(255) NOT NULL REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
		media_uuid VARCHAR(36) UNIQUE NOT NULL,
		media_type VARCHAR(10) NOT NULL,
		file_extension VARCHAR(10) NOT NULL,
		original_filename VARCHAR(255),
		file_size_bytes BIGINT,
		thumbnail_generated BOOLEAN DEFAULT FALSE,
		caption TEXT,
		sort_order INTEGER DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_gps_session_id ON gps_tracking_points(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_gps_received_at ON gps_tracking_points(received_at)`,
	`CREATE INDEX IF NOT EXISTS idx_gps_location ON gps_tracking_points(latitude, longitude)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON tracking_sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_users_name ON users(firstname, lastname)`,
	`CREATE INDEX IF NOT EXISTS idx_gps_temperature ON gps_tracking_points(temperature) WHERE temperature IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_gps_wind_speed ON gps_tracking_points(wind_speed) WHERE wind_speed IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_gps_pressure ON gps_tracking_points(pressure) WHERE pressure IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_gps_altitude_from_pressure ON gps_tracking_points(altitude_from_pressure) WHERE altitude_from_pressure IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS idx_planned_events_user_id ON planned_events(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_planned_events_date ON planned_events(planned_event_date)`,
	`CREATE INDEX IF NOT EXISTS idx_planned_events_country_city ON planned_events(planned_event_country, planned_event_city)`,
	`CREATE INDEX IF NOT EXISTS idx_planned_events_type ON planned_events(planned_event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_planned_events_public ON planned_events(is_public) WHERE is_public = true`,
	`CREATE INDEX IF NOT EXISTS idx_planned_events_created_by ON planned_events(created_by_user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_planned_events_created_at ON planned_events(created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_waypoints_session_id ON waypoints(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_waypoints_user_id ON waypoints(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_waypoints_location ON waypoints(latitude, longitude)`,
	`CREATE INDEX IF NOT EXISTS idx_waypoints_timestamp ON waypoints(waypoint_timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_waypoints_received_at ON waypoints(received_at)`,

	`CREATE INDEX IF NOT EXISTS idx_session_media_session_id ON session_media(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_session_media_sort ON session_media(session_id, sort_order)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_planned_events_unique_event
		ON planned_events(planned_event_name, planned_event_date, planned_event_country, planned_event_city)
		WHERE is_public = true`,
}

// ensureSchema creates all tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	s.logger.Info("database schema ensured")
	return nil
}
