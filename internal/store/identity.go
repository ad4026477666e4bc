package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Identity Resolution
// -------------------------------------------------------------------------

// Users are keyed by (firstname, lastname, birthdate) with empty strings
// participating in uniqueness. Devices are keyed by name. Sessions use the
// client-supplied id. All three resolve get-or-create inside the caller's
// transaction so a point insert is atomic with the rows it references.

// getOrCreateUser resolves the user row, creating it on first reference.
// Height and weight update the existing row when provided.
func (s *Store) getOrCreateUser(ctx context.Context, tx pgx.Tx,
	firstname, lastname, birthdate string, height, weight *float64) (int64, error) {

	var userID int64
	err := tx.QueryRow(ctx, `
		SELECT user_id FROM users
		WHERE firstname = $1 AND COALESCE(lastname, '') = $2
		AND COALESCE(birthdate, '') = $3
	`, firstname, lastname, birthdate).Scan(&userID)

	switch {
	case err == nil:
		if height != nil || weight != nil {
			_, err = tx.Exec(ctx, `
				UPDATE users SET
					height = COALESCE($1, height),
					weight = COALESCE($2, weight),
					updated_at = NOW()
				WHERE user_id = $3
			`, height, weight, userID)
			if err != nil {
				return 0, fmt.Errorf("update user %d: %w", userID, err)
			}
		}
		return userID, nil

	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO users (firstname, lastname, birthdate, height, weight)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (firstname, lastname, birthdate) DO UPDATE
				SET updated_at = NOW()
			RETURNING user_id
		`, firstname, lastname, birthdate, height, weight).Scan(&userID)
		if err != nil {
			return 0, fmt.Errorf("create user %q: %w", firstname, err)
		}
		s.logger.Info("created user",
			"firstname", firstname, "lastname", lastname, "user_id", userID)
		return userID, nil

	default:
		return 0, fmt.Errorf("look up user %q: %w", firstname, err)
	}
}

// getOrCreateDevice resolves a heart rate device by name. Empty,
// whitespace-only, and the literal "None" names yield ErrNoDevice.
func (s *Store) getOrCreateDevice(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "none") {
		return 0, ErrNoDevice
	}

	var deviceID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO heart_rate_devices (device_name)
		VALUES ($1)
		ON CONFLICT (device_name) DO UPDATE SET device_name = EXCLUDED.device_name
		RETURNING device_id
	`, name).Scan(&deviceID)
	if err != nil {
		return 0, fmt.Errorf("resolve heart rate device %q: %w", name, err)
	}
	return deviceID, nil
}

// ensureSession creates the tracking session row if it does not exist,
// taking the event metadata and producer configuration echo from the
// point. The start timestamp comes from startDateTime, defaulting to now.
func (s *Store) ensureSession(ctx context.Context, tx pgx.Tx,
	sessionID string, userID int64, p wire.Point) error {

	var exists int
	err := tx.QueryRow(ctx,
		`SELECT 1 FROM tracking_sessions WHERE session_id = $1`, sessionID).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("look up session %q: %w", sessionID, err)
	}

	startDateTime := time.Now()
	if raw := p.String("startDateTime"); raw != "" {
		if t, ok := parseFlexibleTimestamp(raw); ok {
			startDateTime = t
		} else {
			s.logger.Warn("could not parse startDateTime", "value", raw)
		}
	}

	var minDistance, minTime, announceInterval any
	if v, ok := p.IntOK("minDistanceMeters"); ok {
		minDistance = v
	}
	if v, ok := p.IntOK("minTimeSeconds"); ok {
		minTime = v
	}
	if v, ok := p.IntOK("voiceAnnouncementInterval"); ok {
		announceInterval = v
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tracking_sessions (
			session_id, user_id, event_name, sport_type, comment, clothing,
			start_date_time, min_distance_meters, min_time_seconds, voice_announcement_interval
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING
	`,
		sessionID, userID,
		p.String("eventName"),
		p.String("sportType"),
		p.String("comment"),
		p.String("clothing"),
		startDateTime,
		minDistance, minTime, announceInterval,
	)
	if err != nil {
		return fmt.Errorf("create session %q: %w", sessionID, err)
	}
	return nil
}

// flexibleTimestampLayouts covers the timestamp shapes producers put into
// startDateTime across client versions.
var flexibleTimestampLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseFlexibleTimestamp(s string) (time.Time, bool) {
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range flexibleTimestampLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
