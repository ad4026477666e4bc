package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Waypoints
// -------------------------------------------------------------------------

// SaveWaypoint persists a named point-of-interest attached to an existing
// session. The session must already have been created by the live ingest
// path; a waypoint for an unknown session returns ErrSessionNotFound.
func (s *Store) SaveWaypoint(ctx context.Context, frame *wire.Frame) error {
	if !s.Available() {
		return ErrUnavailable
	}

	wp, ok := frame.Raw["waypoint"].(map[string]any)
	if !ok {
		return fmt.Errorf("frame carries no waypoint object")
	}
	point := wire.Point(wp)
	sessionID := frame.SessionID

	return s.withTx(ctx, func(tx pgx.Tx) error {
		var userID int64
		err := tx.QueryRow(ctx,
			`SELECT user_id FROM tracking_sessions WHERE session_id = $1`,
			sessionID).Scan(&userID)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
			}
			return fmt.Errorf("look up session %q: %w", sessionID, err)
		}

		var elevation any
		if v, ok := point.FloatOK("elevation"); ok && v != 0 {
			elevation = v
		}
		var timestamp int64
		if v, ok := point.Int64OK("timestamp"); ok {
			timestamp = v
		}

		var description any
		if d := point.String("description"); d != "" {
			description = d
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO waypoints (
				session_id, user_id, event_name, waypoint_name, waypoint_description,
				latitude, longitude, elevation, waypoint_timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			sessionID, userID,
			wire.Point(frame.Raw).String("eventName"),
			point.String("name"),
			description,
			point.Float("latitude"),
			point.Float("longitude"),
			elevation,
			timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert waypoint for session %q: %w", sessionID, err)
		}

		s.logger.Info("saved waypoint",
			"session_id", sessionID, "name", point.String("name"))
		return nil
	})
}
