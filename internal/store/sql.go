package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

const eventColumns = `id, user_id, session_number, event_code, step_id, elapsed_seconds,
	response_text, valid_response, locations_found, search_params, created_at`

// sqlEventLog holds the queries shared by the SQLite and PostgreSQL backends. Queries
// are written with '?' placeholders and rewritten by rebind for the target driver.
type sqlEventLog struct {
	db     *sql.DB
	name   string
	rebind func(string) string
}

func (s *sqlEventLog) Record(ctx context.Context, e models.ConvoEvent) error {
	if err := prepare(&e); err != nil {
		return err
	}
	query := s.rebind(`INSERT INTO convo_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.User, e.SessionNumber, e.EventCode, e.StepID,
		nullable(e.ElapsedSeconds), nullable(e.ResponseText), nullable(e.ValidResponse),
		nullable(e.LocationsFound), nilIfEmpty(e.SearchParams), e.CreatedAt)
	if err != nil {
		slog.Error(s.name+" Record failed", "error", err, "user", e.User, "code", e.EventCode)
		return fmt.Errorf("failed to insert event for %s: %w", e.User, err)
	}
	slog.Debug(s.name+" Record succeeded", "user", e.User, "session", e.SessionNumber, "code", e.EventCode)
	return nil
}

func (s *sqlEventLog) Events(ctx context.Context, filter EventFilter) ([]models.ConvoEvent, error) {
	var where []string
	var args []interface{}
	if filter.User != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.User)
	}
	if filter.ExcludeUser != "" {
		where = append(where, "user_id <> ?")
		args = append(args, filter.ExcludeUser)
	}
	if filter.SessionNumber != 0 {
		where = append(where, "session_number = ?")
		args = append(args, filter.SessionNumber)
	}
	if len(filter.EventCodes) > 0 {
		where = append(where, "event_code IN ("+placeholders(len(filter.EventCodes))+")")
		for _, c := range filter.EventCodes {
			args = append(args, c)
		}
	}
	if filter.ValidResponse != nil {
		where = append(where, "valid_response = ?")
		args = append(args, *filter.ValidResponse)
	}
	if filter.LocationsFound != nil {
		where = append(where, "locations_found = ?")
		args = append(args, *filter.LocationsFound)
	}

	query := `SELECT ` + eventColumns + ` FROM convo_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		slog.Error(s.name+" Events query failed", "error", err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.ConvoEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			slog.Error(s.name+" Events scan failed", "error", err)
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error(s.name+" Events rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	slog.Debug(s.name+" Events succeeded", "count", len(events))
	return events, nil
}

func (s *sqlEventLog) LatestSession(ctx context.Context, user, eventCode string) (int, error) {
	query := s.rebind(`SELECT COALESCE(MAX(session_number), 0) FROM convo_events WHERE user_id = ? AND event_code = ?`)
	var latest int
	if err := s.db.QueryRowContext(ctx, query, user, eventCode).Scan(&latest); err != nil {
		slog.Error(s.name+" LatestSession failed", "error", err, "user", user)
		return 0, fmt.Errorf("failed to query latest session for %s: %w", user, err)
	}
	return latest, nil
}

// Close closes the database connection.
func (s *sqlEventLog) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close "+s.name+" database", "error", err)
	} else {
		slog.Debug(s.name + " database connection closed successfully")
	}
	return err
}
