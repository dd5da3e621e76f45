// Package store provides storage backends for the conversation event log.
//
// It includes an in-memory log for tests and local runs, and SQLite and PostgreSQL
// backends for persistent, append-only storage of conversation events.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed event log.
var ErrClosed = errors.New("event log closed")

// EventLog is the append-only log of conversation events.
type EventLog interface {
	// Record appends an event. ID and CreatedAt are filled in when empty.
	Record(ctx context.Context, e models.ConvoEvent) error

	// Events returns the events matching filter in insertion order.
	Events(ctx context.Context, filter EventFilter) ([]models.ConvoEvent, error)

	// LatestSession returns the highest session number recorded for user with the
	// given event code, or 0 when there is none.
	LatestSession(ctx context.Context, user, eventCode string) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// EventFilter restricts an Events query. Zero values match everything.
type EventFilter struct {
	User           string
	ExcludeUser    string
	SessionNumber  int
	EventCodes     []string
	ValidResponse  *bool
	LocationsFound *bool
}

// Matches reports whether e satisfies the filter.
func (f EventFilter) Matches(e models.ConvoEvent) bool {
	if f.User != "" && e.User != f.User {
		return false
	}
	if f.ExcludeUser != "" && e.User == f.ExcludeUser {
		return false
	}
	if f.SessionNumber != 0 && e.SessionNumber != f.SessionNumber {
		return false
	}
	if len(f.EventCodes) > 0 {
		found := false
		for _, c := range f.EventCodes {
			if c == e.EventCode {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ValidResponse != nil && (e.ValidResponse == nil || *e.ValidResponse != *f.ValidResponse) {
		return false
	}
	if f.LocationsFound != nil && (e.LocationsFound == nil || *e.LocationsFound != *f.LocationsFound) {
		return false
	}
	return true
}

// Opts holds configuration for the persistent event log backends.
type Opts struct {
	DSN string
}

// Option configures an event log backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword/value DSNs and
// "sqlite" for anything else, which is treated as a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Open returns the event log backend appropriate for dsn. An empty DSN selects the
// in-memory log.
func Open(dsn string) (EventLog, error) {
	switch {
	case dsn == "":
		slog.Debug("No database DSN provided, using in-memory event log")
		return NewInMemoryEventLog(), nil
	case DetectDSNType(dsn) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL event log", "dsn_set", true)
		return NewPostgresEventLog(WithPostgresDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite event log", "db_path", dsn)
		return NewSQLiteEventLog(WithSQLiteDSN(dsn))
	}
}

// prepare fills in generated fields before an event is written.
func prepare(e *models.ConvoEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// InMemoryEventLog is an event log held in process memory.
type InMemoryEventLog struct {
	mu      sync.RWMutex
	events  []models.ConvoEvent
	inbound map[string]struct{}
	closed  bool
}

// NewInMemoryEventLog creates an empty in-memory event log.
func NewInMemoryEventLog() *InMemoryEventLog {
	return &InMemoryEventLog{}
}

func (s *InMemoryEventLog) Record(ctx context.Context, e models.ConvoEvent) error {
	if err := prepare(&e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.events = append(s.events, e)
	slog.Debug("InMemoryEventLog Record succeeded", "user", e.User, "session", e.SessionNumber, "code", e.EventCode)
	return nil
}

func (s *InMemoryEventLog) Events(ctx context.Context, filter EventFilter) ([]models.ConvoEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []models.ConvoEvent
	for _, e := range s.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryEventLog) LatestSession(ctx context.Context, user, eventCode string) (int, error) {
	events, err := s.Events(ctx, EventFilter{User: user, EventCodes: []string{eventCode}})
	if err != nil {
		return 0, err
	}
	latest := 0
	for _, e := range events {
		if e.SessionNumber > latest {
			latest = e.SessionNumber
		}
	}
	return latest, nil
}

// Close marks the log closed; further operations fail with ErrClosed.
func (s *InMemoryEventLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
