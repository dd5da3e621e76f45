package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// InboundDedup records inbound message IDs so that a webhook retried by the provider
// is handled once.
type InboundDedup interface {
	// RecordInbound stores messageID. It returns false when the ID was already
	// recorded, meaning the message is a duplicate.
	RecordInbound(ctx context.Context, messageID, user string) (bool, error)
}

// Compile-time checks that every backend deduplicates.
var (
	_ InboundDedup = (*InMemoryEventLog)(nil)
	_ InboundDedup = (*SQLiteEventLog)(nil)
	_ InboundDedup = (*PostgresEventLog)(nil)
)

func (s *InMemoryEventLog) RecordInbound(ctx context.Context, messageID, user string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.inbound == nil {
		s.inbound = make(map[string]struct{})
	}
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = struct{}{}
	return true, nil
}

func (s *sqlEventLog) RecordInbound(ctx context.Context, messageID, user string) (bool, error) {
	query := s.rebind(`INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`)
	result, err := s.db.ExecContext(ctx, query, messageID, user, time.Now().UTC())
	if err != nil {
		slog.Error(s.name+" RecordInbound failed", "error", err, "message_id", messageID)
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}
