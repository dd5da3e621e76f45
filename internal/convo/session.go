package convo

import (
	"context"
	"log/slog"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// SessionHistory answers the latest session number recorded for a user.
type SessionHistory interface {
	LatestSession(ctx context.Context, user, eventCode string) (int, error)
}

// SessionResolver numbers new sessions from the event history.
type SessionResolver struct {
	history      SessionHistory
	greetingCode string
	now          func() time.Time
}

// NewSessionResolver creates a resolver that counts sessions by greetingCode events.
func NewSessionResolver(history SessionHistory, greetingCode string) *SessionResolver {
	return &SessionResolver{history: history, greetingCode: greetingCode, now: time.Now}
}

// Resolve returns the next session for user. When the history cannot be read the
// session is anonymous: it is numbered 0 and its events are not persisted.
func (r *SessionResolver) Resolve(ctx context.Context, user string) models.Session {
	session := models.Session{User: user, StartTime: r.now()}
	if r.history == nil {
		session.Anonymous = true
		return session
	}
	latest, err := r.history.LatestSession(ctx, user, r.greetingCode)
	if err != nil {
		slog.Warn("SessionResolver.Resolve: history unavailable, continuing anonymously", "error", err, "user", user)
		session.Anonymous = true
		return session
	}
	session.Number = latest + 1
	slog.Debug("SessionResolver.Resolve", "user", user, "session", session.Number)
	return session
}
