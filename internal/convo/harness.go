package convo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// TestHarness is a Conversation that replays a fixed script of replies and keeps a
// transcript of everything said. A harness serves one run.
type TestHarness struct {
	user            string
	script          []string
	pos             int
	awaiting        bool
	timeout         time.Duration
	onTimeout       func(ctx context.Context)
	simulateTimeout bool
	responses       map[StepID]string

	mu         sync.Mutex
	transcript []string
	out        io.Writer
}

// HarnessOption configures a TestHarness.
type HarnessOption func(*TestHarness)

// WithTranscriptWriter copies every transcript line to w.
func WithTranscriptWriter(w io.Writer) HarnessOption {
	return func(h *TestHarness) { h.out = w }
}

// WithSimulatedTimeout makes an Ask past the end of the script behave like a user who
// stopped replying: the timeout handler runs and Ask returns ErrTimeout.
func WithSimulatedTimeout() HarnessOption {
	return func(h *TestHarness) { h.simulateTimeout = true }
}

// NewTestHarness creates a harness that answers as user with script.
func NewTestHarness(user string, script []string, opts ...HarnessOption) *TestHarness {
	h := &TestHarness{
		user:      user,
		script:    append([]string(nil), script...),
		responses: make(map[StepID]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TestHarness) User() string { return h.user }

func (h *TestHarness) Ask(ctx context.Context, prompt string, opts AskOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if h.awaiting {
		return "", ErrStepIncomplete
	}
	h.logf("BOT: %s", prompt)

	if h.pos >= len(h.script) {
		h.logf("* 'ask' called with no user response *")
		if h.simulateTimeout && h.onTimeout != nil {
			h.onTimeout(ctx)
			return "", ErrTimeout
		}
		return "", ErrNoMoreInput
	}

	reply := h.script[h.pos]
	h.pos++
	h.logf("USER: %s", reply)
	if opts.Key != "" {
		h.responses[opts.Key] = reply
	}
	h.awaiting = opts.AwaitNext
	return reply, nil
}

func (h *TestHarness) Say(ctx context.Context, text string) error {
	h.logf("BOT: %s", text)
	return nil
}

func (h *TestHarness) Next() { h.awaiting = false }

// SetTimeout is recorded but never armed; timeouts are simulated on demand.
func (h *TestHarness) SetTimeout(d time.Duration) { h.timeout = d }

func (h *TestHarness) OnTimeout(fn func(ctx context.Context)) { h.onTimeout = fn }

func (h *TestHarness) ExtractResponse(key StepID) (string, bool) {
	r, ok := h.responses[key]
	return r, ok
}

// Remaining returns the number of unused scripted replies.
func (h *TestHarness) Remaining() int { return len(h.script) - h.pos }

// Transcript returns the lines logged so far.
func (h *TestHarness) Transcript() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.transcript...)
}

func (h *TestHarness) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transcript = append(h.transcript, line)
	if h.out != nil {
		if _, err := io.WriteString(h.out, line+"\n"); err != nil {
			slog.Warn("TestHarness: transcript write failed", "error", err)
		}
	}
}

// RunScript plays script through the engine as user and writes the transcript to w
// when it is not nil.
func RunScript(ctx context.Context, engine *Engine, resolver *SessionResolver, user string, script []string, w io.Writer) (Outcome, []string, error) {
	session := models.Session{User: user, StartTime: time.Now(), Anonymous: true}
	if resolver != nil {
		session = resolver.Resolve(ctx, user)
	}
	var opts []HarnessOption
	if w != nil {
		opts = append(opts, WithTranscriptWriter(w))
	}
	h := NewTestHarness(user, script, opts...)
	outcome, err := engine.Start(ctx, h, session)
	return outcome, h.Transcript(), err
}
