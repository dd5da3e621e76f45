package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/convo"
)

// replyBuffer is how many unanswered inbound messages a conversation holds.
const replyBuffer = 8

// Sender sends one message to a recipient.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// LiveConversation is the SMS binding of convo.Conversation. Prompts go out through
// the sender; replies are delivered by the router.
type LiveConversation struct {
	user    string
	sender  Sender
	replies chan string

	mu        sync.Mutex
	timeout   time.Duration
	onTimeout func(ctx context.Context)
	responses map[convo.StepID]string
}

// NewLiveConversation creates a conversation with user.
func NewLiveConversation(user string, sender Sender) *LiveConversation {
	return &LiveConversation{
		user:      user,
		sender:    sender,
		replies:   make(chan string, replyBuffer),
		responses: make(map[convo.StepID]string),
	}
}

func (c *LiveConversation) User() string { return c.user }

// Ask sends prompt and waits for the next reply, the inactivity timeout or ctx.
// Replies that arrive while a step is still working wait in the buffer, so a step
// marked AwaitNext never sees a later reply early.
func (c *LiveConversation) Ask(ctx context.Context, prompt string, opts convo.AskOptions) (string, error) {
	if err := c.sender.SendMessage(ctx, c.user, prompt); err != nil {
		return "", err
	}

	c.mu.Lock()
	timeout := c.timeout
	c.mu.Unlock()
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case reply := <-c.replies:
		if opts.Key != "" {
			c.mu.Lock()
			c.responses[opts.Key] = reply
			c.mu.Unlock()
		}
		return reply, nil
	case <-expired:
		c.mu.Lock()
		handler := c.onTimeout
		c.mu.Unlock()
		if handler != nil {
			handler(ctx)
		}
		return "", convo.ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *LiveConversation) Say(ctx context.Context, text string) error {
	return c.sender.SendMessage(ctx, c.user, text)
}

// Next is a no-op: replies are only consumed by Ask.
func (c *LiveConversation) Next() {}

func (c *LiveConversation) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *LiveConversation) OnTimeout(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTimeout = fn
}

func (c *LiveConversation) ExtractResponse(key convo.StepID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.responses[key]
	return r, ok
}

// Deliver queues an inbound reply. It reports false when the buffer is full and the
// reply was dropped.
func (c *LiveConversation) Deliver(body string) bool {
	select {
	case c.replies <- body:
		return true
	default:
		slog.Warn("LiveConversation reply buffer full, dropping message", "user", c.user)
		return false
	}
}
