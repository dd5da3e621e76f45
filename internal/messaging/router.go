package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
)

// ConversationRouter routes inbound messages to the sender's active conversation, or
// starts a new one when the message is a trigger and none is active.
type ConversationRouter struct {
	// active maps canonicalized phone numbers to their running conversation
	active map[string]*LiveConversation
	// mu protects concurrent access to the active map
	mu sync.Mutex
	wg sync.WaitGroup

	msgService Service
	engine     *convo.Engine
	resolver   *convo.SessionResolver
	dedup      store.InboundDedup
}

// RouterOption configures a ConversationRouter.
type RouterOption func(*ConversationRouter)

// WithDeduplicator drops inbound messages whose MessageID was already handled.
func WithDeduplicator(d store.InboundDedup) RouterOption {
	return func(cr *ConversationRouter) { cr.dedup = d }
}

// NewConversationRouter creates a router that runs dialogues with engine.
func NewConversationRouter(msgService Service, engine *convo.Engine, resolver *convo.SessionResolver, opts ...RouterOption) *ConversationRouter {
	cr := &ConversationRouter{
		active:     make(map[string]*LiveConversation),
		msgService: msgService,
		engine:     engine,
		resolver:   resolver,
	}
	for _, opt := range opts {
		opt(cr)
	}
	return cr
}

// ProcessResponse handles one inbound message. It returns true when the message was
// delivered to a conversation or started one.
func (cr *ConversationRouter) ProcessResponse(ctx context.Context, response models.Response) (bool, error) {
	user, err := cr.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ConversationRouter ProcessResponse validation failed", "error", err, "from", response.From)
		return false, fmt.Errorf("invalid sender: %w", err)
	}
	if cr.dedup != nil && response.MessageID != "" {
		fresh, err := cr.dedup.RecordInbound(ctx, response.MessageID, user)
		if err != nil {
			// A dedup failure must not drop the message.
			slog.Warn("ConversationRouter dedup check failed", "error", err, "message_id", response.MessageID)
		} else if !fresh {
			slog.Info("ConversationRouter ignoring duplicate message", "message_id", response.MessageID, "user", user)
			return false, nil
		}
	}

	cr.mu.Lock()
	if conv, ok := cr.active[user]; ok {
		cr.mu.Unlock()
		slog.Debug("ConversationRouter delivering reply", "user", user)
		return conv.Deliver(response.Body), nil
	}
	if !cr.engine.Definition().Hears(response.Body) {
		cr.mu.Unlock()
		slog.Debug("ConversationRouter ignoring message without trigger", "user", user)
		return false, nil
	}
	conv := NewLiveConversation(user, cr.msgService)
	cr.active[user] = conv
	cr.wg.Add(1)
	cr.mu.Unlock()

	go cr.run(ctx, conv)
	return true, nil
}

func (cr *ConversationRouter) run(ctx context.Context, conv *LiveConversation) {
	defer cr.wg.Done()
	defer func() {
		cr.mu.Lock()
		delete(cr.active, conv.User())
		cr.mu.Unlock()
	}()

	session := cr.resolver.Resolve(ctx, conv.User())
	outcome, err := cr.engine.Start(ctx, conv, session)
	if err != nil {
		slog.Error("ConversationRouter dialogue failed", "error", err, "user", conv.User(), "outcome", outcome)
		return
	}
	slog.Debug("ConversationRouter dialogue finished", "user", conv.User(), "outcome", outcome)
}

// IsActive reports whether user has a running conversation.
func (cr *ConversationRouter) IsActive(user string) bool {
	canonical, err := cr.msgService.ValidateAndCanonicalizeRecipient(user)
	if err != nil {
		return false
	}
	cr.mu.Lock()
	defer cr.mu.Unlock()
	_, ok := cr.active[canonical]
	return ok
}

// ActiveCount returns the number of running conversations.
func (cr *ConversationRouter) ActiveCount() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.active)
}

// Run consumes the service's inbound messages until ctx is done or the channel closes,
// then waits for running conversations to end.
func (cr *ConversationRouter) Run(ctx context.Context) {
	slog.Info("ConversationRouter started")
	defer func() {
		cr.wg.Wait()
		slog.Info("ConversationRouter stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case response, ok := <-cr.msgService.Responses():
			if !ok {
				return
			}
			if _, err := cr.ProcessResponse(ctx, response); err != nil {
				slog.Warn("ConversationRouter could not process message", "error", err)
			}
		}
	}
}
