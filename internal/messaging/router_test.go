package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
	"github.com/foodfinderyyc/smsbot/internal/twiliosms"
)

type fixedGeocoder struct{}

func (fixedGeocoder) GeocodeLocality(ctx context.Context, text, locality string) (models.Coordinate, error) {
	if text == "123 Main St" {
		return models.Coordinate{Lat: 51.04, Lon: -114.07}, nil
	}
	return models.Coordinate{}, errors.New("not found")
}

type fixedSearcher struct{}

func (fixedSearcher) Search(ctx context.Context, q models.SearchQuery) ([]models.Location, error) {
	return []models.Location{{Name: "Drop-In Centre", Address: "1 Dermot Baldwin Way SE"}}, nil
}

type routerFixture struct {
	router *ConversationRouter
	svc    *TwilioService
	log    *store.InMemoryEventLog
	sent   chan twiliosms.SentMessage
	def    *convo.Definition
}

func newRouterFixture(t *testing.T, timeout time.Duration) *routerFixture {
	t.Helper()
	def, err := convo.DefaultDefinition()
	if err != nil {
		t.Fatalf("DefaultDefinition failed: %v", err)
	}
	def.TimeoutAfter = timeout

	f := &routerFixture{log: store.NewInMemoryEventLog(), sent: make(chan twiliosms.SentMessage, 32), def: def}
	mock := twiliosms.NewMockClient()
	mock.OnSend = func(m twiliosms.SentMessage) { f.sent <- m }
	f.svc = NewTwilioService(mock)
	engine := convo.NewEngine(def, fixedGeocoder{}, fixedSearcher{}, nil, convo.WithEventRecorder(f.log))
	f.router = NewConversationRouter(f.svc, engine, convo.NewSessionResolver(f.log, "D"))
	return f
}

func (f *routerFixture) next(t *testing.T) twiliosms.SentMessage {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
	}
	return twiliosms.SentMessage{}
}

func (f *routerFixture) send(t *testing.T, from, body string) bool {
	t.Helper()
	handled, err := f.router.ProcessResponse(context.Background(), models.Response{From: from, Body: body})
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	return handled
}

func waitInactive(t *testing.T, r *ConversationRouter, user string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.IsActive(user) {
		if time.Now().After(deadline) {
			t.Fatal("conversation did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConversationRouter_FullDialogue(t *testing.T) {
	f := newRouterFixture(t, time.Minute)
	user := "(403) 555-0100"

	if !f.send(t, user, "FOOD") {
		t.Fatal("trigger should start a conversation")
	}
	if m := f.next(t); m.To != "+14035550100" || !strings.HasPrefix(m.Body, f.def.Greeting) {
		t.Fatalf("unexpected greeting %+v", m)
	}
	if !f.router.IsActive(user) {
		t.Error("expected active conversation")
	}

	f.send(t, user, "1")
	if m := f.next(t); m.Body != f.def.Step(convo.StepLocationType).Text {
		t.Fatalf("unexpected location prompt %q", m.Body)
	}
	f.send(t, user, "address")
	f.next(t)
	f.send(t, user, "123 Main St")
	if m := f.next(t); !strings.Contains(m.Body, "Drop-In Centre\n1 Dermot Baldwin Way SE") {
		t.Fatalf("unexpected results %q", m.Body)
	}

	waitInactive(t, f.router, user)
	n, _ := f.log.LatestSession(context.Background(), "+14035550100", "D")
	if n != 1 {
		t.Errorf("expected session 1 recorded, got %d", n)
	}

	// A new trigger starts the second session.
	f.send(t, user, "food")
	f.next(t)
	f.send(t, user, "2")
	f.next(t)
	f.send(t, user, "1")
	f.next(t)
	f.send(t, user, "123 Main St")
	f.next(t)
	waitInactive(t, f.router, user)
	n, _ = f.log.LatestSession(context.Background(), "+14035550100", "D")
	if n != 2 {
		t.Errorf("expected session 2 recorded, got %d", n)
	}
}

func TestConversationRouter_Timeout(t *testing.T) {
	f := newRouterFixture(t, 30*time.Millisecond)
	f.send(t, "+14035550100", "FOOD")
	f.next(t)
	if m := f.next(t); m.Body != f.def.TimeoutText {
		t.Fatalf("expected timeout message, got %q", m.Body)
	}
	waitInactive(t, f.router, "+14035550100")
	events, _ := f.log.Events(context.Background(), store.EventFilter{})
	if len(events) != 0 {
		t.Errorf("timeout must not record events, got %d", len(events))
	}
}

func TestConversationRouter_IndependentUsers(t *testing.T) {
	f := newRouterFixture(t, time.Minute)
	f.send(t, "+14035550100", "FOOD")
	f.send(t, "+14035550199", "FOOD")
	seen := map[string]bool{}
	seen[f.next(t).To] = true
	seen[f.next(t).To] = true
	if !seen["+14035550100"] || !seen["+14035550199"] {
		t.Errorf("expected greetings to both users, got %v", seen)
	}
	if f.router.ActiveCount() != 2 {
		t.Errorf("expected 2 active conversations, got %d", f.router.ActiveCount())
	}
}

func TestConversationRouter_InvalidSender(t *testing.T) {
	f := newRouterFixture(t, time.Minute)
	if _, err := f.router.ProcessResponse(context.Background(), models.Response{From: "nobody", Body: "FOOD"}); err == nil {
		t.Error("expected error for invalid sender")
	}
}

func TestConversationRouter_Run(t *testing.T) {
	f := newRouterFixture(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.router.Run(ctx)
		close(done)
	}()

	f.svc.safeEmitResponse(models.Response{From: "+14035550100", Body: "FOOD"})
	f.next(t)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if f.router.ActiveCount() != 0 {
		t.Errorf("expected conversations to end with the context, got %d", f.router.ActiveCount())
	}
}

func TestConversationRouter_DropsDuplicates(t *testing.T) {
	f := newRouterFixture(t, time.Minute)
	f.router.dedup = f.log
	msg := models.Response{MessageID: "SM1", From: "+14035550100", Body: "FOOD"}

	if handled, _ := f.router.ProcessResponse(context.Background(), msg); !handled {
		t.Fatal("first delivery should start a conversation")
	}
	f.next(t)
	if handled, _ := f.router.ProcessResponse(context.Background(), msg); handled {
		t.Error("retried delivery should be dropped")
	}
	msg.MessageID, msg.Body = "SM2", "1"
	if handled, _ := f.router.ProcessResponse(context.Background(), msg); !handled {
		t.Error("new message should be delivered")
	}
	f.next(t)
}
