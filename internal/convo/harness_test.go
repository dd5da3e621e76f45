package convo

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/foodfinderyyc/smsbot/internal/store"
)

func TestTestHarness_ReplaysScript(t *testing.T) {
	ctx := context.Background()
	h := NewTestHarness("+1", []string{"a", "b"})

	r, err := h.Ask(ctx, "first?", AskOptions{Key: StepGreeting})
	if err != nil || r != "a" {
		t.Fatalf("expected a, got %q, %v", r, err)
	}
	r, err = h.Ask(ctx, "second?", AskOptions{})
	if err != nil || r != "b" {
		t.Fatalf("expected b, got %q, %v", r, err)
	}
	if _, err := h.Ask(ctx, "third?", AskOptions{}); !errors.Is(err, ErrNoMoreInput) {
		t.Errorf("expected ErrNoMoreInput, got %v", err)
	}
	if got, ok := h.ExtractResponse(StepGreeting); !ok || got != "a" {
		t.Errorf("expected stored response a, got %q %v", got, ok)
	}
	if _, ok := h.ExtractResponse(StepPlace); ok {
		t.Error("expected no response for place")
	}

	want := []string{"BOT: first?", "USER: a", "BOT: second?", "USER: b", "BOT: third?", "* 'ask' called with no user response *"}
	got := h.Transcript()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestTestHarness_AwaitNext(t *testing.T) {
	ctx := context.Background()
	h := NewTestHarness("+1", []string{"a", "b"})
	if _, err := h.Ask(ctx, "lookup?", AskOptions{AwaitNext: true}); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := h.Ask(ctx, "too soon", AskOptions{}); !errors.Is(err, ErrStepIncomplete) {
		t.Errorf("expected ErrStepIncomplete, got %v", err)
	}
	h.Next()
	if r, err := h.Ask(ctx, "next?", AskOptions{}); err != nil || r != "b" {
		t.Errorf("expected b after Next, got %q, %v", r, err)
	}
}

func TestTestHarness_SimulatedTimeout(t *testing.T) {
	h := NewTestHarness("+1", nil, WithSimulatedTimeout())
	fired := false
	h.OnTimeout(func(ctx context.Context) { fired = true })
	if _, err := h.Ask(context.Background(), "anyone?", AskOptions{}); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if !fired {
		t.Error("expected timeout handler to run")
	}
}

func TestRunScript_WritesTranscript(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	outcome, lines, err := RunScript(context.Background(), f.engine, nil, "+1", []string{"1", "1", "123 Main St"}, &buf)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("RunScript: %s, %v", outcome, err)
	}
	if !strings.HasPrefix(buf.String(), "BOT: "+f.def.Greeting) {
		t.Errorf("transcript file missing greeting: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "USER: 123 Main St\n") {
		t.Errorf("transcript file missing reply: %q", buf.String())
	}
	if len(lines) != 7 {
		t.Errorf("expected 7 lines, got %d", len(lines))
	}
	// Without a resolver the run is anonymous and leaves no events behind.
	all, _ := f.log.Events(context.Background(), store.EventFilter{})
	if len(all) != 0 {
		t.Errorf("expected no events, got %d", len(all))
	}
}
