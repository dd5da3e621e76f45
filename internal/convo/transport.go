package convo

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Ask when the inactivity timeout fired while waiting
	// for a reply. The timeout handler has already run.
	ErrTimeout = errors.New("conversation timed out")
	// ErrNoMoreInput is returned by a scripted transport whose script is exhausted.
	ErrNoMoreInput = errors.New("no more input")
	// ErrStepIncomplete is returned by Ask when the previous step asked the transport
	// to wait for Next and Next was not called.
	ErrStepIncomplete = errors.New("previous step not completed")
)

// AskOptions qualify one Ask call.
type AskOptions struct {
	// Key stores the reply for ExtractResponse.
	Key StepID
	// AwaitNext means the step does asynchronous work with the reply; the transport
	// must not deliver another reply until Next is called.
	AwaitNext bool
}

// Conversation is the ask/say transport one dialogue runs over. It is implemented by
// the live SMS binding and by TestHarness.
type Conversation interface {
	// User returns the sender identifier.
	User() string
	// Ask sends prompt and blocks until the reply arrives.
	Ask(ctx context.Context, prompt string, opts AskOptions) (string, error)
	// Say sends text without expecting a reply.
	Say(ctx context.Context, text string) error
	// Next signals that the current step's work is done.
	Next()
	// SetTimeout sets the inactivity period after which a pending Ask gives up.
	SetTimeout(d time.Duration)
	// OnTimeout registers the handler run when the inactivity timeout fires. The
	// handler runs on the goroutine blocked in Ask, before Ask returns ErrTimeout.
	OnTimeout(fn func(ctx context.Context))
	// ExtractResponse returns the reply stored under key by an earlier Ask.
	ExtractResponse(key StepID) (string, bool)
}
