// Package messaging connects the SMS transport to the dialogue engine.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

const (
	// DefaultChannelBufferSize defines the default buffer size for the responses channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an inbound message may wait for channel space
	DefaultChannelTimeout = 100 * time.Millisecond
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// nonDigitRegex matches every character that is not a digit.
var nonDigitRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming messages.
	Responses() <-chan models.Response
}
