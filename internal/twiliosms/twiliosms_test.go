package twiliosms

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	var seen []SentMessage
	mock.OnSend = func(m SentMessage) { seen = append(seen, m) }

	err := mock.SendMessage(ctx, "+14035550100", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.Sent()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.Sent()))
	}
	if mock.Sent()[0].Body != "Hello Test" || mock.Sent()[0].To != "+14035550100" {
		t.Errorf("unexpected message %+v", mock.Sent()[0])
	}
	if len(seen) != 1 {
		t.Errorf("expected OnSend to be called once, got %d", len(seen))
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("twilio down")
	if err := mock.SendMessage(context.Background(), "+1", "x"); err == nil {
		t.Error("expected error")
	}
	if len(mock.Sent()) != 0 {
		t.Error("failed sends must not be recorded")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_PHONE_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFrom("+15875550000"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.from != "+15875550000" {
		t.Errorf("unexpected from %q", c.from)
	}
}

func TestNewClient_ReadsEnvironment(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15875550000")
	if _, err := NewClient(); err != nil {
		t.Errorf("expected env configuration to be used: %v", err)
	}
}
