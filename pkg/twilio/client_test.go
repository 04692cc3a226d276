package twilio

import (
	"context"
	"errors"
	"testing"
)

func TestCreateCallRequiresCredentials(t *testing.T) {
	c := NewClient("", "")
	_, err := c.CreateCall(context.Background(), CreateCallRequest{To: "+919876543210", From: "+14155550100"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCreateCallHonoursCancelledContext(t *testing.T) {
	c := NewClient("AC123", "token")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.CreateCall(ctx, CreateCallRequest{To: "+919876543210"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
