package sms

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSender_RedactsCode(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	if err := s.Send(context.Background(), "+14155550123", "Your Imaro verification code is: 482913"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	msg, _ := fields["message"].(string)
	if strings.ContainsAny(msg, "0123456789") {
		t.Errorf("message = %q, contains digits", msg)
	}
	if want := "Your Imaro verification code is: ******"; msg != want {
		t.Errorf("message = %q, want %q", msg, want)
	}
	if phone, _ := fields["phone"].(string); strings.Contains(phone, "5550123") {
		t.Errorf("phone = %q, not masked", phone)
	}
}
