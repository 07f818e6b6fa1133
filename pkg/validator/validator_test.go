package validator

import (
	"errors"
	"testing"
)

type request struct {
	SessionID string `json:"session_id" validate:"required"`
	Queue     string `json:"queue_type" validate:"omitempty,oneof=unsigned_users outstanding_requests"`
}

func TestMessages_UsesJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(request{Queue: "vip"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msgs := Messages(err)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", msgs)
	}
	if msgs[0] != "session_id is required" {
		t.Fatalf("unexpected message %q", msgs[0])
	}
	if msgs[1] != "queue_type must be one of: unsigned_users outstanding_requests" {
		t.Fatalf("unexpected message %q", msgs[1])
	}
}

func TestMessages_PlainError(t *testing.T) {
	if got := Messages(errors.New("boom")); len(got) != 1 || got[0] != "boom" {
		t.Fatalf("unexpected %v", got)
	}
	if Messages(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
