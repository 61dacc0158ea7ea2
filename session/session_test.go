package session

import (
	"context"
	"testing"

	"github.com/recallkit/memoryd/memory"
)

func TestScopeRoundTrip(t *testing.T) {
	ctx := WithScope(context.Background(), Scope{UserID: "alice", ThreadID: "thread-1"})

	scope := ScopeFrom(ctx)
	if scope.UserID != "alice" || scope.ThreadID != "thread-1" {
		t.Fatalf("scope = %+v", scope)
	}
}

func TestScopeFrom_DefaultsToSystem(t *testing.T) {
	scope := ScopeFrom(context.Background())
	if scope.UserID != memory.SystemUserID {
		t.Fatalf("user_id = %q, want %q", scope.UserID, memory.SystemUserID)
	}

	// An attached scope with a blank user also falls back.
	ctx := WithScope(context.Background(), Scope{ThreadID: "thread-1"})
	scope = ScopeFrom(ctx)
	if scope.UserID != memory.SystemUserID {
		t.Fatalf("blank user_id = %q, want %q", scope.UserID, memory.SystemUserID)
	}
	if scope.ThreadID != "thread-1" {
		t.Fatalf("thread_id = %q, want thread-1", scope.ThreadID)
	}
}

func TestThreadIDPtr(t *testing.T) {
	if ptr := (Scope{}).ThreadIDPtr(); ptr != nil {
		t.Fatalf("expected nil for empty thread, got %q", *ptr)
	}
	ptr := (Scope{ThreadID: "thread-1"}).ThreadIDPtr()
	if ptr == nil || *ptr != "thread-1" {
		t.Fatalf("ptr = %v", ptr)
	}
}
