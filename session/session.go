// Package session carries the ambient per-call scope on the context.
//
// The surrounding conversation layer decides which user and thread a tool
// call acts on; the model never passes user_id or thread_id as tool
// arguments (delete_memory's explicit user_id is the one exception, handled
// at the tool layer). This lives in its own package to avoid import cycles
// between the tool layer and the engine.
package session

import (
	stdctx "context"

	"github.com/recallkit/memoryd/memory"
)

// Scope identifies whose memories a call touches.
type Scope struct {
	UserID string
	// ThreadID optionally narrows the scope to one conversation.
	ThreadID string
}

// scopeKey is the context key type for the ambient scope.
type scopeKey struct{}

// WithScope attaches a scope to the context.
func WithScope(ctx stdctx.Context, s Scope) stdctx.Context {
	return stdctx.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom retrieves the ambient scope. Calls without a scope act under
// the reserved system user.
func ScopeFrom(ctx stdctx.Context) Scope {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || s.UserID == "" {
		s.UserID = memory.SystemUserID
	}
	return s
}

// ThreadIDPtr returns the scope's thread as the engine's optional form.
func (s Scope) ThreadIDPtr() *string {
	if s.ThreadID == "" {
		return nil
	}
	t := s.ThreadID
	return &t
}
