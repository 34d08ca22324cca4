package bridge

import (
	"context"
	"sync"
)

// Token is a session's reusable cancel handle. One token exists per
// session for the life of the process; Reset arms it for each new turn
// and Set releases whichever turn currently holds it.
type Token struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Reset arms the token for a new turn. Any previous turn's context is
// cancelled and a fresh one derived from parent takes its place.
func (t *Token) Reset(parent context.Context) context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	return ctx
}

// Set cancels the context of the turn currently bound to the token.
// Setting an idle or already-set token is a no-op.
func (t *Token) Set() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}
