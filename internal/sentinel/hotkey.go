package sentinel

import "context"

// HotkeyListener is the engine's source of key-combo events. Capturing
// global keyboard input requires a desktop session, so the default
// implementation is a channel the gateway feeds from its hotkey press
// endpoint; a native capture backend can be swapped in behind the same
// interface.
type HotkeyListener interface {
	// Start begins forwarding combos to fire until ctx is done.
	Start(ctx context.Context, fire func(combo string)) error
	// Stop releases any capture resources. Idempotent.
	Stop()
}

// ChannelListener forwards injected key combos to the engine.
type ChannelListener struct {
	ch chan string
}

func NewChannelListener() *ChannelListener {
	return &ChannelListener{ch: make(chan string, 8)}
}

// Press injects one key-combo event. Non-blocking: presses are dropped
// when the engine is not consuming.
func (l *ChannelListener) Press(combo string) {
	select {
	case l.ch <- combo:
	default:
	}
}

func (l *ChannelListener) Start(ctx context.Context, fire func(string)) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case combo := <-l.ch:
				fire(combo)
			}
		}
	}()
	return nil
}

func (l *ChannelListener) Stop() {}
