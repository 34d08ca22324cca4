// Package bridge owns turn execution. It runs the orchestrator on a
// bounded worker pool, serializes turns per session, tags every event
// with its session before fanning it out on the bus, and drives the
// autonomous turns that sentinel triggers provoke.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/time/rate"

	"github.com/resonancehq/resonance/internal/agent"
	"github.com/resonancehq/resonance/internal/bus"
	"github.com/resonancehq/resonance/internal/notify"
	"github.com/resonancehq/resonance/internal/transcript"
)

// DefaultMaxWorkers bounds concurrent turns when the config gives no
// explicit pool size.
const DefaultMaxWorkers = 10

// toastWidth bounds the notification body in display cells.
const toastWidth = 120

// reactionSettle is how long a reaction waits before its first event,
// so a client launched by the same trigger can finish its WebSocket
// handshake. Variable for tests.
var reactionSettle = 500 * time.Millisecond

// Sentinel reactions are throttled so a flapping watcher cannot burn
// tokens: a burst of three, then one autonomous turn per two seconds.
const (
	reactionBurst    = 3
	reactionInterval = 2 * time.Second
)

// ErrClosed is returned for turns submitted after Close.
var ErrClosed = errors.New("bridge: closed")

// Config wires a Bridge.
type Config struct {
	Host     *agent.Host
	Bus      bus.EventPublisher
	Notifier notify.Sink

	// MaxWorkers bounds concurrent turns across all sessions.
	// Zero means DefaultMaxWorkers.
	MaxWorkers int
}

// Bridge schedules turns. Turns on the same session are serialized: a
// second submission queues behind the first. Turns on different
// sessions run concurrently up to the pool size.
type Bridge struct {
	host     *agent.Host
	bus      bus.EventPublisher
	notifier notify.Sink
	workers  chan struct{}
	limiter  *rate.Limiter

	sessions sync.Map // session id → *sessionState
	turns    sync.WaitGroup
	closed   atomic.Bool
}

// sessionState is a session's scheduling slot: one turn mutex, one
// reusable cancel token.
type sessionState struct {
	turnMu sync.Mutex
	token  Token
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	sink := cfg.Notifier
	if sink == nil {
		sink = notify.Log()
	}
	return &Bridge{
		host:     cfg.Host,
		bus:      cfg.Bus,
		notifier: sink,
		workers:  make(chan struct{}, workers),
		limiter:  rate.NewLimiter(rate.Every(reactionInterval), reactionBurst),
	}
}

// Submit schedules a turn and returns immediately. Events reach clients
// through the bus; failures surface as error events and in the log.
func (b *Bridge) Submit(session, text string) {
	session = orMain(session)
	b.turns.Add(1)
	go func() {
		defer b.turns.Done()
		if _, err := b.run(context.Background(), session, text, nil); err != nil && !errors.Is(err, ErrClosed) {
			slog.Error("bridge.turn.failed", "session", session, "error", err)
		}
	}()
}

// RunSync executes a turn on the caller's goroutine and returns the
// assistant prose aggregated across the whole turn. When the model
// produced no prose but ran tools, the last tool execution is
// summarized instead.
func (b *Bridge) RunSync(ctx context.Context, session, text string) (string, error) {
	session = orMain(session)
	var prose strings.Builder
	var lastTool string
	_, err := b.run(ctx, session, text, func(ev bus.Event) {
		switch ev.Type {
		case bus.EventDelta:
			prose.WriteString(ev.Content)
		case bus.EventTool:
			lastTool = fmt.Sprintf("[Tool Executed: %s -> %.100s...]", ev.Name, ev.Content)
		}
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(prose.String()) == "" {
		return lastTool, nil
	}
	return prose.String(), nil
}

// run drives one turn end to end: queue behind the session's previous
// turn, take a pool slot, arm the cancel token, stream events. observe,
// when non-nil, sees every event after session tagging, on the worker's
// goroutine.
func (b *Bridge) run(parent context.Context, session, text string, observe func(bus.Event)) (*agent.TurnResult, error) {
	st := b.state(session)
	st.turnMu.Lock()
	defer st.turnMu.Unlock()

	select {
	case b.workers <- struct{}{}:
	case <-parent.Done():
		return nil, parent.Err()
	}
	defer func() { <-b.workers }()

	if b.closed.Load() {
		return nil, ErrClosed
	}

	ctx := st.token.Reset(parent)
	defer st.token.Set()

	emit := func(ev bus.Event) {
		ev.SessionID = session
		if observe != nil {
			observe(ev)
		}
		b.bus.Broadcast(ev)
	}
	res, err := b.host.RunTurn(ctx, session, text, emit)

	// done closes the turn stream for clients no matter how the turn
	// ended; an error event alone does not release a waiting frontend.
	emit(bus.Event{Type: bus.EventDone})
	return res, err
}

// Cancel interrupts the in-flight turn on session, if any. An empty
// session interrupts every session. Cancelling an idle session is a
// no-op, as is cancelling twice.
func (b *Bridge) Cancel(session string) {
	if session == "" {
		b.sessions.Range(func(_, v any) bool {
			v.(*sessionState).token.Set()
			return true
		})
		return
	}
	if v, ok := b.sessions.Load(session); ok {
		v.(*sessionState).token.Set()
	}
}

// OnSentinelTrigger is the sentinel engine's callback. The alert always
// lands in the main transcript; an autonomous reaction turn follows
// unless the reaction throttle is exhausted.
func (b *Bridge) OnSentinelTrigger(message string) {
	b.host.IngestSentinelAlert(message)
	if b.closed.Load() {
		return
	}
	if !b.limiter.Allow() {
		slog.Warn("bridge.reaction.throttled", "message", message)
		return
	}
	b.turns.Add(1)
	go b.react(message)
}

// react runs the autonomous turn for one sentinel trigger and raises a
// notification with the reply.
func (b *Bridge) react(message string) {
	defer b.turns.Done()

	time.Sleep(reactionSettle)

	b.bus.Broadcast(bus.Event{
		Type:      bus.EventSentinelAlert,
		Content:   fmt.Sprintf("Sentinel triggered. AI is responding to: %s", message),
		SessionID: transcript.MainSession,
	})

	var prose strings.Builder
	alert := fmt.Sprintf("[System Alert]: %s. Please check this and take necessary actions.", message)
	if _, err := b.run(context.Background(), transcript.MainSession, alert, func(ev bus.Event) {
		if ev.Type == bus.EventDelta {
			prose.WriteString(ev.Content)
		}
	}); err != nil {
		if !errors.Is(err, ErrClosed) {
			slog.Error("bridge.reaction.failed", "error", err)
		}
		return
	}
	if text := strings.TrimSpace(prose.String()); text != "" {
		b.notifier.Send("Resonance AI (Sentinel Response)", toastBody(text))
	}
}

// Close interrupts every in-flight turn, rejects new ones, and waits
// for the pool to drain. Async extraction is the host's to drain, not
// the bridge's.
func (b *Bridge) Close() {
	b.closed.Store(true)
	b.Cancel("")
	b.turns.Wait()
}

// state returns the session's scheduling slot, creating it on first use.
func (b *Bridge) state(session string) *sessionState {
	if v, ok := b.sessions.Load(session); ok {
		return v.(*sessionState)
	}
	v, _ := b.sessions.LoadOrStore(session, &sessionState{})
	return v.(*sessionState)
}

// toastBody strips markdown emphasis and bounds the text to a
// toast-sized line.
func toastBody(s string) string {
	s = strings.NewReplacer("*", "", "#", "").Replace(s)
	return runewidth.Truncate(s, toastWidth, "...")
}

func orMain(session string) string {
	if session == "" {
		return transcript.MainSession
	}
	return session
}
