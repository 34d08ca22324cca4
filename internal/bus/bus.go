package bus

import "sync"

// Event type constants. The flat Event shape is the wire format: the
// gateway serializes events to WebSocket clients as-is.
const (
	EventUser          = "user"
	EventStatus        = "status"
	EventDelta         = "delta"
	EventTool          = "tool"
	EventError         = "error"
	EventDone          = "done"
	EventSentinelAlert = "sentinel_alert"
)

// Event is one server-side event pushed to connected clients.
type Event struct {
	Type      string      `json:"type"`
	Content   string      `json:"content,omitempty"`
	Name      string      `json:"name,omitempty"` // tool name on "tool" events
	ID        interface{} `json:"id,omitempty"`   // client message id, echoed on "user" events
	SessionID string      `json:"session_id,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and the bridge to decouple from the concrete Bus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// Bus is the in-process publisher connecting the bridge to WebSocket clients.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]EventHandler)}
}

// Subscribe registers a handler under id, replacing any previous one.
func (b *Bus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers event to every subscriber on the caller's goroutine.
// Handlers must not block; the gateway client wraps sends in a buffered
// writer goroutine for that reason.
func (b *Bus) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(event)
	}
}
