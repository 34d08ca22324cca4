package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/resonancehq/resonance/internal/bus"
	"github.com/resonancehq/resonance/internal/transcript"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Client is one WebSocket connection. Outbound events flow through a
// buffered channel drained by a single writer goroutine, so bus handlers
// never block on a slow socket.
type Client struct {
	id   string
	conn *websocket.Conn
	srv  *Server

	send chan bus.Event
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, srv *Server) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		srv:  srv,
		send: make(chan bus.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

// SendEvent queues an event for delivery. A client that cannot drain its
// buffer is disconnected rather than allowed to stall the bus.
func (c *Client) SendEvent(ev bus.Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		slog.Warn("gateway.client.overflow", "id", c.id)
		c.Close()
	}
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Run drives the connection until the socket closes or ctx is done.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	c.readPump()
}

func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("gateway.client.read", "id", c.id, "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inbound is one client chat frame.
type inbound struct {
	Message   string      `json:"message"`
	SessionID string      `json:"session_id"`
	ID        interface{} `json:"id"`
}

// handleMessage routes one inbound frame. "/stop" cancels the session's
// running turn and acks immediately; anything else is echoed back to this
// client and submitted as a turn. Runs on the read goroutine, so a running
// turn never blocks the stop path.
func (c *Client) handleMessage(data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.SendEvent(bus.Event{Type: bus.EventError, Content: "Invalid JSON format"})
		return
	}
	if in.Message == "" {
		return
	}
	session := in.SessionID
	if session == "" {
		session = transcript.MainSession
	}

	if in.Message == "/stop" {
		slog.Info("gateway.stop", "session", session)
		c.srv.bridge.Cancel(session)
		c.SendEvent(bus.Event{Type: bus.EventStatus, Content: "🛑 Aborted by User.", SessionID: session})
		c.SendEvent(bus.Event{Type: bus.EventDone, SessionID: session})
		return
	}

	c.SendEvent(bus.Event{Type: bus.EventUser, Content: in.Message, SessionID: session, ID: in.ID})
	c.srv.bridge.Submit(session, in.Message)
}
