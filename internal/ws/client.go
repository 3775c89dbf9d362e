package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/linguaschool/chat-backend/pkg/logger"
)

// FrameHandler processes one inbound client frame
type FrameHandler interface {
	HandleFrame(c *Client, data []byte)
}

// Client represents a single WebSocket connection.
// A zero userID means the connection is not authenticated.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	userID uint64
	send   chan []byte

	mu        sync.Mutex
	closed    bool
	closeCode int
	ctx       context.Context
	cancel context.CancelFunc
}

// NewClient creates a new WebSocket client bound to hub
func NewClient(hub *Hub, conn *websocket.Conn, userID uint64) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, hub.opts.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() uint64 { return c.userID }

func (c *Client) Authenticated() bool { return c.userID != 0 }

// Context is canceled once the connection is closed
func (c *Client) Context() context.Context { return c.ctx }

// Done is closed once the connection is closed
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Send queues a direct reply to this connection. A full queue drops the connection.
func (c *Client) Send(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log := logger.WithConn(c.id, c.userID)
		log.Error().Err(err).Str("type", event.Type).Msg("ws: marshal reply failed")
		return
	}
	if !c.enqueue(data) {
		c.hub.Unregister(c)
	}
}

// SendError queues an error frame
func (c *Client) SendError(code, message string, retryAfterSeconds int) {
	c.Send(&Event{Type: EventError, Payload: &ErrorPayload{
		Code:              code,
		Message:           message,
		RetryAfterSeconds: retryAfterSeconds,
	}})
}

// enqueue never blocks. It reports false when the queue is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the connection closed; code is the close frame the write pump sends. The first call wins.
func (c *Client) close(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.cancel()
}

func (c *Client) closeStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadPump reads client frames until the connection fails or stays silent past the grace period
func (c *Client) ReadPump(handler FrameHandler) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	grace := c.hub.opts.DisconnectGrace
	c.conn.SetReadLimit(c.hub.opts.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(grace)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(grace)) //nolint:errcheck
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log := logger.WithConn(c.id, c.userID)
				log.Debug().Err(err).Msg("ws: read failed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(grace)) //nolint:errcheck
		handler.HandleFrame(c, data)
	}
}

// WritePump drains the send queue and pings at the heartbeat interval
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.opts.HeartbeatInterval)
	writeWait := c.hub.opts.WriteWait
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.hub.Unregister(c)
				return
			}
			w.Write(message) //nolint:errcheck
			if err := w.Close(); err != nil {
				c.hub.Unregister(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}

		case <-c.ctx.Done():
			closeMsg := websocket.FormatCloseMessage(c.closeStatus(), "")
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			c.conn.WriteMessage(websocket.CloseMessage, closeMsg) //nolint:errcheck
			return
		}
	}
}
