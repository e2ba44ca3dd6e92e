package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/protocol"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pongs and inbound frames both reset it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second
)

// Client is the server-side handle for one connection. The hub is the only
// producer on send; the writer pump is its only consumer. done is closed
// exactly once, during teardown, and stops the writer.
type Client struct {
	id   uuid.UUID
	name string
	conn *websocket.Conn
	hub  *Hub
	log  *slog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	limiter        *rateLimiter
	maxMessageSize int64
}

func newClient(id uuid.UUID, name string, conn *websocket.Conn, hub *Hub, maxMessageSize int64, limiter *rateLimiter, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		id:             id,
		name:           name,
		conn:           conn,
		hub:            hub,
		log:            log.With("client_id", id, "name", name),
		send:           make(chan []byte, hub.queueSize),
		done:           make(chan struct{}),
		limiter:        limiter,
		maxMessageSize: maxMessageSize,
	}
}

// ID returns the client's connection-scoped identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Name returns the client's display name.
func (c *Client) Name() string {
	return c.name
}

// teardown closes the connection down at most once: the registry entry is
// removed, the socket closed, and the writer stopped. Both pumps and the
// hub's slow-consumer path call it; whichever gets here first wins and the
// rest are no-ops, so there is exactly one Leave and one unregister per
// connection. publish=false is used by the hub loop, which fans the Leave
// out inline itself instead of re-entering its own intake.
func (c *Client) teardown(publish bool) bool {
	won := false
	c.once.Do(func() {
		won = true

		if _, err := c.hub.registry.Unregister(c.id); err != nil {
			// The handle was torn down without going through here; that
			// would be a lifecycle defect, not a normal race.
			c.log.Error("registry unregister failed", "err", err)
		}
		close(c.done)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				c.log.Debug("error closing connection", "err", err)
			}
		}

		if publish {
			now := time.Now().UTC()
			c.hub.Publish(Event{Type: protocol.EventLeave, ClientID: c.id, Name: c.name, Timestamp: now})
			c.hub.Publish(Event{Type: protocol.EventRoster})
		}
	})
	return won
}

// readPump decodes inbound frames and publishes them until the connection
// fails or the client says goodbye. Any decode failure is fatal for the
// connection; there is no mid-frame recovery.
func (c *Client) readPump() {
	defer c.teardown(true)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("failed to set read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		frame, err := protocol.DecodeClientFrame(raw)
		if err != nil {
			c.log.Warn("malformed frame, closing connection", "err", err)
			return
		}

		switch frame.Type {
		case protocol.FrameMessage:
			if !c.limiter.allow() {
				c.log.Warn("rate limit exceeded, discarding message")
				continue
			}
			c.hub.Publish(Event{
				Type:      protocol.EventMessage,
				ClientID:  c.id,
				Name:      c.name,
				Text:      frame.Text,
				Timestamp: time.Now().UTC(),
			})
		case protocol.FrameBye:
			c.log.Debug("client said goodbye")
			return
		case protocol.FrameHello:
			// Repeated hello after the handshake carries no meaning.
			c.log.Debug("ignoring duplicate hello")
		}
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with pings. A write failure drives the same teardown
// path as a read failure.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown(true)
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("write failed", "err", err)
				}
				return
			}
		case <-c.done:
			// Best effort: the peer learns this was deliberate.
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("ping failed", "err", err)
				}
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

// logReadError classifies a read failure so routine disconnects stay quiet.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("inbound frame exceeded size limit", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", "err", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("connection closed", "err", err)
	default:
		c.log.Warn("read failed", "err", err)
	}
}

// isExpectedCloseError reports errors that routinely surface while a
// connection is being torn down.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
