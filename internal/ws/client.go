package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

// Client is a single websocket connection. Writes go through the send
// channel so the write pump is the only goroutine touching the socket.
type Client struct {
	ID   string
	conn *websocket.Conn

	send    chan []byte
	limiter *rate.Limiter

	// mu makes enqueues atomic with channel closure: a dispatch racing
	// a disconnect must never send on a closed channel.
	mu     sync.RWMutex
	closed bool
}

func NewClient(id string, conn *websocket.Conn, inboundPerSecond int) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(rate.Limit(inboundPerSecond), inboundPerSecond),
	}
}

// Allow applies the inbound rate limit to one received event.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

// Enqueue hands a frame to the write pump. A full buffer means a slow
// consumer; the frame is dropped and the caller may close the client.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. Runs until the channel closes or a
// write fails.
func (c *Client) WritePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// Close shuts the send channel exactly once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
