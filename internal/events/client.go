package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
)

// Client is a websocket Subscriber with its own write goroutine.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan []byte, sendBuffer)}
}

// Send queues payload. It returns false when the buffer is full.
func (c *Client) Send(payload []byte) (ok bool) {
	defer func() {
		// send on a closed channel
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write loop, which then closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Serve registers the client with hub and pumps messages until the peer
// disconnects or the hub drops it.
func (c *Client) Serve(hub *Hub, userID string) {
	if !hub.Register(userID, c) {
		_ = c.conn.Close()
		return
	}
	go c.writeLoop()
	c.readLoop()
	hub.Unregister(userID, c)
}

// readLoop discards inbound frames; it exists to process control frames and
// notice disconnects.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
