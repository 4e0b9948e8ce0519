package main

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const wsIdlePingInterval = 30 * time.Second

// Client is one websocket connection. Outbound messages go through a
// buffered channel drained by the write loop; a full buffer drops the
// message rather than blocking the core.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	identity string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

// stop ends the write loop. Only the read loop calls it, once. The send
// channel stays open so late senders holding a stale reference never
// panic; their messages are simply never drained.
func (c *Client) stop() {
	close(c.done)
}

func (c *Client) Send(msgType string, payload any) {
	data, err := json.Marshal(wsMessage{Type: msgType, Payload: mustMarshal(payload)})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writeLoop drains the send channel, pinging when the connection has
// been idle long enough that intermediaries might drop it.
func (c *Client) writeLoop() {
	defer c.conn.Close()
	ticker := time.NewTicker(wsIdlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	pingPayload, _ := json.Marshal(wsMessage{Type: "ping"})

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < wsIdlePingInterval {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return
			}
			lastWrite = time.Now()
		}
	}
}
