package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

const (
	outboundBufferSize = 256
	writeWait          = 10 * time.Second
)

// Client is one connection on the event channel. Outbound messages are
// queued and written in order by WriteLoop.
type Client struct {
	id   string
	conn *websocket.Conn

	sendMu sync.Mutex
	send   chan realtimeTypes.ServerEnvelope
	closed bool

	mu     sync.RWMutex
	groups map[string]struct{}
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan realtimeTypes.ServerEnvelope, outboundBufferSize),
		groups: make(map[string]struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Queue enqueues msg without blocking. It returns false when the client is
// closed or its queue is full.
func (c *Client) Queue(msg realtimeTypes.ServerEnvelope) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) WriteLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *Client) Close() {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.sendMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Join(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[group] = struct{}{}
}

func (c *Client) Leave(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, group)
}

func (c *Client) InGroup(group string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.groups[group]
	return ok
}

// Groups returns the groups the client belongs to in sorted order.
func (c *Client) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.groups))
	for group := range c.groups {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}
