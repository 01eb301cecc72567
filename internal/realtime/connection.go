// ABOUTME: One live push-channel connection with its buffered outbound queue
// ABOUTME: Sends never block; a full queue drops the frame for this connection only

package realtime

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/2389/reelchat/internal/wire"
)

// Connection is a single authenticated push-channel connection. A user may
// hold several at once (multiple tabs or devices).
type Connection struct {
	ID     string
	UserID string

	mu      sync.RWMutex
	out     chan wire.Frame
	closed  bool
	limiter *rate.Limiter
	typing  map[string]bool // conversation IDs this connection flagged as typing
}

func newConnection(id, userID string, buffer int, limiter *rate.Limiter) *Connection {
	return &Connection{
		ID:      id,
		UserID:  userID,
		out:     make(chan wire.Frame, buffer),
		limiter: limiter,
		typing:  make(map[string]bool),
	}
}

// Outbound returns the frames queued for this connection. The channel is
// closed when the connection is unregistered.
func (c *Connection) Outbound() <-chan wire.Frame {
	return c.out
}

// send queues a frame. Returns false if the connection is closed or its
// queue is full.
func (c *Connection) send(f wire.Frame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	// Hold the read lock while sending to prevent close during send
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

// close marks the connection closed and closes its queue. Idempotent.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

// setTyping records the typing flag and reports whether it changed.
func (c *Connection) setTyping(conversationID string, typing bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typing[conversationID] == typing {
		return false
	}
	if typing {
		c.typing[conversationID] = true
	} else {
		delete(c.typing, conversationID)
	}
	return true
}

// takeTyping clears and returns every conversation flagged as typing.
func (c *Connection) takeTyping() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.typing))
	for id := range c.typing {
		ids = append(ids, id)
	}
	c.typing = make(map[string]bool)
	return ids
}
