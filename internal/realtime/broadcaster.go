// ABOUTME: In-memory fan-out of push frames to the connections joined to a conversation
// ABOUTME: Publishing is non-blocking and at-most-once per connection per publish

package realtime

import (
	"log/slog"
	"sync"

	"github.com/2389/reelchat/internal/wire"
)

// Broadcaster tracks which connections are joined to which conversation
// rooms and delivers frames to them.
type Broadcaster struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Connection // conversationID -> connID -> conn
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		rooms:  make(map[string]map[string]*Connection),
		logger: logger.With("component", "broadcaster"),
	}
}

// Join subscribes a connection to a conversation. Joining twice is a no-op;
// the return value reports whether the connection was newly added.
func (b *Broadcaster) Join(conversationID string, c *Connection) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, ok := b.rooms[conversationID]
	if !ok {
		room = make(map[string]*Connection)
		b.rooms[conversationID] = room
	}
	if _, exists := room[c.ID]; exists {
		return false
	}
	room[c.ID] = c

	b.logger.Debug("connection joined",
		"conversation_id", conversationID,
		"conn_id", c.ID)
	return true
}

// Leave unsubscribes a connection. Leaving a room the connection is not in is a no-op.
func (b *Broadcaster) Leave(conversationID, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(conversationID, connID)
}

func (b *Broadcaster) leaveLocked(conversationID, connID string) {
	room, ok := b.rooms[conversationID]
	if !ok {
		return
	}
	if _, exists := room[connID]; !exists {
		return
	}
	delete(room, connID)

	// Clean up empty rooms
	if len(room) == 0 {
		delete(b.rooms, conversationID)
	}

	b.logger.Debug("connection left",
		"conversation_id", conversationID,
		"conn_id", connID)
}

// LeaveAll removes a connection from every room it joined.
func (b *Broadcaster) LeaveAll(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conversationID := range b.rooms {
		b.leaveLocked(conversationID, connID)
	}
}

// Publish delivers a frame to every connection in the room except those
// owned by excludeUserID (empty excludes nobody). Returns the number of
// connections the frame was queued for.
func (b *Broadcaster) Publish(conversationID string, f wire.Frame, excludeUserID string) int {
	b.mu.RLock()
	room, ok := b.rooms[conversationID]
	if !ok || len(room) == 0 {
		b.mu.RUnlock()
		return 0
	}

	// Copy targets under read lock to avoid holding lock during sends
	targets := make([]*Connection, 0, len(room))
	for _, c := range room {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	return deliver(b.logger, targets, f)
}

// Members returns the number of connections joined to a conversation.
func (b *Broadcaster) Members(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[conversationID])
}

// deliver queues f on each target, dropping it for connections whose queue is full.
func deliver(logger *slog.Logger, targets []*Connection, f wire.Frame) int {
	sent := 0
	for _, c := range targets {
		if c.send(f) {
			sent++
			continue
		}
		logger.Debug("dropped frame for slow or closed connection",
			"conn_id", c.ID,
			"user_id", c.UserID,
			"type", f.Type)
	}
	return sent
}
