// ABOUTME: Hub owns connection lifecycle, presence, conversation rooms and typing relay
// ABOUTME: It also implements messaging.Publisher so persisted changes reach live clients

package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/conversation"
	"github.com/2389/reelchat/internal/messaging"
	"github.com/2389/reelchat/internal/store"
	"github.com/2389/reelchat/internal/wire"
)

// Defaults for HubOptions zero values.
const (
	DefaultSendBuffer  = 64
	DefaultTypingRate  = rate.Limit(2)
	DefaultTypingBurst = 4
)

// HubOptions tunes per-connection buffering and typing rate limits.
type HubOptions struct {
	SendBuffer  int
	TypingRate  rate.Limit // typing frames per second per connection
	TypingBurst int
}

// Hub is the server side of the push channel.
type Hub struct {
	presence    *Presence
	broadcaster *Broadcaster
	opts        HubOptions
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool

	// presenceMu orders each presence transition with its announcement so
	// observers never see online and offline out of order.
	presenceMu sync.Mutex
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(opts HubOptions, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.TypingRate <= 0 {
		opts.TypingRate = DefaultTypingRate
	}
	if opts.TypingBurst <= 0 {
		opts.TypingBurst = DefaultTypingBurst
	}
	return &Hub{
		presence:    NewPresence(),
		broadcaster: NewBroadcaster(logger),
		opts:        opts,
		logger:      logger.With("component", "hub"),
	}
}

// Presence exposes the read side of the presence set.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Broadcaster exposes the room broadcaster.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// Register opens a connection for an authenticated user. The first
// connection of a user announces userOnline to everyone else; every new
// connection receives a presence snapshot.
func (h *Hub) Register(userID string) (*Connection, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, chaterr.ErrTransport
	}
	if userID == "" {
		return nil, chaterr.Unauthorized("missing user")
	}

	c := newConnection(uuid.NewString(), userID, h.opts.SendBuffer,
		rate.NewLimiter(h.opts.TypingRate, h.opts.TypingBurst))

	h.presenceMu.Lock()
	first := h.presence.connect(c)
	if first {
		deliver(h.logger, h.presence.all(userID), h.frame(wire.EventUserOnline, wire.PresenceEvent{UserID: userID}))
	}
	c.send(h.frame(wire.EventPresenceSnapshot, wire.PresenceSnapshot{UserIDs: h.presence.Online()}))
	h.presenceMu.Unlock()

	h.logger.Info("connection registered",
		"conn_id", c.ID,
		"user_id", userID,
		"first", first)
	return c, nil
}

// Unregister closes a connection. Typing flags it held are cleared with
// userStoppedTyping, and the user's last connection announces userOffline.
// Unregistering twice is a no-op.
func (h *Hub) Unregister(c *Connection) {
	for _, conversationID := range c.takeTyping() {
		h.broadcaster.Publish(conversationID,
			h.frame(wire.EventUserStoppedTyping, wire.TypingEvent{ConversationID: conversationID, UserID: c.UserID}),
			c.UserID)
	}
	h.broadcaster.LeaveAll(c.ID)

	h.presenceMu.Lock()
	last := h.presence.disconnect(c)
	c.close()
	if last {
		deliver(h.logger, h.presence.all(c.UserID), h.frame(wire.EventUserOffline, wire.PresenceEvent{UserID: c.UserID}))
	}
	h.presenceMu.Unlock()

	h.logger.Info("connection unregistered",
		"conn_id", c.ID,
		"user_id", c.UserID,
		"last", last)
}

// Join subscribes the connection to a conversation room. Only participants
// may join; the participants are derived from the conversation ID.
func (h *Hub) Join(c *Connection, conversationID string) error {
	if err := authorizeRoom(c, conversationID); err != nil {
		return err
	}
	h.broadcaster.Join(conversationID, c)
	return nil
}

// Leave unsubscribes the connection from a conversation room.
func (h *Hub) Leave(c *Connection, conversationID string) {
	h.broadcaster.Leave(conversationID, c.ID)
}

// Typing relays a typing state change to the room, excluding the typist's
// own connections. Repeated starts beyond the rate limit are dropped; stops
// are never limited.
func (h *Hub) Typing(c *Connection, conversationID string, typing bool) error {
	if err := authorizeRoom(c, conversationID); err != nil {
		return err
	}
	if typing && !c.limiter.Allow() {
		h.logger.Debug("typing rate limited", "conn_id", c.ID, "conversation_id", conversationID)
		return nil
	}
	if !c.setTyping(conversationID, typing) && !typing {
		// Already stopped
		return nil
	}

	event := wire.EventUserTyping
	if !typing {
		event = wire.EventUserStoppedTyping
	}
	h.broadcaster.Publish(conversationID,
		h.frame(event, wire.TypingEvent{ConversationID: conversationID, UserID: c.UserID}),
		c.UserID)
	return nil
}

// Handle dispatches one client frame.
func (h *Hub) Handle(c *Connection, f wire.Frame) error {
	var ref wire.ConversationRef
	if err := f.Decode(&ref); err != nil {
		return chaterr.Validation("malformed %s payload", f.Type)
	}

	switch f.Type {
	case wire.EventJoinConversation:
		return h.Join(c, ref.ConversationID)
	case wire.EventLeaveConversation:
		h.Leave(c, ref.ConversationID)
		return nil
	case wire.EventTyping:
		return h.Typing(c, ref.ConversationID, true)
	case wire.EventStopTyping:
		return h.Typing(c, ref.ConversationID, false)
	default:
		return chaterr.Validation("unknown event type %q", f.Type)
	}
}

// PublishMessage delivers a persisted message to the conversation room and
// notifies every connection of both participants.
func (h *Hub) PublishMessage(msg *store.Message, recipientID string) {
	payload := messaging.ToWireMessage(msg)
	h.broadcaster.Publish(msg.ConversationID, h.frame(wire.EventMessageReceived, payload), "")
	deliver(h.logger, h.presence.connections(msg.SenderID, recipientID), h.frame(wire.EventNewMessage, payload))
}

// PublishDeleted notifies both participants that a message was removed.
func (h *Hub) PublishDeleted(conversationID, messageID string) {
	a, b, err := conversation.ParseID(conversationID)
	if err != nil {
		h.logger.Warn("publish deleted for malformed conversation", "conversation_id", conversationID)
		return
	}
	deliver(h.logger, h.presence.connections(a, b),
		h.frame(wire.EventMessageDeleted, wire.MessageDeleted{MessageID: messageID, ConversationID: conversationID}))
}

// PublishRead tells every connection of the reader that a conversation was read.
func (h *Hub) PublishRead(conversationID, userID string) {
	deliver(h.logger, h.presence.connections(userID),
		h.frame(wire.EventConversationRead, wire.ConversationRead{ConversationID: conversationID, UserID: userID}))
}

// Disconnect closes every live connection of userID and returns how many
// were closed. Clients see the socket close and may reconnect.
func (h *Hub) Disconnect(userID string) int {
	conns := h.presence.connections(userID)
	for _, c := range conns {
		h.Unregister(c)
	}
	if len(conns) > 0 {
		h.logger.Info("user disconnected", "user_id", userID, "connections", len(conns))
	}
	return len(conns)
}

// Close stops accepting registrations and closes every live connection.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range h.presence.all("") {
		h.Unregister(c)
	}
}

func (h *Hub) frame(t wire.EventType, payload any) wire.Frame {
	f, err := wire.NewFrame(t, payload)
	if err != nil {
		h.logger.Error("failed to encode frame", "type", t, "error", err)
		return wire.Frame{Type: t}
	}
	return f
}

// authorizeRoom checks the connection's user is a participant of the conversation.
func authorizeRoom(c *Connection, conversationID string) error {
	if _, _, err := conversation.ParseID(conversationID); err != nil {
		return err
	}
	if !conversation.IsParticipant(conversationID, c.UserID) {
		return chaterr.NotFound("conversation", conversationID)
	}
	return nil
}

var _ messaging.Publisher = (*Hub)(nil)
