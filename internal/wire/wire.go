// ABOUTME: JSON shapes exchanged between the gateway and its clients
// ABOUTME: HTTP request/response bodies and WebSocket frames with their payloads

package wire

import (
	"encoding/json"
	"time"
)

// Message is a chat message as served by the API and the push channel.
type Message struct {
	ID             string    `json:"id"`
	Seq            int64     `json:"seq"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ContentHTML    string    `json:"content_html,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LastMessage is the summary snapshot embedded in a Conversation.
type LastMessage struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a two-party conversation record.
type Conversation struct {
	ID            string         `json:"id"`
	Participants  []string       `json:"participants"`
	LastMessage   *LastMessage   `json:"last_message,omitempty"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	UnreadCount   map[string]int `json:"unread_count"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ConversationList is the response of GET /api/conversations.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

// OpenConversationRequest is the body of POST /api/conversations.
type OpenConversationRequest struct {
	PeerID string `json:"peer_id"`
}

// HistoryPage is the response of GET /api/conversations/{id}/messages.
type HistoryPage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Content        string `json:"content"`
}

// MarkReadResponse is the response of POST /api/conversations/{id}/read.
type MarkReadResponse struct {
	ConversationID string `json:"conversation_id"`
	Previous       int    `json:"previous"`
}

// UnreadSummary is the response of GET /api/unread.
type UnreadSummary struct {
	Total         int            `json:"total"`
	Conversations map[string]int `json:"conversations"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EventType names a push channel frame.
type EventType string

// Client to server.
const (
	EventJoinConversation  EventType = "joinConversation"
	EventLeaveConversation EventType = "leaveConversation"
	EventTyping            EventType = "typing"
	EventStopTyping        EventType = "stopTyping"
)

// Server to client.
const (
	EventMessageReceived   EventType = "messageReceived"
	EventNewMessage        EventType = "newMessage"
	EventMessageDeleted    EventType = "messageDeleted"
	EventUserTyping        EventType = "userTyping"
	EventUserStoppedTyping EventType = "userStoppedTyping"
	EventUserOnline        EventType = "userOnline"
	EventUserOffline       EventType = "userOffline"
	EventPresenceSnapshot  EventType = "presenceSnapshot"
	EventConversationRead  EventType = "conversationRead"
	EventError             EventType = "error"
)

// Frame is one WebSocket text message.
type Frame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a frame of the given type.
func NewFrame(t EventType, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Data: data}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

// ConversationRef is the payload of join, leave, typing and stopTyping.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// MessageDeleted is the payload of messageDeleted.
type MessageDeleted struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// TypingEvent is the payload of userTyping and userStoppedTyping.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// PresenceEvent is the payload of userOnline and userOffline.
type PresenceEvent struct {
	UserID string `json:"user_id"`
}

// PresenceSnapshot lists the users online when a connection opens.
type PresenceSnapshot struct {
	UserIDs []string `json:"user_ids"`
}

// ConversationRead is the payload of conversationRead.
type ConversationRead struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// ErrorEvent reports a rejected client frame.
type ErrorEvent struct {
	Op      EventType `json:"op,omitempty"`
	Status  int       `json:"status"`
	Message string    `json:"message"`
}
