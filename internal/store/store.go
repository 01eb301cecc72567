// ABOUTME: Store interface and data types for reelchat persistence
// ABOUTME: Defines User, Conversation, Message and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// User is a read-only reference to a platform user. Profiles are owned by the
// account service; the messaging store only keeps what it needs to render.
type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}

// LastMessage is the summary snapshot kept on a conversation record.
type LastMessage struct {
	MessageID string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Conversation binds exactly two participants under a deterministic ID.
// ParticipantA sorts before ParticipantB.
type Conversation struct {
	ID            string
	ParticipantA  string
	ParticipantB  string
	LastMessage   *LastMessage
	LastMessageAt *time.Time
	UnreadCount   map[string]int // participant ID -> unread messages
	CreatedAt     time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// Peer returns the other participant, or "" if userID is not a participant.
func (c *Conversation) Peer(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	default:
		return ""
	}
}

// ActivityAt is the timestamp conversation lists are ordered by.
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Message is a single chat message. Seq increases monotonically within a
// conversation and is what history pages are ordered and cursored by.
type Message struct {
	ID             string
	Seq            int64
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

// HistoryParams selects a page of visible messages.
type HistoryParams struct {
	ConversationID string
	BeforeSeq      int64 // 0 means start from the newest message
	Limit          int   // 1-200, defaults to 50
}

// HistoryResult is a page of messages in ascending order.
type HistoryResult struct {
	Messages []*Message
	HasMore  bool // true if older visible messages exist
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// normalizeLimit applies the default and cap shared by all implementations.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Users (seeded externally; read-only for messaging operations)
	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// Messages
	// AppendMessage assigns msg.Seq, persists the message, refreshes the
	// conversation summary and increments the recipient's unread counter as
	// one unit. msg.CreatedAt is bumped if needed so timestamps strictly
	// increase within the conversation.
	AppendMessage(ctx context.Context, msg *Message, recipientID string) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, params HistoryParams) (*HistoryResult, error)
	// DeleteMessage soft-deletes a message. It returns false when the
	// message was already deleted.
	DeleteMessage(ctx context.Context, id string, at time.Time) (bool, error)

	// Unread counters
	// ResetUnread zeroes userID's counter and returns the previous value.
	ResetUnread(ctx context.Context, conversationID, userID string) (int, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)

	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
