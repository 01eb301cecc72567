// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite or MongoDB

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation ID, ascending seq
	messageIndex  map[string]*Message   // keyed by message ID
	nextSeq       int64

	// AppendErr, when set, is returned by AppendMessage without persisting.
	AppendErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		messageIndex:  make(map[string]*Message),
	}
}

// copyConversation returns a deep copy so callers can't mutate store state.
func copyConversation(c *Conversation) *Conversation {
	out := *c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		out.LastMessageAt = &at
	}
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	return &out
}

func copyMessage(m *Message) *Message {
	out := *m
	if m.DeletedAt != nil {
		at := *m.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}

// UpsertUser stores or replaces a user.
func (m *MockStore) UpsertUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *user
	if existing, ok := m.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ID]; exists {
		return ErrDuplicateConversation
	}

	c := copyConversation(conv)
	c.LastMessage = nil
	c.LastMessageAt = nil
	c.UnreadCount = map[string]int{c.ParticipantA: 0, c.ParticipantB: 0}
	m.conversations[c.ID] = c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

// ListConversations returns the user's conversations, most recent activity first.
func (m *MockStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if c.HasParticipant(userID) {
			result = append(result, copyConversation(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		ai, aj := result[i].ActivityAt(), result[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// AppendMessage stores a message and updates summary and unread state.
func (m *MockStore) AppendMessage(ctx context.Context, msg *Message, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return m.AppendErr
	}

	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}

	msgs := m.messages[msg.ConversationID]
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Microsecond)
	if n := len(msgs); n > 0 {
		newest := msgs[n-1].CreatedAt
		if !msg.CreatedAt.After(newest) {
			msg.CreatedAt = newest.Add(time.Microsecond)
		}
	}

	m.nextSeq++
	msg.Seq = m.nextSeq

	stored := copyMessage(msg)
	m.messages[msg.ConversationID] = append(msgs, stored)
	m.messageIndex[stored.ID] = stored

	at := stored.CreatedAt
	c.LastMessageAt = &at
	c.LastMessage = &LastMessage{
		MessageID: stored.ID,
		SenderID:  stored.SenderID,
		Content:   stored.Content,
		CreatedAt: at,
	}
	c.UnreadCount[recipientID]++
	return nil
}

// GetMessage retrieves a message by ID, including soft-deleted ones.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messageIndex[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

// ListMessages returns a page of visible messages in ascending order.
func (m *MockStore) ListMessages(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	if p.ConversationID == "" {
		return nil, errors.New("conversation_id required")
	}
	limit := normalizeLimit(p.Limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var visible []*Message
	for _, msg := range m.messages[p.ConversationID] {
		if msg.DeletedAt != nil {
			continue
		}
		if p.BeforeSeq > 0 && msg.Seq >= p.BeforeSeq {
			continue
		}
		visible = append(visible, msg)
	}

	hasMore := len(visible) > limit
	if hasMore {
		visible = visible[len(visible)-limit:]
	}

	result := make([]*Message, len(visible))
	for i, msg := range visible {
		result[i] = copyMessage(msg)
	}
	return &HistoryResult{Messages: result, HasMore: hasMore}, nil
}

// DeleteMessage soft-deletes a message.
func (m *MockStore) DeleteMessage(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messageIndex[id]
	if !ok {
		return false, ErrNotFound
	}
	if msg.DeletedAt != nil {
		return false, nil
	}

	deletedAt := at.UTC()
	msg.DeletedAt = &deletedAt

	c := m.conversations[msg.ConversationID]
	if c != nil && c.LastMessage != nil && c.LastMessage.MessageID == id {
		c.LastMessage = nil
		c.LastMessageAt = nil
		msgs := m.messages[msg.ConversationID]
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].DeletedAt == nil {
				t := msgs[i].CreatedAt
				c.LastMessageAt = &t
				c.LastMessage = &LastMessage{
					MessageID: msgs[i].ID,
					SenderID:  msgs[i].SenderID,
					Content:   msgs[i].Content,
					CreatedAt: t,
				}
				break
			}
		}
	}
	return true, nil
}

// ResetUnread zeroes a participant's unread counter.
func (m *MockStore) ResetUnread(ctx context.Context, conversationID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return 0, ErrNotFound
	}
	previous := c.UnreadCount[userID]
	c.UnreadCount[userID] = 0
	return previous, nil
}

// UnreadCounts returns the non-zero unread counters for a user.
func (m *MockStore) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for id, c := range m.conversations {
		if n := c.UnreadCount[userID]; n > 0 && c.HasParticipant(userID) {
			counts[id] = n
		}
	}
	return counts, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time check that MockStore implements Store.
var _ Store = (*MockStore)(nil)
