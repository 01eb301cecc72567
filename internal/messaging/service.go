// ABOUTME: Message service persisting, paging, deleting and acknowledging chat messages
// ABOUTME: Every write is persisted before it is published to live connections

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/conversation"
	"github.com/2389/reelchat/internal/store"
)

const (
	// DefaultMaxContentLength is the longest message accepted, in runes.
	DefaultMaxContentLength = 4000
	// DefaultPageSize is the history page size when the caller gives none.
	DefaultPageSize = 50
	// MaxPageSize caps a single history page.
	MaxPageSize = 200
)

// MessageStore defines what the service needs from storage
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *store.Message, recipientID string) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListMessages(ctx context.Context, params store.HistoryParams) (*store.HistoryResult, error)
	DeleteMessage(ctx context.Context, id string, at time.Time) (bool, error)
	ResetUnread(ctx context.Context, conversationID, userID string) (int, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}

// Publisher fans persisted changes out to live connections.
type Publisher interface {
	PublishMessage(msg *store.Message, recipientID string)
	PublishDeleted(conversationID, messageID string)
	PublishRead(conversationID, userID string)
}

// Options tunes validation and paging. Zero values select the defaults.
type Options struct {
	MaxContentLength int
	PageSize         int
}

// Service implements send, history, delete and read acknowledgement.
type Service struct {
	store     MessageStore
	directory *conversation.Directory
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service. A nil publisher disables live fan-out.
func New(s MessageStore, dir *conversation.Directory, pub Publisher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = noopPublisher{}
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if opts.PageSize <= 0 || opts.PageSize > MaxPageSize {
		opts.PageSize = DefaultPageSize
	}
	return &Service{
		store:     s,
		directory: dir,
		publisher: pub,
		opts:      opts,
		logger:    logger.With("component", "messaging"),
		now:       time.Now,
	}
}

// SendRequest identifies the target conversation by ID, by recipient, or both.
type SendRequest struct {
	ConversationID string
	RecipientID    string
	Content        string
}

// Send validates, persists and publishes a message from the caller.
func (s *Service) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return nil, chaterr.Unauthorized("no valid session")
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, chaterr.Validation("message content is empty")
	}
	if n := utf8.RuneCountInString(content); n > s.opts.MaxContentLength {
		return nil, chaterr.Validation("message content is %d characters, limit is %d", n, s.opts.MaxContentLength)
	}

	conv, recipientID, err := s.resolveTarget(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       userID,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.store.AppendMessage(ctx, msg, recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, chaterr.NotFound("conversation", conv.ID)
		}
		return nil, fmt.Errorf("saving message: %w", err)
	}

	s.logger.Debug("message sent",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"seq", msg.Seq)

	s.publisher.PublishMessage(msg, recipientID)
	return msg, nil
}

// resolveTarget returns the conversation and recipient for a send.
func (s *Service) resolveTarget(ctx context.Context, userID string, req SendRequest) (*store.Conversation, string, error) {
	switch {
	case req.ConversationID == "" && req.RecipientID == "":
		return nil, "", chaterr.Validation("conversation_id or recipient_id is required")

	case req.ConversationID == "":
		conv, err := s.directory.GetOrCreate(ctx, userID, req.RecipientID)
		if err != nil {
			return nil, "", err
		}
		return conv, req.RecipientID, nil

	default:
		conv, err := s.directory.Get(ctx, req.ConversationID)
		if err != nil {
			return nil, "", err
		}
		peer := conv.Peer(userID)
		if req.RecipientID != "" && req.RecipientID != peer {
			return nil, "", chaterr.Validation("recipient %q is not part of conversation %q", req.RecipientID, conv.ID)
		}
		return conv, peer, nil
	}
}

// Page selects a slice of history. Cursor is opaque and comes from a
// previous HistoryPage.NextCursor; empty means start from the newest message.
type Page struct {
	Cursor string
	Limit  int
}

// HistoryPage holds messages in ascending order.
type HistoryPage struct {
	Messages   []*store.Message
	NextCursor string // fetches the page of older messages, empty when HasMore is false
	HasMore    bool
}

// FetchHistory returns a page of visible messages. It has no side effects.
func (s *Service) FetchHistory(ctx context.Context, conversationID string, page Page) (*HistoryPage, error) {
	if _, err := s.directory.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	var beforeSeq int64
	if page.Cursor != "" {
		seq, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, chaterr.Validation("invalid cursor: %v", err)
		}
		beforeSeq = seq
	}

	limit := page.Limit
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	result, err := s.store.ListMessages(ctx, store.HistoryParams{
		ConversationID: conversationID,
		BeforeSeq:      beforeSeq,
		Limit:          limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	hp := &HistoryPage{Messages: result.Messages, HasMore: result.HasMore}
	if hp.Messages == nil {
		hp.Messages = []*store.Message{}
	}
	if result.HasMore && len(result.Messages) > 0 {
		hp.NextCursor = encodeCursor(result.Messages[0].Seq)
	}
	return hp, nil
}

// Delete removes a message from every participant's visible history.
// Only the sender may delete; deleting an already deleted message is a no-op.
func (s *Service) Delete(ctx context.Context, messageID string) error {
	userID := auth.UserID(ctx)
	if userID == "" {
		return chaterr.Unauthorized("no valid session")
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return chaterr.NotFound("message", messageID)
	}
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	if !conversation.IsParticipant(msg.ConversationID, userID) {
		return chaterr.NotFound("message", messageID)
	}
	if msg.SenderID != userID {
		return chaterr.Unauthorized("only the sender can delete a message")
	}

	deleted, err := s.store.DeleteMessage(ctx, messageID, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return chaterr.NotFound("message", messageID)
	}
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	if !deleted {
		s.logger.Debug("message already deleted", "message_id", messageID)
		return nil
	}

	s.logger.Debug("message deleted",
		"message_id", messageID,
		"conversation_id", msg.ConversationID)
	s.publisher.PublishDeleted(msg.ConversationID, messageID)
	return nil
}

// MarkRead zeroes the caller's unread counter for a conversation and returns
// the count it held before.
func (s *Service) MarkRead(ctx context.Context, conversationID string) (int, error) {
	if _, err := s.directory.Get(ctx, conversationID); err != nil {
		return 0, err
	}
	userID := auth.UserID(ctx)

	previous, err := s.store.ResetUnread(ctx, conversationID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, chaterr.NotFound("conversation", conversationID)
	}
	if err != nil {
		return 0, fmt.Errorf("resetting unread: %w", err)
	}

	s.publisher.PublishRead(conversationID, userID)
	return previous, nil
}

// UnreadSummary is the caller's aggregate and per-conversation unread state.
type UnreadSummary struct {
	Total         int
	Conversations map[string]int
}

// Unread returns the caller's unread counters.
func (s *Service) Unread(ctx context.Context) (*UnreadSummary, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return nil, chaterr.Unauthorized("no valid session")
	}

	counts, err := s.store.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting unread counts: %w", err)
	}

	summary := &UnreadSummary{Conversations: counts}
	for _, n := range counts {
		if n > 0 {
			summary.Total += n
		}
	}
	return summary, nil
}

type noopPublisher struct{}

func (noopPublisher) PublishMessage(*store.Message, string) {}
func (noopPublisher) PublishDeleted(string, string)         {}
func (noopPublisher) PublishRead(string, string)            {}
