// ABOUTME: Conversation Directory resolving and listing two-party conversations
// ABOUTME: Looks up by canonical ID and creates lazily, tolerating concurrent creates

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/store"
)

// DirectoryStore defines what the directory needs from storage
type DirectoryStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error)
}

// Directory resolves conversation identity for authenticated callers.
type Directory struct {
	store  DirectoryStore
	logger *slog.Logger
	now    func() time.Time
}

// NewDirectory creates a Directory. Pass nil logger for default.
func NewDirectory(s DirectoryStore, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  s,
		logger: logger.With("component", "directory"),
		now:    time.Now,
	}
}

// caller returns the authenticated user ID or an Unauthorized error.
func caller(ctx context.Context) (string, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return "", chaterr.Unauthorized("no valid session")
	}
	return userID, nil
}

// GetOrCreate returns the conversation between selfID and otherID, creating
// it with empty history and zeroed unread counters if it does not exist yet.
func (d *Directory) GetOrCreate(ctx context.Context, selfID, otherID string) (*store.Conversation, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if selfID != userID {
		return nil, chaterr.Unauthorized("cannot open conversations for another user")
	}

	id, err := CanonicalID(selfID, otherID)
	if err != nil {
		return nil, err
	}

	if _, err := d.store.GetUser(ctx, otherID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, chaterr.NotFound("user", otherID)
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	conv, err := d.store.GetConversation(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}

	a, b, _ := ParseID(id)
	conv = &store.Conversation{
		ID:           id,
		ParticipantA: a,
		ParticipantB: b,
		UnreadCount:  map[string]int{a: 0, b: 0},
		CreatedAt:    d.now().UTC().Truncate(time.Microsecond),
	}

	err = d.store.CreateConversation(ctx, conv)
	if errors.Is(err, store.ErrDuplicateConversation) {
		// Lost the race against the other participant; use the winner's record
		d.logger.Debug("conversation created concurrently", "conversation_id", id)
		return d.store.GetConversation(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	d.logger.Info("conversation created", "conversation_id", id)
	return conv, nil
}

// Get returns a conversation the caller participates in.
// Non-participants get NotFound so conversation existence is not leaked.
func (d *Directory) Get(ctx context.Context, conversationID string) (*store.Conversation, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if _, _, err := ParseID(conversationID); err != nil {
		return nil, err
	}

	conv, err := d.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !conv.HasParticipant(userID)) {
		return nil, chaterr.NotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return conv, nil
}

// List returns the caller's conversations, most recent activity first with
// ties broken by ID. userID must be the caller.
func (d *Directory) List(ctx context.Context, userID string) ([]*store.Conversation, error) {
	self, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if userID != self {
		return nil, chaterr.Unauthorized("cannot list conversations of another user")
	}

	convs, err := d.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if convs == nil {
		convs = []*store.Conversation{}
	}
	return convs, nil
}
