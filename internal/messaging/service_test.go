// ABOUTME: Tests for the message service
// ABOUTME: Covers send validation, history paging, delete rules, mark-read and publishing

package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/conversation"
	"github.com/2389/reelchat/internal/store"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*store.Message
	deleted  []string
	reads    []string
}

func (p *recordingPublisher) PublishMessage(msg *store.Message, recipientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

func (p *recordingPublisher) PublishDeleted(conversationID, messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
}

func (p *recordingPublisher) PublishRead(conversationID, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, conversationID+"/"+userID)
}

type fixture struct {
	svc   *Service
	store *store.MockStore
	pub   *recordingPublisher
	alice context.Context
	bob   context.Context
	carol context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMockStore()
	for _, u := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.UpsertUser(context.Background(), &store.User{ID: u, Username: u}))
	}
	pub := &recordingPublisher{}
	dir := conversation.NewDirectory(s, nil)
	return &fixture{
		svc:   New(s, dir, pub, Options{}, nil),
		store: s,
		pub:   pub,
		alice: auth.WithUser(context.Background(), "alice"),
		bob:   auth.WithUser(context.Background(), "bob"),
		carol: auth.WithUser(context.Background(), "carol"),
	}
}

func TestSend_ByRecipientCreatesConversation(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "  hi  "})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice_bob", msg.ConversationID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "hi", msg.Content)

	page, err := f.svc.FetchHistory(f.bob, "alice_bob", Page{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
	assert.Equal(t, "hi", page.Messages[0].Content)

	require.Len(t, f.pub.messages, 1)
	assert.Equal(t, msg.ID, f.pub.messages[0].ID)

	conv, err := f.store.GetConversation(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount["bob"])
	assert.Equal(t, "hi", conv.LastMessage.Content)
}

func TestSend_StrictlyAfterPrior(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "one"})
	require.NoError(t, err)
	second, err := f.svc.Send(f.bob, SendRequest{ConversationID: "alice_bob", Content: "two"})
	require.NoError(t, err)

	assert.Greater(t, second.Seq, first.Seq)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "seed"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		ctx     context.Context
		req     SendRequest
		wantErr error
	}{
		{name: "empty", ctx: f.alice, req: SendRequest{RecipientID: "bob", Content: ""}, wantErr: chaterr.ErrValidation},
		{name: "whitespace", ctx: f.alice, req: SendRequest{RecipientID: "bob", Content: " \n\t "}, wantErr: chaterr.ErrValidation},
		{name: "too long", ctx: f.alice, req: SendRequest{RecipientID: "bob", Content: strings.Repeat("x", DefaultMaxContentLength+1)}, wantErr: chaterr.ErrValidation},
		{name: "no target", ctx: f.alice, req: SendRequest{Content: "hi"}, wantErr: chaterr.ErrValidation},
		{name: "recipient mismatch", ctx: f.alice, req: SendRequest{ConversationID: "alice_bob", RecipientID: "carol", Content: "hi"}, wantErr: chaterr.ErrValidation},
		{name: "unknown recipient", ctx: f.alice, req: SendRequest{RecipientID: "ghost", Content: "hi"}, wantErr: chaterr.ErrNotFound},
		{name: "not a participant", ctx: f.carol, req: SendRequest{ConversationID: "alice_bob", Content: "hi"}, wantErr: chaterr.ErrNotFound},
		{name: "no session", ctx: context.Background(), req: SendRequest{RecipientID: "bob", Content: "hi"}, wantErr: chaterr.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(tt.ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing beyond the seed message was persisted or published
	page, err := f.svc.FetchHistory(f.alice, "alice_bob", Page{})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.Len(t, f.pub.messages, 1)
}

func TestSend_StoreFailureNotPublished(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "seed"})
	require.NoError(t, err)

	f.store.AppendErr = errors.New("disk full")
	_, err = f.svc.Send(f.alice, SendRequest{ConversationID: "alice_bob", Content: "lost"})
	assert.Error(t, err)
	assert.Len(t, f.pub.messages, 1)
}

func TestFetchHistory_Paging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	var contents []string
	cursor := ""
	for {
		page, err := f.svc.FetchHistory(f.alice, "alice_bob", Page{Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		var batch []string
		for _, m := range page.Messages {
			batch = append(batch, m.Content)
		}
		contents = append(batch, contents...)
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, contents)

	// Idempotent
	a, err := f.svc.FetchHistory(f.alice, "alice_bob", Page{Limit: 2})
	require.NoError(t, err)
	b, err := f.svc.FetchHistory(f.alice, "alice_bob", Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = f.svc.FetchHistory(f.alice, "alice_bob", Page{Cursor: "%%%"})
	assert.ErrorIs(t, err, chaterr.ErrValidation)

	_, err = f.svc.FetchHistory(f.carol, "alice_bob", Page{})
	assert.ErrorIs(t, err, chaterr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	keep, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "keep"})
	require.NoError(t, err)
	gone, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "gone"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(f.bob, gone.ID), chaterr.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Delete(f.carol, gone.ID), chaterr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(f.alice, "missing"), chaterr.ErrNotFound)

	require.NoError(t, f.svc.Delete(f.alice, gone.ID))
	require.NoError(t, f.svc.Delete(f.alice, gone.ID), "second delete is a no-op")
	assert.Equal(t, []string{gone.ID}, f.pub.deleted)

	for _, ctx := range []context.Context{f.alice, f.bob} {
		page, err := f.svc.FetchHistory(ctx, "alice_bob", Page{})
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, keep.ID, page.Messages[0].ID)
	}

	conv, err := f.store.GetConversation(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, keep.ID, conv.LastMessage.MessageID)
}

func TestMarkReadAndUnread(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "one"})
	require.NoError(t, err)
	_, err = f.svc.Send(f.alice, SendRequest{RecipientID: "bob", Content: "two"})
	require.NoError(t, err)
	_, err = f.svc.Send(f.carol, SendRequest{RecipientID: "bob", Content: "hey"})
	require.NoError(t, err)

	summary, err := f.svc.Unread(f.bob)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Conversations["alice_bob"])

	previous, err := f.svc.MarkRead(f.bob, "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, 2, previous)
	assert.Equal(t, []string{"alice_bob/bob"}, f.pub.reads)

	summary, err = f.svc.Unread(f.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total, "total drops by exactly the conversation's prior contribution")

	previous, err = f.svc.MarkRead(f.bob, "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, 0, previous)

	summary, err = f.svc.Unread(f.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)

	_, err = f.svc.MarkRead(f.carol, "alice_bob")
	assert.ErrorIs(t, err, chaterr.ErrNotFound)

	_, err = f.svc.Unread(context.Background())
	assert.ErrorIs(t, err, chaterr.ErrUnauthorized)
}

func TestCursorRoundTrip(t *testing.T) {
	seq, err := decodeCursor(encodeCursor(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	for _, bad := range []string{"", "!!!", encodeCursorRaw("nope"), encodeCursorRaw("seq:-1")} {
		_, err := decodeCursor(bad)
		assert.Error(t, err, bad)
	}
}
