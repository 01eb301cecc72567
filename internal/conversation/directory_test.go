// ABOUTME: Tests for the Conversation Directory
// ABOUTME: Covers lazy creation, auth checks, unknown users, listing order and create races

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/store"
)

func newTestDirectory(t *testing.T, users ...string) (*Directory, *store.MockStore) {
	t.Helper()
	s := store.NewMockStore()
	for _, u := range users {
		require.NoError(t, s.UpsertUser(context.Background(), &store.User{ID: u, Username: u, DisplayName: u}))
	}
	return NewDirectory(s, nil), s
}

func TestGetOrCreate_SameIDBothDirections(t *testing.T) {
	dir, _ := newTestDirectory(t, "alice", "bob")

	ab, err := dir.GetOrCreate(auth.WithUser(context.Background(), "alice"), "alice", "bob")
	require.NoError(t, err)
	ba, err := dir.GetOrCreate(auth.WithUser(context.Background(), "bob"), "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, "alice_bob", ab.ID)
	assert.Equal(t, 0, ba.UnreadCount["alice"])
	assert.Equal(t, 0, ba.UnreadCount["bob"])
	assert.Nil(t, ba.LastMessage)
}

func TestGetOrCreate_Errors(t *testing.T) {
	dir, _ := newTestDirectory(t, "alice", "bob")

	tests := []struct {
		name    string
		ctx     context.Context
		self    string
		other   string
		wantErr error
	}{
		{name: "no session", ctx: context.Background(), self: "alice", other: "bob", wantErr: chaterr.ErrUnauthorized},
		{name: "impersonation", ctx: auth.WithUser(context.Background(), "carol"), self: "alice", other: "bob", wantErr: chaterr.ErrUnauthorized},
		{name: "unknown peer", ctx: auth.WithUser(context.Background(), "alice"), self: "alice", other: "ghost", wantErr: chaterr.ErrNotFound},
		{name: "self conversation", ctx: auth.WithUser(context.Background(), "alice"), self: "alice", other: "alice", wantErr: chaterr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.GetOrCreate(tt.ctx, tt.self, tt.other)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	dir, s := newTestDirectory(t, "alice", "bob")

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			self, other := "alice", "bob"
			if i%2 == 1 {
				self, other = other, self
			}
			conv, err := dir.GetOrCreate(auth.WithUser(context.Background(), self), self, other)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "alice_bob", id)
	}
	convs, err := s.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

// racingStore reports "not found" on the first lookup to force the
// duplicate-create path.
type racingStore struct {
	*store.MockStore
	once sync.Once
}

func (r *racingStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	missing := false
	r.once.Do(func() { missing = true })
	if missing {
		return nil, store.ErrNotFound
	}
	return r.MockStore.GetConversation(ctx, id)
}

func TestGetOrCreate_LosesCreateRace(t *testing.T) {
	mock := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, mock.UpsertUser(ctx, &store.User{ID: "bob", Username: "bob"}))
	require.NoError(t, mock.CreateConversation(ctx, &store.Conversation{
		ID: "alice_bob", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: time.Now(),
	}))

	dir := NewDirectory(&racingStore{MockStore: mock}, nil)
	conv, err := dir.GetOrCreate(auth.WithUser(ctx, "alice"), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", conv.ID)
}

func TestGet_ParticipantOnly(t *testing.T) {
	dir, _ := newTestDirectory(t, "alice", "bob", "carol")
	aliceCtx := auth.WithUser(context.Background(), "alice")

	_, err := dir.GetOrCreate(aliceCtx, "alice", "bob")
	require.NoError(t, err)

	conv, err := dir.Get(aliceCtx, "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", conv.ID)

	_, err = dir.Get(auth.WithUser(context.Background(), "carol"), "alice_bob")
	assert.ErrorIs(t, err, chaterr.ErrNotFound)

	_, err = dir.Get(aliceCtx, "alice_carol")
	assert.ErrorIs(t, err, chaterr.ErrNotFound)

	_, err = dir.Get(aliceCtx, "not-an-id")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
}

func TestList_OrderedByActivity(t *testing.T) {
	dir, s := newTestDirectory(t, "alice", "bob", "carol", "dave")
	ctx := auth.WithUser(context.Background(), "alice")

	for _, peer := range []string{"bob", "carol", "dave"} {
		_, err := dir.GetOrCreate(ctx, "alice", peer)
		require.NoError(t, err)
	}

	require.NoError(t, s.AppendMessage(context.Background(), &store.Message{
		ID: "m1", ConversationID: "alice_carol", SenderID: "carol", Content: "hey", CreatedAt: time.Now(),
	}, "alice"))

	convs, err := dir.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "alice_carol", convs[0].ID)
	// Message-less conversations fall back to CreatedAt, ties by ID
	if convs[1].CreatedAt.Equal(convs[2].CreatedAt) {
		assert.Less(t, convs[1].ID, convs[2].ID)
	}

	_, err = dir.List(ctx, "bob")
	assert.ErrorIs(t, err, chaterr.ErrUnauthorized)

	daves, err := dir.List(auth.WithUser(context.Background(), "dave"), "dave")
	require.NoError(t, err)
	assert.Len(t, daves, 1)
}
