// ABOUTME: Push client tests against a real gateway over httptest
// ABOUTME: Covers delivery, room rejoin after reconnect, typing emission and token rejection

package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/client"
	"github.com/2389/reelchat/internal/config"
	"github.com/2389/reelchat/internal/gateway"
	"github.com/2389/reelchat/internal/store"
	"github.com/2389/reelchat/internal/wire"
)

const testSecret = "test-secret-key-for-jwt-signing!"

type fixture struct {
	gw     *gateway.Gateway
	server *httptest.Server
	tokens *auth.JWTVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Defaults()
	cfg.Auth.JWTSecret = testSecret

	s := store.NewMockStore()
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, s.UpsertUser(context.Background(), &store.User{ID: id, Username: id, CreatedAt: time.Now()}))
	}

	gw, err := gateway.NewWithStore(cfg, s, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		_ = gw.Shutdown(context.Background())
		srv.Close()
	})

	tokens, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	return &fixture{gw: gw, server: srv, tokens: tokens}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.tokens.Generate(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) api(t *testing.T, userID string) *client.APIClient {
	return client.NewAPIClient(f.server.URL, f.token(t, userID), nil)
}

// startPush runs a push client for userID and waits until it is connected.
func (f *fixture) startPush(t *testing.T, userID string) *client.PushClient {
	t.Helper()

	connected := make(chan struct{}, 4)
	p, err := client.NewPushClient(f.server.URL, f.token(t, userID), client.PushOptions{
		InitialRetry: 10 * time.Millisecond,
		MaxRetry:     50 * time.Millisecond,
		OnStatus: func(s client.Status) {
			if s == client.StatusConnected {
				connected <- struct{}{}
			}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("push client never connected")
	}
	return p
}

// waitFor reads events until one of type want arrives.
func waitFor(t *testing.T, p *client.PushClient, want wire.EventType) wire.Frame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-p.Events():
			require.True(t, ok, "events channel closed")
			if f.Type == want {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPushClient_ReceivesMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.api(t, "alice").OpenConversation(ctx, "bob")
	require.NoError(t, err)

	bob := f.startPush(t, "bob")
	require.NoError(t, bob.Join(ctx, conv.ID))
	waitForMember(t, f, conv.ID, 1)

	sent, err := f.api(t, "alice").Send(ctx, conv.ID, "", "hello bob")
	require.NoError(t, err)

	frame := waitFor(t, bob, wire.EventMessageReceived)
	var got wire.Message
	require.NoError(t, frame.Decode(&got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, "hello bob", got.Content)
}

func TestPushClient_TypingReachesPeer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.api(t, "alice").OpenConversation(ctx, "bob")
	require.NoError(t, err)

	alice := f.startPush(t, "alice")
	bob := f.startPush(t, "bob")
	require.NoError(t, alice.Join(ctx, conv.ID))
	require.NoError(t, bob.Join(ctx, conv.ID))
	waitForMember(t, f, conv.ID, 2)

	require.NoError(t, alice.EmitTyping(conv.ID, true))

	frame := waitFor(t, bob, wire.EventUserTyping)
	var ev wire.TypingEvent
	require.NoError(t, frame.Decode(&ev))
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, conv.ID, ev.ConversationID)
}

func TestPushClient_RejoinsAfterReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.api(t, "alice").OpenConversation(ctx, "bob")
	require.NoError(t, err)

	bob := f.startPush(t, "bob")
	require.NoError(t, bob.Join(ctx, conv.ID))
	waitForMember(t, f, conv.ID, 1)

	// Kick bob server-side; the client must come back on its own.
	require.Equal(t, 1, f.gw.Hub().Disconnect("bob"))
	waitForMember(t, f, conv.ID, 1)

	_, err = f.api(t, "alice").Send(ctx, conv.ID, "", "after reconnect")
	require.NoError(t, err)

	frame := waitFor(t, bob, wire.EventMessageReceived)
	var got wire.Message
	require.NoError(t, frame.Decode(&got))
	assert.Equal(t, "after reconnect", got.Content)
	assert.Equal(t, []string{conv.ID}, bob.Rooms())
}

func TestPushClient_EmitTypingWhileDisconnected(t *testing.T) {
	p, err := client.NewPushClient("http://127.0.0.1:1", "tok", client.PushOptions{})
	require.NoError(t, err)

	err = p.EmitTyping("alice_bob", true)
	assert.ErrorIs(t, err, chaterr.ErrTransport)
	assert.Equal(t, client.StatusConnecting, p.Status())
}

func TestPushClient_RejectedToken(t *testing.T) {
	f := newFixture(t)

	p, err := client.NewPushClient(f.server.URL, "not-a-token", client.PushOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = p.Run(ctx)
	assert.ErrorIs(t, err, chaterr.ErrUnauthorized)
	assert.Equal(t, client.StatusClosed, p.Status())

	_, ok := <-p.Events()
	assert.False(t, ok, "events should be closed after Run returns")
}

func TestNewPushClient_RejectsScheme(t *testing.T) {
	_, err := client.NewPushClient("ftp://example.com", "tok", client.PushOptions{})
	assert.ErrorIs(t, err, chaterr.ErrValidation)
}

// waitForMember polls until the room has n connections, since joins are
// processed asynchronously by the server read loop.
func waitForMember(t *testing.T, f *fixture, conversationID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.gw.Hub().Broadcaster().Members(conversationID) == n
	}, 5*time.Second, 10*time.Millisecond)
}
