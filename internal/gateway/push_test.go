// ABOUTME: End-to-end push channel tests through the full gateway handler
// ABOUTME: Messages sent over HTTP must arrive over WebSocket exactly once per connection

package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/reelchat/internal/wire"
)

func (tg *testGateway) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/ws?token=" + tg.token(t, userID)
	ws, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// next reads frames until one of type want arrives.
func next(t *testing.T, ws *websocket.Conn, want wire.EventType) wire.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var f wire.Frame
		require.NoError(t, wsjson.Read(ctx, ws, &f))
		if f.Type == want {
			return f
		}
	}
}

func TestPush_RejectsMissingToken(t *testing.T) {
	tg := newTestGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(tg.server.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPush_MessageDelivery(t *testing.T) {
	tg := newTestGateway(t)

	bob := tg.dial(t, "bob")
	next(t, bob, wire.EventPresenceSnapshot)

	join, err := wire.NewFrame(wire.EventJoinConversation, wire.ConversationRef{ConversationID: "alice_bob"})
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(context.Background(), bob, join))
	require.Eventually(t, func() bool {
		return tg.gw.Hub().Broadcaster().Members("alice_bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	var sent wire.Message
	resp := tg.do(t, "alice", http.MethodPost, "/api/messages", wire.SendRequest{RecipientID: "bob", Content: "over the wire"}, &sent)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	received := next(t, bob, wire.EventMessageReceived)
	var got wire.Message
	require.NoError(t, received.Decode(&got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, "over the wire", got.Content)

	notified := next(t, bob, wire.EventNewMessage)
	var note wire.Message
	require.NoError(t, notified.Decode(&note))
	assert.Equal(t, sent.ID, note.ID)
}

func TestPush_PresenceAcrossTabs(t *testing.T) {
	tg := newTestGateway(t)

	bob := tg.dial(t, "bob")
	next(t, bob, wire.EventPresenceSnapshot)

	tab1 := tg.dial(t, "alice")
	next(t, bob, wire.EventUserOnline)
	tab2 := tg.dial(t, "alice")
	next(t, tab2, wire.EventPresenceSnapshot)

	require.NoError(t, tab1.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		return tg.gw.Hub().Presence().ConnectionCount("alice") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, tg.gw.Hub().Presence().IsOnline("alice"))

	require.NoError(t, tab2.Close(websocket.StatusNormalClosure, ""))
	offline := next(t, bob, wire.EventUserOffline)
	var ev wire.PresenceEvent
	require.NoError(t, offline.Decode(&ev))
	assert.Equal(t, "alice", ev.UserID)
}

func TestPush_MarkReadReachesOtherDevices(t *testing.T) {
	tg := newTestGateway(t)
	tg.do(t, "alice", http.MethodPost, "/api/messages", wire.SendRequest{RecipientID: "bob", Content: "ping"}, nil)

	phone := tg.dial(t, "bob")
	next(t, phone, wire.EventPresenceSnapshot)

	resp := tg.do(t, "bob", http.MethodPost, "/api/conversations/alice_bob/read", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f := next(t, phone, wire.EventConversationRead)
	var ev wire.ConversationRead
	require.NoError(t, f.Decode(&ev))
	assert.Equal(t, wire.ConversationRead{ConversationID: "alice_bob", UserID: "bob"}, ev)
}
