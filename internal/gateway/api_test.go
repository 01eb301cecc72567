// ABOUTME: Tests for the HTTP JSON API
// ABOUTME: Exercises conversations, history, send, delete, mark-read and unread over httptest

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/reelchat/internal/wire"
)

func TestAPI_RequiresAuth(t *testing.T) {
	tg := newTestGateway(t)

	resp := tg.do(t, "", http.MethodGet, "/api/conversations", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, tg.server.URL+"/api/unread", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	bad, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)
}

func TestAPI_OpenConversationIsSymmetric(t *testing.T) {
	tg := newTestGateway(t)

	var fromAlice, fromBob wire.Conversation
	resp := tg.do(t, "alice", http.MethodPost, "/api/conversations", wire.OpenConversationRequest{PeerID: "bob"}, &fromAlice)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = tg.do(t, "bob", http.MethodPost, "/api/conversations", wire.OpenConversationRequest{PeerID: "alice"}, &fromBob)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "alice_bob", fromAlice.ID)
	assert.Equal(t, fromAlice.ID, fromBob.ID)
	assert.Equal(t, []string{"alice", "bob"}, fromAlice.Participants)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, fromAlice.UnreadCount)
	assert.Nil(t, fromAlice.LastMessage)
}

func TestAPI_OpenConversationErrors(t *testing.T) {
	tg := newTestGateway(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "unknown peer", body: wire.OpenConversationRequest{PeerID: "zed"}, status: http.StatusNotFound},
		{name: "self", body: wire.OpenConversationRequest{PeerID: "alice"}, status: http.StatusBadRequest},
		{name: "empty", body: wire.OpenConversationRequest{}, status: http.StatusBadRequest},
		{name: "bad json", body: "not an object", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tg.do(t, "alice", http.MethodPost, "/api/conversations", tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)

			var errResp wire.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestAPI_SendUpdatesSummaryAndUnread(t *testing.T) {
	tg := newTestGateway(t)

	var sent wire.Message
	resp := tg.do(t, "alice", http.MethodPost, "/api/messages",
		wire.SendRequest{RecipientID: "bob", Content: "  hello *bob*  "}, &sent)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "alice_bob", sent.ConversationID)
	assert.Equal(t, "hello *bob*", sent.Content, "content is trimmed")
	assert.Contains(t, sent.ContentHTML, "<em>bob</em>")

	var conv wire.Conversation
	resp = tg.do(t, "bob", http.MethodGet, "/api/conversations/alice_bob", nil, &conv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, sent.ID, conv.LastMessage.MessageID)
	assert.Equal(t, 1, conv.UnreadCount["bob"])
	assert.Equal(t, 0, conv.UnreadCount["alice"])

	var unread wire.UnreadSummary
	resp = tg.do(t, "bob", http.MethodGet, "/api/unread", nil, &unread)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, unread.Total)
	assert.Equal(t, 1, unread.Conversations["alice_bob"])

	var read wire.MarkReadResponse
	resp = tg.do(t, "bob", http.MethodPost, "/api/conversations/alice_bob/read", nil, &read)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, read.Previous)

	resp = tg.do(t, "bob", http.MethodGet, "/api/unread", nil, &unread)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, unread.Total)
}

func TestAPI_SendValidation(t *testing.T) {
	tg := newTestGateway(t)
	tg.do(t, "alice", http.MethodPost, "/api/conversations", wire.OpenConversationRequest{PeerID: "bob"}, nil)

	resp := tg.do(t, "alice", http.MethodPost, "/api/messages",
		wire.SendRequest{ConversationID: "alice_bob", Content: "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tg.do(t, "carol", http.MethodPost, "/api/messages",
		wire.SendRequest{ConversationID: "alice_bob", Content: "intruding"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_HistoryPaging(t *testing.T) {
	tg := newTestGateway(t)

	for i := 0; i < 5; i++ {
		resp := tg.do(t, "alice", http.MethodPost, "/api/messages",
			wire.SendRequest{RecipientID: "bob", Content: fmt.Sprintf("msg %d", i)}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var page wire.HistoryPage
	resp := tg.do(t, "bob", http.MethodGet, "/api/conversations/alice_bob/messages?limit=3", nil, &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "msg 2", page.Messages[0].Content)
	assert.Equal(t, "msg 4", page.Messages[2].Content)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	var older wire.HistoryPage
	resp = tg.do(t, "bob", http.MethodGet, "/api/conversations/alice_bob/messages?limit=3&cursor="+page.NextCursor, nil, &older)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, older.Messages, 2)
	assert.Equal(t, "msg 0", older.Messages[0].Content)
	assert.False(t, older.HasMore)
	assert.Empty(t, older.NextCursor)

	resp = tg.do(t, "bob", http.MethodGet, "/api/conversations/alice_bob/messages?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tg.do(t, "carol", http.MethodGet, "/api/conversations/alice_bob/messages", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DeleteMessage(t *testing.T) {
	tg := newTestGateway(t)

	var first, second wire.Message
	tg.do(t, "alice", http.MethodPost, "/api/messages", wire.SendRequest{RecipientID: "bob", Content: "first"}, &first)
	tg.do(t, "alice", http.MethodPost, "/api/messages", wire.SendRequest{RecipientID: "bob", Content: "second"}, &second)

	resp := tg.do(t, "bob", http.MethodDelete, "/api/messages/"+second.ID, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "only the sender may delete")

	resp = tg.do(t, "carol", http.MethodDelete, "/api/messages/"+second.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = tg.do(t, "alice", http.MethodDelete, "/api/messages/"+second.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = tg.do(t, "alice", http.MethodDelete, "/api/messages/"+second.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "repeated delete is a no-op")

	var conv wire.Conversation
	tg.do(t, "alice", http.MethodGet, "/api/conversations/alice_bob", nil, &conv)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, first.ID, conv.LastMessage.MessageID, "summary falls back to the newest remaining message")

	var page wire.HistoryPage
	tg.do(t, "bob", http.MethodGet, "/api/conversations/alice_bob/messages", nil, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, first.ID, page.Messages[0].ID)
}

func TestAPI_ListConversationsOrdering(t *testing.T) {
	tg := newTestGateway(t)

	tg.do(t, "alice", http.MethodPost, "/api/messages", wire.SendRequest{RecipientID: "bob", Content: "to bob"}, nil)
	tg.do(t, "alice", http.MethodPost, "/api/messages", wire.SendRequest{RecipientID: "carol", Content: "to carol"}, nil)

	var list wire.ConversationList
	resp := tg.do(t, "alice", http.MethodGet, "/api/conversations", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, "alice_carol", list.Conversations[0].ID)
	assert.Equal(t, "alice_bob", list.Conversations[1].ID)

	var empty wire.ConversationList
	tg.do(t, "bob", http.MethodGet, "/api/conversations", nil, &empty)
	require.Len(t, empty.Conversations, 1)
}

func TestHealthEndpoints(t *testing.T) {
	tg := newTestGateway(t)

	resp, err := http.Get(tg.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ready, err := http.Get(tg.server.URL + "/health/ready")
	require.NoError(t, err)
	defer ready.Body.Close()
	body, _ := io.ReadAll(ready.Body)
	assert.Equal(t, http.StatusOK, ready.StatusCode)
	assert.Equal(t, "ready", string(body))

	req, err := http.NewRequest(http.MethodGet, tg.server.URL+"/health/ready", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tg.token(t, "root", "admin"))
	adminResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer adminResp.Body.Close()
	adminBody, _ := io.ReadAll(adminResp.Body)
	assert.Contains(t, string(adminBody), "users online")
}
