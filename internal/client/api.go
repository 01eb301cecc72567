// ABOUTME: HTTP client for the reelchat gateway JSON API
// ABOUTME: One method per persistence operation; non-2xx statuses map back onto chaterr

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/wire"
)

// DefaultTimeout bounds every API request that has no earlier deadline.
const DefaultTimeout = 15 * time.Second

// APIClient calls the gateway HTTP API as one user.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a client for the gateway at baseURL (for example
// "http://localhost:8080") authenticating with token. A nil httpClient uses
// one with DefaultTimeout.
func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// BaseURL returns the gateway URL this client talks to.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Token returns the bearer token.
func (c *APIClient) Token() string {
	return c.token
}

// ListConversations returns the caller's conversations, most recent first.
func (c *APIClient) ListConversations(ctx context.Context) ([]wire.Conversation, error) {
	var resp wire.ConversationList
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// OpenConversation gets or creates the conversation with peerID.
func (c *APIClient) OpenConversation(ctx context.Context, peerID string) (*wire.Conversation, error) {
	var conv wire.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", wire.OpenConversationRequest{PeerID: peerID}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation fetches one conversation.
func (c *APIClient) GetConversation(ctx context.Context, conversationID string) (*wire.Conversation, error) {
	var conv wire.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationID), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FetchHistory returns a page of messages older than cursor (newest page
// when cursor is empty), oldest first. limit <= 0 uses the server default.
func (c *APIClient) FetchHistory(ctx context.Context, conversationID, cursor string, limit int) (*wire.HistoryPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page wire.HistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Send posts a message. Either conversationID or recipientID may be empty, not both.
func (c *APIClient) Send(ctx context.Context, conversationID, recipientID, content string) (*wire.Message, error) {
	var msg wire.Message
	req := wire.SendRequest{ConversationID: conversationID, RecipientID: recipientID, Content: content}
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes one of the caller's messages.
func (c *APIClient) Delete(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, nil)
}

// MarkRead zeroes the caller's unread counter and returns its previous value.
func (c *APIClient) MarkRead(ctx context.Context, conversationID string) (int, error) {
	var resp wire.MarkReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationID)+"/read", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Previous, nil
}

// Unread returns the caller's unread counts.
func (c *APIClient) Unread(ctx context.Context) (*wire.UnreadSummary, error) {
	var summary wire.UnreadSummary
	if err := c.do(ctx, http.MethodGet, "/api/unread", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// do performs one request. body and out may be nil.
func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp wire.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&errResp)
		return chaterr.FromHTTPStatus(resp.StatusCode, errResp.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: parsing response: %v", chaterr.ErrTransport, err)
	}
	return nil
}

// transportError classifies a failed round trip.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", chaterr.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", chaterr.ErrTransport, err)
}
