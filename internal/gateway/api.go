// ABOUTME: HTTP JSON API handlers for conversations, messages, unread counts and health
// ABOUTME: Every /api route requires a bearer JWT; errors map through the chaterr taxonomy

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/messaging"
	"github.com/2389/reelchat/internal/realtime"
	"github.com/2389/reelchat/internal/store"
	"github.com/2389/reelchat/internal/wire"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 * 1024

// registerRoutes wires every HTTP route onto mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.Handle("GET /health/ready", auth.OptionalAuthMiddleware(g.verifier)(http.HandlerFunc(g.handleReady)))

	authMiddleware := auth.HTTPAuthMiddleware(g.verifier, g.logger)
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMiddleware(h))
	}

	api("GET /api/conversations", g.handleListConversations)
	api("POST /api/conversations", g.handleOpenConversation)
	api("GET /api/conversations/{id}", g.handleGetConversation)
	api("GET /api/conversations/{id}/messages", g.handleHistory)
	api("POST /api/conversations/{id}/read", g.handleMarkRead)
	api("POST /api/messages", g.handleSendMessage)
	api("DELETE /api/messages/{id}", g.handleDeleteMessage)
	api("GET /api/unread", g.handleUnread)

	ws := realtime.NewHandler(g.hub, realtime.HandlerOptions{
		OriginPatterns: g.config.Realtime.AllowedOrigins,
		PingInterval:   g.config.Realtime.PingInterval,
	}, g.logger)
	mux.Handle("GET /ws", authMiddleware(ws))
}

// handleListConversations handles GET /api/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := g.directory.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	resp := wire.ConversationList{Conversations: make([]wire.Conversation, 0, len(convs))}
	for _, c := range convs {
		resp.Conversations = append(resp.Conversations, messaging.ToWireConversation(c))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleOpenConversation handles POST /api/conversations, the get-or-create
// entry point for opening a chat with another user.
func (g *Gateway) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var req wire.OpenConversationRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}

	conv, err := g.directory.GetOrCreate(r.Context(), auth.UserID(r.Context()), req.PeerID)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, messaging.ToWireConversation(conv))
}

// handleGetConversation handles GET /api/conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := g.directory.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, messaging.ToWireConversation(conv))
}

// handleHistory handles GET /api/conversations/{id}/messages?cursor=&limit=.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	page := messaging.Page{Cursor: r.URL.Query().Get("cursor")}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			g.sendError(w, r, chaterr.Validation("limit must be a positive integer"))
			return
		}
		page.Limit = limit
	}

	hp, err := g.messages.FetchHistory(r.Context(), r.PathValue("id"), page)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	resp := wire.HistoryPage{
		Messages:   make([]wire.Message, 0, len(hp.Messages)),
		NextCursor: hp.NextCursor,
		HasMore:    hp.HasMore,
	}
	for _, m := range hp.Messages {
		resp.Messages = append(resp.Messages, messaging.ToWireMessage(m))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleMarkRead handles POST /api/conversations/{id}/read.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	previous, err := g.messages.MarkRead(r.Context(), id)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, wire.MarkReadResponse{ConversationID: id, Previous: previous})
}

// handleSendMessage handles POST /api/messages.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req wire.SendRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendError(w, r, err)
		return
	}

	msg, err := g.messages.Send(r.Context(), messaging.SendRequest{
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		Content:        req.Content,
	})
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, messaging.ToWireMessage(msg))
}

// handleDeleteMessage handles DELETE /api/messages/{id}.
func (g *Gateway) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := g.messages.Delete(r.Context(), r.PathValue("id")); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnread handles GET /api/unread.
func (g *Gateway) handleUnread(w http.ResponseWriter, r *http.Request) {
	summary, err := g.messages.Unread(r.Context())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, wire.UnreadSummary{
		Total:         summary.Total,
		Conversations: summary.Conversations,
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store is reachable. Admin callers also
// get presence counts.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	if a := auth.FromContext(r.Context()); a != nil && a.IsAdmin() {
		stats := g.hub.Presence().Stats()
		_, _ = fmt.Fprintf(w, "ready (%d users online, %d connections, up %s)",
			stats.OnlineUsers, stats.Connections, time.Since(g.startedAt).Round(time.Second))
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// decodeBody decodes a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return chaterr.Validation("invalid JSON body")
	}
	return nil
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, wire.ErrorResponse{Error: message})
}

// sendError maps err to a status code. Unclassified errors are logged and
// reported without detail.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := chaterr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "not found")
			return
		}
		g.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		g.sendJSONError(w, status, "internal server error")
		return
	}
	g.sendJSONError(w, status, err.Error())
}
