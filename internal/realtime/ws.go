// ABOUTME: WebSocket endpoint for the push channel built on coder/websocket
// ABOUTME: A read loop dispatches client frames while a writer drains the connection queue

package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/reelchat/internal/auth"
	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/wire"
)

const (
	writeTimeout = 5 * time.Second
	readLimit    = 64 * 1024

	DefaultPingInterval = 30 * time.Second
)

// HandlerOptions configures the WebSocket endpoint.
type HandlerOptions struct {
	// OriginPatterns are passed to websocket.AcceptOptions. Empty allows
	// same-origin requests only.
	OriginPatterns []string
	PingInterval   time.Duration
}

// Handler upgrades authenticated requests and attaches them to the hub.
// It expects auth.HTTPAuthMiddleware (or equivalent) to have put the
// caller into the request context.
type Handler struct {
	hub    *Hub
	opts   HandlerOptions
	logger *slog.Logger
}

// NewHandler creates the push channel handler. Pass nil logger for default.
func NewHandler(hub *Hub, opts HandlerOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	return &Handler{
		hub:    hub,
		opts:   opts,
		logger: logger.With("component", "ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	ws.SetReadLimit(readLimit)

	conn, err := h.hub.Register(userID)
	if err != nil {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, cancel, ws, conn)
	}()

	h.readLoop(ctx, ws, conn)

	h.hub.Unregister(conn)
	cancel()
	<-done
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *Connection) {
	for {
		var f wire.Frame
		if err := wsjson.Read(ctx, ws, &f); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				h.logger.Debug("read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}

		if err := h.hub.Handle(conn, f); err != nil {
			ef, _ := wire.NewFrame(wire.EventError, wire.ErrorEvent{
				Op:      f.Type,
				Status:  chaterr.HTTPStatus(err),
				Message: err.Error(),
			})
			conn.send(ef)
		}
	}
}

// writeLoop drains the connection queue until it is closed or ctx ends.
// A write failure cancels ctx so the read loop stops too.
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, conn *Connection) {
	defer cancel()
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pctx)
			pcancel()
			if err != nil {
				h.logger.Debug("ping failed", "conn_id", conn.ID, "error", err)
				return
			}
		case f, ok := <-conn.Outbound():
			if !ok {
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, ws, f)
			wcancel()
			if err != nil {
				h.logger.Debug("write failed", "conn_id", conn.ID, "error", err)
				return
			}
		}
	}
}
