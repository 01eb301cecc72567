// ABOUTME: Push channel client that keeps one WebSocket open to the gateway
// ABOUTME: Reconnects with exponential backoff and rejoins its rooms after every reconnect

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/wire"
)

// Status is the push channel connection state.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

const (
	DefaultEventBuffer  = 64
	DefaultWriteTimeout = 5 * time.Second
	DefaultInitialRetry = 500 * time.Millisecond
	DefaultMaxRetry     = 30 * time.Second
	pushReadLimit       = 64 * 1024
)

// PushOptions configures a PushClient. Zero values select the defaults.
type PushOptions struct {
	EventBuffer  int
	WriteTimeout time.Duration
	InitialRetry time.Duration
	MaxRetry     time.Duration
	// OnStatus is called on every state transition, from the Run goroutine.
	OnStatus   func(Status)
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// PushClient receives gateway events and sends room and typing frames.
type PushClient struct {
	url    string
	opts   PushOptions
	logger *slog.Logger
	events chan wire.Frame

	mu     sync.Mutex
	conn   *websocket.Conn
	rooms  map[string]struct{}
	status Status
}

// NewPushClient creates a client for the gateway at baseURL. Call Run to connect.
func NewPushClient(baseURL, token string, opts PushOptions) (*PushClient, error) {
	u, err := pushURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.InitialRetry <= 0 {
		opts.InitialRetry = DefaultInitialRetry
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = DefaultMaxRetry
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PushClient{
		url:    u,
		opts:   opts,
		logger: logger.With("component", "push"),
		events: make(chan wire.Frame, opts.EventBuffer),
		rooms:  make(map[string]struct{}),
	}, nil
}

// pushURL turns an http(s) gateway URL into the ws(s) push endpoint.
func pushURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", chaterr.Validation("invalid gateway url: %v", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", chaterr.Validation("unsupported gateway url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Events delivers every frame received from the gateway. It is closed when
// Run returns.
func (p *PushClient) Events() <-chan wire.Frame {
	return p.events
}

// Status returns the current connection state.
func (p *PushClient) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run connects and keeps the connection alive until ctx is canceled or the
// gateway rejects the token. It always closes the Events channel on return.
func (p *PushClient) Run(ctx context.Context) error {
	defer close(p.events)
	defer p.setStatus(StatusClosed)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialRetry
	b.MaxInterval = p.opts.MaxRetry
	b.MaxElapsedTime = 0

	p.setStatus(StatusConnecting)
	for {
		conn, err := p.dial(ctx)
		if err == nil {
			b.Reset()
			err = p.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, chaterr.ErrUnauthorized) {
			p.logger.Error("push channel rejected", "error", err)
			return err
		}

		wait := b.NextBackOff()
		p.logger.Warn("push channel lost, reconnecting", "error", err, "retry_in", wait)
		p.setStatus(StatusReconnecting)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (p *PushClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, p.url, &websocket.DialOptions{HTTPClient: p.opts.HTTPClient})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, chaterr.Unauthorized("gateway rejected token")
		}
		return nil, fmt.Errorf("%w: dialing push channel: %v", chaterr.ErrTransport, err)
	}
	conn.SetReadLimit(pushReadLimit)
	return conn, nil
}

// serve attaches conn, rejoins rooms and reads until the connection fails.
func (p *PushClient) serve(ctx context.Context, conn *websocket.Conn) error {
	p.mu.Lock()
	p.conn = conn
	rooms := make([]string, 0, len(p.rooms))
	for id := range p.rooms {
		rooms = append(rooms, id)
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		_ = conn.CloseNow()
	}()

	for _, id := range rooms {
		if err := p.write(ctx, conn, wire.EventJoinConversation, wire.ConversationRef{ConversationID: id}); err != nil {
			return err
		}
	}
	p.setStatus(StatusConnected)
	p.logger.Info("push channel connected", "rooms", len(rooms))

	for {
		var f wire.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			}
			return fmt.Errorf("%w: reading push channel: %v", chaterr.ErrTransport, err)
		}
		select {
		case p.events <- f:
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return ctx.Err()
		}
	}
}

// Join subscribes to a conversation room. The room is remembered and
// rejoined after reconnects; while disconnected the join is only recorded.
func (p *PushClient) Join(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return chaterr.Validation("conversation id is required")
	}
	p.mu.Lock()
	p.rooms[conversationID] = struct{}{}
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return p.write(ctx, conn, wire.EventJoinConversation, wire.ConversationRef{ConversationID: conversationID})
}

// Leave unsubscribes from a conversation room.
func (p *PushClient) Leave(ctx context.Context, conversationID string) error {
	p.mu.Lock()
	delete(p.rooms, conversationID)
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return p.write(ctx, conn, wire.EventLeaveConversation, wire.ConversationRef{ConversationID: conversationID})
}

// Rooms returns the conversations currently joined.
func (p *PushClient) Rooms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]string, 0, len(p.rooms))
	for id := range p.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// EmitTyping sends a typing or stopTyping frame. It fails with
// chaterr.ErrTransport while disconnected; typing state is not queued.
func (p *PushClient) EmitTyping(conversationID string, typing bool) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: push channel not connected", chaterr.ErrTransport)
	}

	t := wire.EventStopTyping
	if typing {
		t = wire.EventTyping
	}
	return p.write(context.Background(), conn, t, wire.ConversationRef{ConversationID: conversationID})
}

func (p *PushClient) write(ctx context.Context, conn *websocket.Conn, t wire.EventType, payload any) error {
	f, err := wire.NewFrame(t, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, f); err != nil {
		return fmt.Errorf("%w: writing %s: %v", chaterr.ErrTransport, t, err)
	}
	return nil
}

func (p *PushClient) setStatus(s Status) {
	p.mu.Lock()
	changed := p.status != s
	p.status = s
	p.mu.Unlock()
	if changed && p.opts.OnStatus != nil {
		p.opts.OnStatus(s)
	}
}
