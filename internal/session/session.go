// ABOUTME: Client session wiring the push channel to views, unread counts, typing and presence
// ABOUTME: Routes every inbound push frame to the one component that owns that state

package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/chatview"
	"github.com/2389/reelchat/internal/eventbus"
	"github.com/2389/reelchat/internal/typing"
	"github.com/2389/reelchat/internal/unread"
	"github.com/2389/reelchat/internal/wire"
)

// API is the persistence surface a session uses. client.APIClient satisfies it.
type API interface {
	chatview.API
	unread.Source
	ListConversations(ctx context.Context) ([]wire.Conversation, error)
	OpenConversation(ctx context.Context, peerID string) (*wire.Conversation, error)
}

// Push is the live channel a session uses. client.PushClient satisfies it.
type Push interface {
	typing.Emitter
	Run(ctx context.Context) error
	Events() <-chan wire.Frame
	Join(ctx context.Context, conversationID string) error
	Leave(ctx context.Context, conversationID string) error
}

// Options configures a Session. Callbacks run outside session locks and
// may be invoked from timer goroutines.
type Options struct {
	UserID string
	// Bus is shared by every session of the same user in one process.
	Bus *eventbus.Bus

	TypingIdle    time.Duration
	ReadDebounce  time.Duration
	EchoTolerance time.Duration

	OnUnread        func(total int)
	OnTyping        func(conversationID string, userIDs []string)
	OnPresence      func(online []string)
	OnView          func()
	OnConversations func()

	Logger *slog.Logger
}

// Session is one signed-in client instance. At most one conversation view
// is open at a time.
type Session struct {
	api    API
	push   Push
	opts   Options
	logger *slog.Logger

	unread *unread.Counter
	typing *typing.Coordinator

	mu     sync.Mutex
	view   *chatview.Controller
	online map[string]struct{}
}

// New creates a session. Call Run to start receiving events.
func New(api API, push Push, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		api:    api,
		push:   push,
		opts:   opts,
		logger: opts.Logger.With("component", "session", "user_id", opts.UserID),
		online: make(map[string]struct{}),
	}
	s.unread = unread.New(api, unread.Options{
		UserID:   opts.UserID,
		Bus:      opts.Bus,
		OnChange: opts.OnUnread,
		Logger:   opts.Logger,
	})
	s.typing = typing.New(push, typing.Options{
		Idle:     opts.TypingIdle,
		OnChange: opts.OnTyping,
		Logger:   opts.Logger,
	})
	return s
}

// Unread returns the session's unread counter.
func (s *Session) Unread() *unread.Counter {
	return s.unread
}

// Typing returns the session's typing coordinator.
func (s *Session) Typing() *typing.Coordinator {
	return s.typing
}

// View returns the open conversation view, or nil.
func (s *Session) View() *chatview.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Run keeps the push channel connected and dispatches its events until ctx
// is canceled or the channel gives up.
func (s *Session) Run(ctx context.Context) error {
	if err := s.unread.Refresh(ctx); err != nil {
		s.logger.Warn("initial unread refresh failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.push.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case f, ok := <-s.push.Events():
				if !ok {
					return nil
				}
				s.Dispatch(f)
			}
		}
	})
	return g.Wait()
}

// Dispatch routes one push frame.
func (s *Session) Dispatch(f wire.Frame) {
	switch f.Type {
	case wire.EventMessageReceived:
		var m wire.Message
		if !s.decode(f, &m) {
			return
		}
		if m.SenderID != s.opts.UserID {
			s.typing.OnRemoteTyping(m.ConversationID, m.SenderID, false)
		}
		if v := s.View(); v != nil {
			v.HandleMessage(m)
		}

	case wire.EventNewMessage:
		var m wire.Message
		if !s.decode(f, &m) {
			return
		}
		s.unread.HandleIncoming(m)
		s.callback(s.opts.OnConversations)

	case wire.EventMessageDeleted:
		var ev wire.MessageDeleted
		if !s.decode(f, &ev) {
			return
		}
		if v := s.View(); v != nil {
			v.HandleDeleted(ev.ConversationID, ev.MessageID)
		}
		s.callback(s.opts.OnConversations)

	case wire.EventUserTyping, wire.EventUserStoppedTyping:
		var ev wire.TypingEvent
		if !s.decode(f, &ev) || ev.UserID == s.opts.UserID {
			return
		}
		s.typing.OnRemoteTyping(ev.ConversationID, ev.UserID, f.Type == wire.EventUserTyping)

	case wire.EventUserOnline, wire.EventUserOffline:
		var ev wire.PresenceEvent
		if !s.decode(f, &ev) {
			return
		}
		s.mu.Lock()
		if f.Type == wire.EventUserOnline {
			s.online[ev.UserID] = struct{}{}
		} else {
			delete(s.online, ev.UserID)
		}
		s.mu.Unlock()
		s.presenceChanged()

	case wire.EventPresenceSnapshot:
		var ev wire.PresenceSnapshot
		if !s.decode(f, &ev) {
			return
		}
		s.mu.Lock()
		s.online = make(map[string]struct{}, len(ev.UserIDs))
		for _, id := range ev.UserIDs {
			s.online[id] = struct{}{}
		}
		s.mu.Unlock()
		s.presenceChanged()

	case wire.EventConversationRead:
		var ev wire.ConversationRead
		if !s.decode(f, &ev) || ev.UserID != s.opts.UserID {
			return
		}
		s.unread.ApplyRead(ev.ConversationID)

	case wire.EventError:
		var ev wire.ErrorEvent
		if s.decode(f, &ev) {
			s.logger.Warn("gateway rejected frame", "op", ev.Op, "status", ev.Status, "message", ev.Message)
		}

	default:
		s.logger.Debug("ignoring frame", "type", f.Type)
	}
}

func (s *Session) decode(f wire.Frame, v any) bool {
	if err := f.Decode(v); err != nil {
		s.logger.Warn("malformed frame", "type", f.Type, "error", err)
		return false
	}
	return true
}

// Conversations lists the user's conversations.
func (s *Session) Conversations(ctx context.Context) ([]wire.Conversation, error) {
	return s.api.ListConversations(ctx)
}

// OpenPeer gets or creates the conversation with peerID and opens it.
func (s *Session) OpenPeer(ctx context.Context, peerID string) (*chatview.Controller, error) {
	conv, err := s.api.OpenConversation(ctx, peerID)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, conv.ID)
}

// Open shows a conversation, closing the previous view. The returned view
// is kept even when its first load fails, so the caller can Retry.
func (s *Session) Open(ctx context.Context, conversationID string) (*chatview.Controller, error) {
	if conversationID == "" {
		return nil, chaterr.Validation("conversation id is required")
	}
	s.CloseView(ctx)

	view := chatview.New(s.api, chatview.Options{
		ConversationID: conversationID,
		SelfID:         s.opts.UserID,
		EchoTolerance:  s.opts.EchoTolerance,
		ReadDebounce:   s.opts.ReadDebounce,
		Unread:         s.unread,
		OnChange:       s.opts.OnView,
		Logger:         s.opts.Logger,
	})

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
	s.unread.SetActive(conversationID)

	if err := s.push.Join(ctx, conversationID); err != nil {
		// Live updates resume when the push channel rejoins.
		s.logger.Warn("join failed", "conversation_id", conversationID, "error", err)
	}
	return view, view.Mount(ctx)
}

// CloseView tears down the open view, if any.
func (s *Session) CloseView(ctx context.Context) {
	s.mu.Lock()
	view := s.view
	s.view = nil
	s.mu.Unlock()
	if view == nil {
		return
	}

	id := view.ConversationID()
	view.Unmount()
	s.typing.Stop(id)
	s.unread.SetActive("")
	if err := s.push.Leave(ctx, id); err != nil {
		s.logger.Debug("leave failed", "conversation_id", id, "error", err)
	}
}

// Keystroke records typing in the open conversation.
func (s *Session) Keystroke() {
	if v := s.View(); v != nil {
		s.typing.OnKeystroke(v.ConversationID())
	}
}

// Send sends content to the open conversation and stops the typing flag.
func (s *Session) Send(ctx context.Context, content string) (*wire.Message, error) {
	v := s.View()
	if v == nil {
		return nil, &chatview.SendError{Content: content, Err: chaterr.Validation("no conversation is open")}
	}
	s.typing.Stop(v.ConversationID())
	return v.Send(ctx, content)
}

// IsOnline reports whether userID has a live connection.
func (s *Session) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// Online returns the online user IDs, sorted.
func (s *Session) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Session) presenceChanged() {
	if s.opts.OnPresence != nil {
		s.opts.OnPresence(s.Online())
	}
}

func (s *Session) callback(fn func()) {
	if fn != nil {
		fn()
	}
}

// Close tears down the view and stops all timers. It does not stop Run;
// cancel its context for that.
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.CloseView(ctx)
	s.typing.Close()
	s.unread.Close()
}
