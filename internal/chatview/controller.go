// ABOUTME: Conversation view controller merging history, optimistic sends and pushed messages
// ABOUTME: Loading/Ready/Failed state machine with id dedupe and a debounced mark-read

package chatview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/dedupe"
	"github.com/2389/reelchat/internal/wire"
)

const (
	DefaultPageSize     = 50
	DefaultReadDebounce = time.Second
	DefaultReadTimeout  = 5 * time.Second
)

// State is the view lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
	StateUnmounted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateUnmounted:
		return "unmounted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// API is the persistence surface the view needs. client.APIClient satisfies it.
type API interface {
	FetchHistory(ctx context.Context, conversationID, cursor string, limit int) (*wire.HistoryPage, error)
	Send(ctx context.Context, conversationID, recipientID, content string) (*wire.Message, error)
	MarkRead(ctx context.Context, conversationID string) (int, error)
}

// ReadReconciler is told when the view has marked its conversation read.
// unread.Counter satisfies it.
type ReadReconciler interface {
	ReconcileOnRead(conversationID string)
}

// Item is one visible message. Pending items are optimistic echoes of a send
// still in flight; their ID is a local placeholder.
type Item struct {
	wire.Message
	Pending bool
}

// SendError is returned when a send fails. Content holds what the user
// composed so it can be offered for retry.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return "sending message: " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Options configures a Controller.
type Options struct {
	ConversationID string
	SelfID         string
	PageSize       int
	EchoTolerance  time.Duration
	ReadDebounce   time.Duration
	// SeenCapacity bounds the remembered IDs of messages no longer visible.
	// Visible messages are always recognized.
	SeenCapacity int
	// Unread is notified after each successful mark-read. Optional.
	Unread ReadReconciler
	// OnChange is called after every visible change, outside the lock.
	OnChange func()
	Logger   *slog.Logger
}

// Controller owns the visible message list of one open conversation.
type Controller struct {
	api     API
	opts    Options
	logger  *slog.Logger
	seen    *dedupe.IDSet
	pending *dedupe.Pending
	now     func() time.Time

	// ctx is canceled by Unmount so background mark-reads stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	err          error
	items        []Item
	early        []wire.Message // pushed while loading
	cursor       string
	hasMore      bool
	loadingOlder bool
	readTimer    *time.Timer
	tempSeq      int
}

// New creates a controller in the Loading state. Call Mount to load history.
func New(api API, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ReadDebounce <= 0 {
		opts.ReadDebounce = DefaultReadDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:     api,
		opts:    opts,
		logger:  logger.With("component", "chatview", "conversation_id", opts.ConversationID),
		seen:    dedupe.NewIDSet(opts.SeenCapacity),
		pending: dedupe.NewPending(opts.EchoTolerance),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateLoading,
	}
}

// ConversationID returns the conversation this view shows.
func (c *Controller) ConversationID() string {
	return c.opts.ConversationID
}

// State returns the current state and, when Failed, the load error.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.err
}

// Items returns a copy of the visible messages, oldest first.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// HasMore reports whether older history can be loaded.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Mount loads the newest history page. On success the view becomes Ready
// and the conversation is marked read once; on failure it becomes Failed
// and Retry may be called.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		return chaterr.Validation("view is unmounted")
	}
	c.state = StateLoading
	c.err = nil
	c.mu.Unlock()
	c.notify()

	page, err := c.api.FetchHistory(ctx, c.opts.ConversationID, "", c.opts.PageSize)

	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		return chaterr.Validation("view is unmounted")
	}
	if err != nil {
		c.state = StateFailed
		c.err = err
		c.mu.Unlock()
		c.logger.Warn("history load failed", "error", err)
		c.notify()
		return err
	}

	c.items = c.items[:0]
	c.seen.Reset()
	for _, m := range page.Messages {
		if c.admitLocked(m.ID) {
			c.items = append(c.items, Item{Message: m})
		}
	}
	c.cursor = page.NextCursor
	c.hasMore = page.HasMore
	c.state = StateReady

	early := c.early
	c.early = nil
	for _, m := range early {
		c.mergeLocked(m)
	}
	c.mu.Unlock()

	c.notify()
	c.markRead(ctx)
	return nil
}

// Retry reloads history after a failed Mount. It is a no-op unless Failed.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	failed := c.state == StateFailed
	c.mu.Unlock()
	if !failed {
		return nil
	}
	return c.Mount(ctx)
}

// LoadOlder prepends the previous history page and returns how many
// messages were added. It does nothing when there is no more history or a
// load is already running.
func (c *Controller) LoadOlder(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.state != StateReady || !c.hasMore || c.loadingOlder {
		c.mu.Unlock()
		return 0, nil
	}
	c.loadingOlder = true
	cursor := c.cursor
	c.mu.Unlock()

	page, err := c.api.FetchHistory(ctx, c.opts.ConversationID, cursor, c.opts.PageSize)

	c.mu.Lock()
	c.loadingOlder = false
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if c.state != StateReady {
		c.mu.Unlock()
		return 0, nil
	}

	older := make([]Item, 0, len(page.Messages))
	for _, m := range page.Messages {
		if c.admitLocked(m.ID) {
			older = append(older, Item{Message: m})
		}
	}
	c.items = append(older, c.items...)
	c.cursor = page.NextCursor
	c.hasMore = page.HasMore
	c.mu.Unlock()

	if len(older) > 0 {
		c.notify()
	}
	return len(older), nil
}

// Send shows an optimistic echo, persists the message and replaces the echo
// with the stored copy. On failure the echo is removed and a *SendError
// carrying the composed content is returned.
func (c *Controller) Send(ctx context.Context, content string) (*wire.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &SendError{Content: content, Err: chaterr.Validation("message content is empty")}
	}

	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, &SendError{Content: content, Err: chaterr.Validation("view is %s", state)}
	}
	c.tempSeq++
	echo := dedupe.Echo{
		TempID:  fmt.Sprintf("local-%d", c.tempSeq),
		Content: trimmed,
		At:      c.now(),
	}
	c.items = append(c.items, Item{
		Message: wire.Message{
			ID:             echo.TempID,
			ConversationID: c.opts.ConversationID,
			SenderID:       c.opts.SelfID,
			Content:        trimmed,
			CreatedAt:      echo.At,
		},
		Pending: true,
	})
	c.pending.Push(echo)
	c.mu.Unlock()
	c.notify()

	msg, err := c.api.Send(ctx, c.opts.ConversationID, "", trimmed)

	c.mu.Lock()
	if err != nil {
		c.pending.Remove(echo.TempID)
		c.removeLocked(echo.TempID)
		c.mu.Unlock()
		c.notify()
		return nil, &SendError{Content: content, Err: err}
	}

	// The pushed copy may already have replaced the echo.
	if c.pending.Remove(echo.TempID) {
		if c.admitLocked(msg.ID) {
			c.replaceLocked(echo.TempID, *msg)
		} else {
			c.removeLocked(echo.TempID)
		}
	}
	c.mu.Unlock()
	c.notify()
	return msg, nil
}

// HandleMessage merges a pushed message and reports whether it became
// visible. Messages for other conversations are ignored; messages pushed
// while loading are held until history arrives.
func (c *Controller) HandleMessage(m wire.Message) bool {
	if m.ConversationID != c.opts.ConversationID {
		return false
	}

	c.mu.Lock()
	switch c.state {
	case StateLoading:
		c.early = append(c.early, m)
		c.mu.Unlock()
		return false
	case StateReady:
	default:
		c.mu.Unlock()
		return false
	}
	added := c.mergeLocked(m)
	c.mu.Unlock()

	if !added {
		return false
	}
	if m.SenderID != c.opts.SelfID {
		c.scheduleMarkRead()
	}
	c.notify()
	return true
}

// mergeLocked applies one pushed message. Must be called with mu held.
func (c *Controller) mergeLocked(m wire.Message) bool {
	if !c.admitLocked(m.ID) {
		return false
	}
	if m.SenderID == c.opts.SelfID {
		if echo, ok := c.pending.Match(m.Content, m.CreatedAt); ok {
			c.replaceLocked(echo.TempID, m)
			return true
		}
	}
	c.items = append(c.items, Item{Message: m})
	return true
}

// HandleDeleted removes a message from the view. The ID stays known so a
// late duplicate of the same message is not shown again.
func (c *Controller) HandleDeleted(conversationID, messageID string) bool {
	if conversationID != c.opts.ConversationID {
		return false
	}
	c.mu.Lock()
	c.seen.Add(messageID)
	removed := c.removeLocked(messageID)
	c.mu.Unlock()

	if removed {
		c.notify()
	}
	return removed
}

// Unmount tears the view down. Pending mark-reads are canceled and later
// events are ignored.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.state == StateUnmounted {
		c.mu.Unlock()
		return
	}
	c.state = StateUnmounted
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	c.early = nil
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) scheduleMarkRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return
	}
	if c.readTimer != nil {
		c.readTimer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(c.opts.ReadDebounce, func() {
		c.mu.Lock()
		current := c.readTimer == t && c.state == StateReady
		if current {
			c.readTimer = nil
		}
		c.mu.Unlock()
		if !current {
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, DefaultReadTimeout)
		defer cancel()
		c.markRead(ctx)
	})
	c.readTimer = t
}

// markRead acknowledges the conversation. Failures are logged only; the
// unread badge catches up on its next refresh.
func (c *Controller) markRead(ctx context.Context) {
	if _, err := c.api.MarkRead(ctx, c.opts.ConversationID); err != nil {
		c.logger.Warn("mark read failed", "error", err)
		return
	}
	if c.opts.Unread != nil {
		c.opts.Unread.ReconcileOnRead(c.opts.ConversationID)
	}
}

// admitLocked records id and reports whether it is new. The seen set may
// have evicted an ID that is still on screen, so visible items are checked
// too.
func (c *Controller) admitLocked(id string) bool {
	for i := range c.items {
		if c.items[i].ID == id {
			return false
		}
	}
	return c.seen.Add(id)
}

func (c *Controller) replaceLocked(id string, m wire.Message) {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i] = Item{Message: m}
			return
		}
	}
	c.items = append(c.items, Item{Message: m})
}

func (c *Controller) removeLocked(id string) bool {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Controller) notify() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}
