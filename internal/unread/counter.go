// ABOUTME: Client-side unread counter for the session user
// ABOUTME: Optimistic local updates reconciled against the server after a debounced refetch

package unread

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/reelchat/internal/eventbus"
	"github.com/2389/reelchat/internal/wire"
)

// Defaults for Options zero values.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultFetchTimeout = 5 * time.Second
)

// Source fetches the authoritative unread state.
type Source interface {
	Unread(ctx context.Context) (*wire.UnreadSummary, error)
}

// Options configures a Counter.
type Options struct {
	UserID string
	// InstanceID distinguishes this counter from other instances of the
	// same user on the bus. Generated when empty.
	InstanceID string
	// Bus is optional; without it no cross-instance coordination happens.
	Bus      *eventbus.Bus
	Debounce time.Duration
	// OnChange is called with the new total after every change, outside the lock.
	OnChange func(total int)
	Logger   *slog.Logger
}

// Counter holds per-conversation unread counts and their total. All
// mutation goes through its methods.
type Counter struct {
	source     Source
	bus        *eventbus.Bus
	userID     string
	instanceID string
	debounce   time.Duration
	onChange   func(int)
	logger     *slog.Logger

	mu     sync.Mutex
	counts map[string]int
	total  int
	active string
	timer  *time.Timer
	closed bool
	// gen counts local changes; a refresh that started before the latest
	// change is stale and must not overwrite it.
	gen uint64
	// running tracks refreshes and callbacks so Close can wait for them.
	running sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Counter and, when a bus is given, starts applying read
// events published by other instances of the same user.
func New(src Source, opts Options) *Counter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Counter{
		source:     src,
		bus:        opts.Bus,
		userID:     opts.UserID,
		instanceID: opts.InstanceID,
		debounce:   opts.Debounce,
		onChange:   opts.OnChange,
		logger:     opts.Logger.With("component", "unread", "instance_id", opts.InstanceID),
		counts:     make(map[string]int),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if c.bus == nil {
		close(c.done)
		return c
	}

	events, _ := c.bus.Subscribe(ctx, eventbus.TopicMessageRead)
	go func() {
		defer close(c.done)
		for e := range events {
			if e.UserID != c.userID || e.Source == c.instanceID {
				continue
			}
			c.ApplyRead(e.ConversationID)
		}
	}()
	return c
}

// InstanceID returns the bus identity of this counter.
func (c *Counter) InstanceID() string {
	return c.instanceID
}

// Total returns the aggregate unread count.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Count returns the unread count of one conversation.
func (c *Counter) Count(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[conversationID]
}

// Snapshot returns a copy of the non-zero per-conversation counts.
func (c *Counter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for id, n := range c.counts {
		if n > 0 {
			out[id] = n
		}
	}
	return out
}

// SetActive marks the conversation currently on screen. Incoming messages
// for it do not count as unread. Empty clears it.
func (c *Counter) SetActive(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = conversationID
}

// Increment adds one unread message to a conversation.
func (c *Counter) Increment(conversationID string) {
	c.update(func() bool {
		c.counts[conversationID]++
		c.gen++
		return true
	})
}

// HandleIncoming counts a pushed message unless the session user sent it
// or its conversation is active.
func (c *Counter) HandleIncoming(m wire.Message) {
	c.update(func() bool {
		if m.SenderID == c.userID || m.ConversationID == c.active {
			return false
		}
		c.counts[m.ConversationID]++
		c.gen++
		return true
	})
}

// ApplyRead zeroes a conversation without telling anyone. Used for reads
// that happened elsewhere.
func (c *Counter) ApplyRead(conversationID string) {
	c.update(func() bool {
		if c.counts[conversationID] == 0 {
			return false
		}
		delete(c.counts, conversationID)
		c.gen++
		return true
	})
}

// ReconcileOnRead zeroes a conversation after this instance read it, tells
// other instances of the user through the bus and schedules an
// authoritative refetch.
func (c *Counter) ReconcileOnRead(conversationID string) {
	c.ApplyRead(conversationID)

	if c.bus != nil {
		c.bus.Publish(eventbus.Event{
			Topic:          eventbus.TopicMessageRead,
			Source:         c.instanceID,
			UserID:         c.userID,
			ConversationID: conversationID,
		})
	}

	c.scheduleRefresh()
}

// Refresh replaces local state with the server's. On failure local state is
// kept and the error returned; the next refresh tries again. A snapshot
// fetched while local changes landed is discarded and another refresh is
// scheduled.
func (c *Counter) Refresh(ctx context.Context) error {
	c.mu.Lock()
	start := c.gen
	c.mu.Unlock()

	summary, err := c.source.Unread(ctx)
	if err != nil {
		c.logger.Warn("unread refresh failed", "error", err)
		return err
	}

	stale := false
	c.update(func() bool {
		if c.gen != start {
			stale = true
			return false
		}
		c.counts = make(map[string]int, len(summary.Conversations))
		for id, n := range summary.Conversations {
			if n > 0 {
				c.counts[id] = n
			}
		}
		return true
	})
	if stale {
		c.logger.Debug("discarding stale unread snapshot")
		c.scheduleRefresh()
	}
	return nil
}

// Close stops the pending refetch and the bus subscription. No OnChange
// call happens after Close returns.
func (c *Counter) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	c.cancel()
	<-c.done
	c.running.Wait()
}

func (c *Counter) scheduleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.running.Add(1)
		c.mu.Unlock()
		defer c.running.Done()

		ctx, cancel := context.WithTimeout(c.ctx, DefaultFetchTimeout)
		defer cancel()
		_ = c.Refresh(ctx)
	})
}

// update applies fn under the lock, recomputes the total and notifies.
// Nothing changes once the counter is closed.
func (c *Counter) update(fn func() bool) {
	c.mu.Lock()
	if c.closed || !fn() {
		c.mu.Unlock()
		return
	}
	total := 0
	for _, n := range c.counts {
		total += n
	}
	changed := total != c.total
	c.total = total
	onChange := c.onChange
	if !changed || onChange == nil {
		c.mu.Unlock()
		return
	}
	c.running.Add(1)
	c.mu.Unlock()

	defer c.running.Done()
	onChange(total)
}
