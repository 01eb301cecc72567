// ABOUTME: Typing indicator coordinator for one client session
// ABOUTME: Emits start/stop for local keystrokes and expires remote typing flags

package typing

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Defaults for Options zero values.
const (
	DefaultIdle      = 3 * time.Second
	DefaultRemoteTTL = 5 * time.Second
)

// Emitter sends typing state for the session user to the server.
type Emitter interface {
	EmitTyping(conversationID string, typing bool) error
}

// Options configures a Coordinator.
type Options struct {
	// Idle is how long after the last keystroke a stop is emitted.
	Idle time.Duration
	// RemoteTTL expires a remote typing flag if its stop never arrives.
	// Clamped to at least Idle.
	RemoteTTL time.Duration
	// OnChange is called with the users typing in a conversation whenever
	// that set changes, outside the lock.
	OnChange func(conversationID string, userIDs []string)
	Logger   *slog.Logger
}

type localState struct {
	timer *time.Timer
}

type remoteState struct {
	timer *time.Timer
}

// Coordinator tracks local and remote typing state.
type Coordinator struct {
	emitter   Emitter
	idle      time.Duration
	remoteTTL time.Duration
	onChange  func(string, []string)
	logger    *slog.Logger

	mu     sync.Mutex
	local  map[string]*localState             // conversationID -> state
	remote map[string]map[string]*remoteState // conversationID -> userID -> state
	closed bool
}

// New creates a Coordinator that emits through e.
func New(e Emitter, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Idle <= 0 {
		opts.Idle = DefaultIdle
	}
	if opts.RemoteTTL <= 0 {
		opts.RemoteTTL = DefaultRemoteTTL
	}
	if opts.RemoteTTL < opts.Idle {
		opts.RemoteTTL = opts.Idle
	}
	return &Coordinator{
		emitter:   e,
		idle:      opts.Idle,
		remoteTTL: opts.RemoteTTL,
		onChange:  opts.OnChange,
		logger:    opts.Logger.With("component", "typing"),
		local:     make(map[string]*localState),
		remote:    make(map[string]map[string]*remoteState),
	}
}

// OnKeystroke records local typing activity. The first keystroke emits a
// start; each keystroke restarts the idle countdown, which emits a stop
// when it elapses.
func (c *Coordinator) OnKeystroke(conversationID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev, flagged := c.local[conversationID]
	if flagged {
		prev.timer.Stop()
	}
	st := &localState{}
	st.timer = time.AfterFunc(c.idle, func() { c.idleElapsed(conversationID, st) })
	c.local[conversationID] = st
	c.mu.Unlock()

	if !flagged {
		c.emit(conversationID, true)
	}
}

// Stop ends local typing immediately, for example after a send.
func (c *Coordinator) Stop(conversationID string) {
	c.mu.Lock()
	st, flagged := c.local[conversationID]
	if !flagged || c.closed {
		c.mu.Unlock()
		return
	}
	st.timer.Stop()
	delete(c.local, conversationID)
	c.mu.Unlock()

	c.emit(conversationID, false)
}

// IsLocalTyping reports whether a start was emitted without a stop yet.
func (c *Coordinator) IsLocalTyping(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.local[conversationID]
	return ok
}

func (c *Coordinator) idleElapsed(conversationID string, st *localState) {
	c.mu.Lock()
	// A newer keystroke or Stop replaced this state
	if c.closed || c.local[conversationID] != st {
		c.mu.Unlock()
		return
	}
	delete(c.local, conversationID)
	c.mu.Unlock()

	c.emit(conversationID, false)
}

func (c *Coordinator) emit(conversationID string, typing bool) {
	if c.emitter == nil {
		return
	}
	if err := c.emitter.EmitTyping(conversationID, typing); err != nil {
		// Typing is best effort
		c.logger.Debug("emit typing failed",
			"conversation_id", conversationID,
			"typing", typing,
			"error", err)
	}
}

// OnRemoteTyping applies a typing event for another user. A start sets a
// flag that expires after the remote TTL unless refreshed.
func (c *Coordinator) OnRemoteTyping(conversationID, userID string, isTyping bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	users := c.remote[conversationID]
	prev, had := users[userID]
	if had {
		prev.timer.Stop()
	}

	if isTyping {
		if users == nil {
			users = make(map[string]*remoteState)
			c.remote[conversationID] = users
		}
		st := &remoteState{}
		st.timer = time.AfterFunc(c.remoteTTL, func() { c.remoteExpired(conversationID, userID, st) })
		users[userID] = st
	} else if had {
		c.removeRemoteLocked(conversationID, userID)
	}

	changed := isTyping != had
	snapshot := c.typingLocked(conversationID)
	c.mu.Unlock()

	if changed {
		c.notify(conversationID, snapshot)
	}
}

func (c *Coordinator) remoteExpired(conversationID, userID string, st *remoteState) {
	c.mu.Lock()
	if c.closed || c.remote[conversationID][userID] != st {
		c.mu.Unlock()
		return
	}
	c.removeRemoteLocked(conversationID, userID)
	snapshot := c.typingLocked(conversationID)
	c.mu.Unlock()

	c.notify(conversationID, snapshot)
}

func (c *Coordinator) removeRemoteLocked(conversationID, userID string) {
	users := c.remote[conversationID]
	delete(users, userID)
	if len(users) == 0 {
		delete(c.remote, conversationID)
	}
}

// Typing returns the remote users currently typing in a conversation, sorted.
func (c *Coordinator) Typing(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typingLocked(conversationID)
}

func (c *Coordinator) typingLocked(conversationID string) []string {
	users := c.remote[conversationID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) notify(conversationID string, users []string) {
	if c.onChange != nil {
		c.onChange(conversationID, users)
	}
}

// Close cancels every timer. No emits or callbacks happen afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, st := range c.local {
		st.timer.Stop()
		delete(c.local, id)
	}
	for convID, users := range c.remote {
		for _, st := range users {
			st.timer.Stop()
		}
		delete(c.remote, convID)
	}
}
