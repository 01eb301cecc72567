// ABOUTME: Terminal rendering for the TUI client
// ABOUTME: Prints new messages, typing and unread changes as they arrive from the session

package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/2389/reelchat/internal/chaterr"
	"github.com/2389/reelchat/internal/chatview"
	"github.com/2389/reelchat/internal/client"
	"github.com/2389/reelchat/internal/session"
	"github.com/2389/reelchat/internal/wire"
)

// screen serializes terminal output coming from the REPL and from session
// callbacks on other goroutines.
type screen struct {
	self string

	mu      sync.Mutex
	shown   map[string]bool
	view    string
	unreadN int
}

func newScreen(self string) *screen {
	return &screen{self: self, shown: make(map[string]bool)}
}

func (s *screen) prompt(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	label := "reelchat"
	if v := sess.View(); v != nil {
		label = v.ConversationID()
	}
	if s.unreadN > 0 {
		yellow.Printf("(%d) ", s.unreadN)
	}
	fmt.Printf("[%s]> ", label)
}

// render prints messages of the open view not printed yet.
func (s *screen) render(items []chatview.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) > 0 && items[0].ConversationID != s.view {
		s.view = items[0].ConversationID
		s.shown = make(map[string]bool)
	}
	for _, it := range items {
		if it.Pending || s.shown[it.ID] {
			continue
		}
		s.shown[it.ID] = true
		ts := it.CreatedAt.Local().Format("15:04")
		if it.SenderID == s.self {
			gray.Printf("\r%s ", ts)
			fmt.Printf("me: %s\n", it.Content)
		} else {
			gray.Printf("\r%s ", ts)
			cyan.Printf("%s: ", it.SenderID)
			fmt.Println(it.Content)
		}
	}
}

func (s *screen) typing(conversationID string, users []string) {
	if len(users) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID != s.view {
		return
	}
	gray.Printf("\r%s typing...\n", strings.Join(users, ", "))
}

func (s *screen) unread(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreadN = total
}

func (s *screen) status(st client.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st {
	case client.StatusConnected:
		gray.Println("\r[connected]")
	case client.StatusReconnecting:
		yellow.Println("\r[connection lost, reconnecting]")
	}
}

func (s *screen) conversations(convs []wire.Conversation, sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(convs) == 0 {
		fmt.Println("No conversations yet. /open <user> starts one.")
		return
	}
	for _, c := range convs {
		peer := c.Peer(s.self)
		marker := " "
		if sess.IsOnline(peer) {
			marker = "●"
		}
		line := fmt.Sprintf("  %s %-20s", marker, peer)
		if c.LastMessage != nil {
			line += " " + truncate(c.LastMessage.Content, 40)
		}
		fmt.Print(line)
		if n := sess.Unread().Count(c.ID); n > 0 {
			yellow.Printf(" (%d)", n)
		}
		fmt.Println()
	}
}

func (s *screen) error(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, chaterr.ErrNotFound):
		red.Printf("[not found] %v\n", err)
	case errors.Is(err, chaterr.ErrUnauthorized):
		red.Printf("[unauthorized] %v\n", err)
	default:
		red.Printf("[error] %v\n", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
