// ABOUTME: Presence set derived from live connections, counted per user
// ABOUTME: A user is online while at least one of their connections is open

package realtime

import (
	"sort"
	"sync"
)

// Presence tracks live connections per user. The Hub is its only writer.
type Presence struct {
	mu    sync.RWMutex
	users map[string]map[string]*Connection // userID -> connID -> conn
}

// NewPresence creates an empty presence set.
func NewPresence() *Presence {
	return &Presence{users: make(map[string]map[string]*Connection)}
}

// connect adds a connection and reports whether it is the user's first.
func (p *Presence) connect(c *Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[c.UserID]
	if !ok {
		conns = make(map[string]*Connection)
		p.users[c.UserID] = conns
	}
	conns[c.ID] = c
	return len(conns) == 1
}

// disconnect removes a connection and reports whether it was the user's last.
// Removing an unknown connection reports false.
func (p *Presence) disconnect(c *Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[c.UserID]
	if !ok {
		return false
	}
	if _, exists := conns[c.ID]; !exists {
		return false
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(p.users, c.UserID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID]) > 0
}

// ConnectionCount returns the number of live connections for a user.
func (p *Presence) ConnectionCount(userID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID])
}

// Online returns the online user IDs in ascending order.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.users))
	for id := range p.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// connections returns the live connections of the given users.
func (p *Presence) connections(userIDs ...string) []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Connection
	for _, id := range userIDs {
		for _, c := range p.users[id] {
			out = append(out, c)
		}
	}
	return out
}

// all returns every live connection except those of excludeUserID.
func (p *Presence) all(excludeUserID string) []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Connection
	for id, conns := range p.users {
		if id == excludeUserID {
			continue
		}
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// Stats summarises the presence set.
type Stats struct {
	OnlineUsers int
	Connections int
}

// Stats returns counts of online users and live connections.
func (p *Presence) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Stats{OnlineUsers: len(p.users)}
	for _, conns := range p.users {
		s.Connections += len(conns)
	}
	return s
}
