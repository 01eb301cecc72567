// ABOUTME: FIFO of optimistic local echoes waiting for their server copy
// ABOUTME: A server message consumes the oldest pending echo with the same content inside the tolerance

package dedupe

import (
	"sync"
	"time"
)

// DefaultTolerance is how far apart an echo and its server copy may be.
const DefaultTolerance = 5 * time.Second

// Echo is a locally shown message that has not been confirmed yet.
type Echo struct {
	TempID  string
	Content string
	At      time.Time
}

// Pending matches server messages back to the echoes they confirm. Each echo
// is consumed at most once, oldest first, so two identical messages sent in
// quick succession are never collapsed into one.
type Pending struct {
	mu        sync.Mutex
	echoes    []Echo
	tolerance time.Duration
}

// NewPending creates an empty queue. A non-positive tolerance uses DefaultTolerance.
func NewPending(tolerance time.Duration) *Pending {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Pending{tolerance: tolerance}
}

// Push records an echo.
func (p *Pending) Push(e Echo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.echoes = append(p.echoes, e)
}

// Match consumes the oldest echo whose content equals content and whose
// timestamp is within the tolerance of at. It returns the consumed echo.
func (p *Pending) Match(content string, at time.Time) (Echo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.echoes {
		if e.Content != content {
			continue
		}
		if d := at.Sub(e.At); d > p.tolerance || d < -p.tolerance {
			continue
		}
		p.echoes = append(p.echoes[:i], p.echoes[i+1:]...)
		return e, true
	}
	return Echo{}, false
}

// Remove drops the echo with tempID, for example after its send failed.
func (p *Pending) Remove(tempID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.echoes {
		if e.TempID == tempID {
			p.echoes = append(p.echoes[:i], p.echoes[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of unconfirmed echoes.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.echoes)
}
