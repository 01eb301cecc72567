// ABOUTME: Bounded insertion-ordered set of message IDs already shown to the user
// ABOUTME: Evicts the oldest ID when full so long-lived views stay bounded

package dedupe

import (
	"container/list"
	"sync"
)

// DefaultCapacity bounds an IDSet created with a non-positive size.
const DefaultCapacity = 2048

// IDSet remembers message IDs so a message that arrives twice (once from
// history and once from the push channel, or from a resent frame) is only
// shown once. It is safe for concurrent use.
type IDSet struct {
	mu    sync.Mutex
	ids   map[string]*list.Element
	order *list.List // oldest at front
	max   int
}

// NewIDSet creates a set holding at most max IDs.
func NewIDSet(max int) *IDSet {
	if max <= 0 {
		max = DefaultCapacity
	}
	return &IDSet{
		ids:   make(map[string]*list.Element),
		order: list.New(),
		max:   max,
	}
}

// Add records id and reports whether it was new. Adding a known ID returns
// false and leaves its position unchanged.
func (s *IDSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.ids) >= s.max {
		s.evictOldest()
	}
	s.ids[id] = s.order.PushBack(id)
	return true
}

// Has reports whether id is in the set.
func (s *IDSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Remove forgets id. It reports whether id was present.
func (s *IDSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.ids[id]
	if !ok {
		return false
	}
	s.order.Remove(elem)
	delete(s.ids, id)
	return true
}

// Len returns the number of IDs held.
func (s *IDSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Reset empties the set.
func (s *IDSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]*list.Element)
	s.order.Init()
}

// evictOldest must be called with mu held.
func (s *IDSet) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.ids, id)
}
