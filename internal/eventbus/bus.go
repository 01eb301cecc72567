// ABOUTME: In-process named-topic pub/sub shared by client instances of one user
// ABOUTME: Subscribers get buffered channels; slow subscribers miss events instead of blocking publishers

package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Topic names an event stream.
type Topic string

// TopicMessageRead announces that a conversation was read by a user.
const TopicMessageRead Topic = "MESSAGE_READ"

// Event is one published notification. Source identifies the publishing
// instance so it can skip its own events.
type Event struct {
	Topic          Topic
	Source         string
	UserID         string
	ConversationID string
}

// Bus provides in-memory pub/sub keyed by topic.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic]map[string]chan Event // topic -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[Topic]map[string]chan Event),
		logger:      logger.With("component", "eventbus"),
	}
}

// Subscribe registers for events on topic. The returned channel is closed
// when ctx is cancelled, on Unsubscribe, or when the bus closes.
func (b *Bus) Subscribe(ctx context.Context, topic Topic) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan Event)
	}
	b.subscribers[topic][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Publish delivers e to every subscriber of e.Topic and returns how many
// received it. Never blocks.
func (b *Bus) Publish(e Event) int {
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()

	sent := 0
	for subID, ch := range b.subscribers[e.Topic] {
		select {
		case ch <- e:
			sent++
		default:
			b.logger.Warn("dropped event for slow subscriber",
				"topic", e.Topic,
				"sub_id", subID)
		}
	}
	return sent
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(topic Topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}
}
