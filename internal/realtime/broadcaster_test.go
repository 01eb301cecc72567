// ABOUTME: Tests for conversation room fan-out
// ABOUTME: Covers idempotent join/leave, exclusion and dropping on full queues

package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/2389/reelchat/internal/wire"
)

func testConn(id, userID string, buffer int) *Connection {
	return newConnection(id, userID, buffer, rate.NewLimiter(rate.Inf, 1))
}

func testFrame(t *testing.T, typ wire.EventType) wire.Frame {
	t.Helper()
	f, err := wire.NewFrame(typ, wire.ConversationRef{ConversationID: "alice_bob"})
	require.NoError(t, err)
	return f
}

func TestBroadcaster_JoinIsIdempotent(t *testing.T) {
	b := NewBroadcaster(nil)
	c := testConn("c1", "alice", 4)

	assert.True(t, b.Join("alice_bob", c))
	assert.False(t, b.Join("alice_bob", c))
	assert.Equal(t, 1, b.Members("alice_bob"))

	sent := b.Publish("alice_bob", testFrame(t, wire.EventMessageReceived), "")
	assert.Equal(t, 1, sent, "a double join must not double deliver")
	assert.Len(t, c.Outbound(), 1)
}

func TestBroadcaster_LeaveIsIdempotent(t *testing.T) {
	b := NewBroadcaster(nil)
	c := testConn("c1", "alice", 4)

	b.Join("alice_bob", c)
	b.Leave("alice_bob", c.ID)
	b.Leave("alice_bob", c.ID)
	b.Leave("nobody_room", c.ID)

	assert.Equal(t, 0, b.Members("alice_bob"))
	assert.Equal(t, 0, b.Publish("alice_bob", testFrame(t, wire.EventMessageReceived), ""))
}

func TestBroadcaster_PublishExcludesUser(t *testing.T) {
	b := NewBroadcaster(nil)
	alice1 := testConn("a1", "alice", 4)
	alice2 := testConn("a2", "alice", 4)
	bob := testConn("b1", "bob", 4)
	for _, c := range []*Connection{alice1, alice2, bob} {
		b.Join("alice_bob", c)
	}

	sent := b.Publish("alice_bob", testFrame(t, wire.EventUserTyping), "alice")

	assert.Equal(t, 1, sent)
	assert.Len(t, alice1.Outbound(), 0)
	assert.Len(t, alice2.Outbound(), 0)
	assert.Len(t, bob.Outbound(), 1)
}

func TestBroadcaster_FullQueueDropsWithoutBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	slow := testConn("slow", "alice", 1)
	fast := testConn("fast", "bob", 8)
	b.Join("alice_bob", slow)
	b.Join("alice_bob", fast)

	for i := 0; i < 3; i++ {
		b.Publish("alice_bob", testFrame(t, wire.EventMessageReceived), "")
	}

	assert.Len(t, slow.Outbound(), 1, "slow connection keeps only what fit")
	assert.Len(t, fast.Outbound(), 3)
}

func TestBroadcaster_LeaveAll(t *testing.T) {
	b := NewBroadcaster(nil)
	c := testConn("c1", "alice", 4)
	b.Join("alice_bob", c)
	b.Join("alice_carol", c)

	b.LeaveAll(c.ID)

	assert.Equal(t, 0, b.Members("alice_bob"))
	assert.Equal(t, 0, b.Members("alice_carol"))
}

func TestBroadcaster_ClosedConnectionSkipped(t *testing.T) {
	b := NewBroadcaster(nil)
	c := testConn("c1", "alice", 4)
	b.Join("alice_bob", c)
	c.close()

	assert.Equal(t, 0, b.Publish("alice_bob", testFrame(t, wire.EventMessageReceived), ""))
}
