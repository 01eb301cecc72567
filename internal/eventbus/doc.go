// Package eventbus is a small in-process pub/sub keyed by named topics.
//
// It lets several client sessions of the same user running in one process
// coordinate without a server round trip, for example zeroing an unread
// count on every open session when one of them reads a conversation.
// Delivery is best effort: a subscriber whose buffer is full misses events.
package eventbus
