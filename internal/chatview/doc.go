// Package chatview keeps the message list of one open conversation.
//
// A Controller starts in Loading, moves to Ready once history arrives and to
// Failed if it cannot be loaded (Retry tries again). While Ready it merges
// pushed messages, sends with an optimistic echo and pages older history.
//
// Duplicates are filtered by message ID. The sender's own pushed copy may
// arrive before the send call returns; it is paired with the oldest echo
// that has the same content inside a short time window, and each echo is
// consumed once, so two identical messages sent back to back stay two.
package chatview
