// Package messaging implements the server side of message persistence.
//
// Service sits between the HTTP API and the store. Every write is persisted
// first and published second, so a live subscriber never sees a message that
// fetching history would not return:
//
//   - Send: trims and validates content, appends the message, updates the
//     conversation summary and the recipient's unread counter in one store
//     call, then publishes newMessage/messageReceived
//   - FetchHistory: pages backwards with opaque cursors, oldest first
//   - Delete: sender-only soft delete, idempotent
//   - MarkRead: zeroes the caller's counter and tells the caller's other
//     connections
//
// Errors are from package chaterr.
package messaging
