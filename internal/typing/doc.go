// Package typing coordinates typing indicators for one client session.
//
// Local side: OnKeystroke emits a start the first time and keeps pushing an
// idle countdown forward; when the user pauses for the idle period a stop is
// emitted, so the indicator clears itself without an explicit call.
//
// Remote side: OnRemoteTyping keeps a flag per user that expires after a
// TTL, so a lost stop event cannot leave a peer typing forever.
package typing
