// Package client talks to a reelchat gateway from the user's side.
//
// APIClient wraps the HTTP API used for persistence: listing and opening
// conversations, paging history, sending, deleting and marking read. Error
// responses are mapped back onto the chaterr taxonomy so callers can use
// errors.Is the same way server code does.
//
// PushClient holds the WebSocket push channel. Run keeps it connected with
// exponential backoff, rejoins remembered rooms after each reconnect and
// delivers incoming frames on Events. It also satisfies typing.Emitter.
package client
