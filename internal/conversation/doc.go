// Package conversation resolves the identity of two-party conversations.
//
// # Identity
//
// A conversation ID is the two participant IDs sorted ascending and joined by
// Delimiter ("_"). The ID is a pure function of the unordered pair, so any
// client can compute it locally and match IDs embedded in push events without
// a round trip:
//
//	id, _ := conversation.CanonicalID("bob", "alice") // "alice_bob"
//	a, b, _ := conversation.ParseID(id)                 // "alice", "bob"
//
// User IDs must be non-empty and must not contain the delimiter.
//
// # Directory
//
// Directory is the server-side entry point:
//
//   - GetOrCreate(ctx, self, other): lazily creates the conversation
//   - Get(ctx, id): participant-only read
//   - List(ctx, user): most recent activity first, ties by ID
//
// Every call requires an authenticated caller on ctx (see package auth).
package conversation
