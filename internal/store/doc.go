// Package store provides persistent storage for conversations and messages.
//
// # Architecture
//
// Store is the single persistence interface used by the directory and the
// messaging service. Three implementations exist:
//
//   - SQLiteStore: default backend on modernc.org/sqlite (pure Go, no cgo)
//   - MongoStore: alternative backend on the official MongoDB driver
//   - MockStore: in-memory implementation for unit tests
//
// # Data Models
//
//   - User: read-only reference to a platform user
//   - Conversation: exactly two participants under a deterministic ID, with a
//     last-message summary and one unread counter per participant
//   - Message: immutable content with a per-conversation sequence number and
//     an optional soft-delete marker
//
// # Ordering
//
// Messages carry a Seq that only increases within a conversation. History
// pages are selected by Seq and returned oldest first; AppendMessage also
// bumps CreatedAt so timestamps strictly increase within a conversation.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode and a single pooled connection:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Production: /var/lib/reelchat/reelchat.db
//   - Development: ~/.local/share/reelchat/reelchat.db
//   - Testing: t.TempDir() or :memory:
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: a conversation with that ID already exists
//
// All methods accept context.Context for cancellation support.
package store
