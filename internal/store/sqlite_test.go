// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Runs the shared Store suite plus file creation and persistence checks

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLiteStore_Suite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newTestStore(t) })
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	conv := &Conversation{ID: "alice_bob", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: time.Now()}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	msg := &Message{ID: "m1", ConversationID: conv.ID, SenderID: "alice", Content: "persisted", CreatedAt: time.Now()}
	if err := store.AppendMessage(ctx, msg, "bob"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.LastMessage == nil || got.LastMessage.Content != "persisted" {
		t.Errorf("expected summary to survive reopen, got %+v", got.LastMessage)
	}
	if got.UnreadCount["bob"] != 1 {
		t.Errorf("expected bob unread 1, got %d", got.UnreadCount["bob"])
	}

	// Sequence numbers keep increasing after reopen
	next := &Message{ID: "m2", ConversationID: conv.ID, SenderID: "bob", Content: "again", CreatedAt: time.Now()}
	if err := reopened.AppendMessage(ctx, next, "alice"); err != nil {
		t.Fatalf("AppendMessage after reopen failed: %v", err)
	}
	if next.Seq <= msg.Seq {
		t.Errorf("expected seq > %d, got %d", msg.Seq, next.Seq)
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

// newTestStore creates a SQLiteStore backed by a temp file for testing.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
