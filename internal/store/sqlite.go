// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers; AppendMessage and
	// DeleteMessage rely on it for their read-then-write transactions.
	// It also keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			username     TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			avatar_url   TEXT,
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			participant_a   TEXT NOT NULL,
			participant_b   TEXT NOT NULL,
			last_message_id TEXT,
			last_sender_id  TEXT,
			last_content    TEXT,
			last_message_at INTEGER,
			created_at      INTEGER NOT NULL,

			CHECK (participant_a < participant_b)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_a ON conversations(participant_a);
		CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations(participant_b);

		CREATE TABLE IF NOT EXISTS conversation_unread (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			user_id         TEXT NOT NULL,
			count           INTEGER NOT NULL DEFAULT 0,

			PRIMARY KEY (conversation_id, user_id),
			CHECK (count >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_unread_user ON conversation_unread(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id       TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			deleted_at      INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq
			ON messages(conversation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// micros converts a time to the integer representation stored in the database.
func micros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertUser inserts or replaces a user reference.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO users (id, username, display_name, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		nullString(user.AvatarURL),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	s.logger.Debug("upserted user", "id", user.ID, "username", user.Username)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, created_at
		FROM users
		WHERE id = ?
	`

	var user User
	var avatarURL sql.NullString
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&avatarURL,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.AvatarURL = avatarURL.String
	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// CreateConversation inserts a conversation with zeroed unread counters.
// Returns ErrDuplicateConversation if the ID is already taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.ParticipantA, conv.ParticipantB, micros(conv.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for _, userID := range []string{conv.ParticipantA, conv.ParticipantB} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_unread (conversation_id, user_id, count)
			VALUES (?, ?, 0)
		`, conv.ID, userID); err != nil {
			return fmt.Errorf("inserting unread counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID)
	return nil
}

// conversationSelect joins both participants' unread rows onto the conversation.
const conversationSelect = `
	SELECT c.id, c.participant_a, c.participant_b,
	       c.last_message_id, c.last_sender_id, c.last_content, c.last_message_at,
	       c.created_at, COALESCE(ua.count, 0), COALESCE(ub.count, 0)
	FROM conversations c
	LEFT JOIN conversation_unread ua ON ua.conversation_id = c.id AND ua.user_id = c.participant_a
	LEFT JOIN conversation_unread ub ON ub.conversation_id = c.id AND ub.user_id = c.participant_b
`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var lastID, lastSender, lastContent sql.NullString
	var lastAt sql.NullInt64
	var createdAt int64
	var unreadA, unreadB int

	if err := row.Scan(
		&conv.ID,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&lastID,
		&lastSender,
		&lastContent,
		&lastAt,
		&createdAt,
		&unreadA,
		&unreadB,
	); err != nil {
		return nil, err
	}

	conv.CreatedAt = fromMicros(createdAt)
	if lastID.Valid && lastAt.Valid {
		at := fromMicros(lastAt.Int64)
		conv.LastMessageAt = &at
		conv.LastMessage = &LastMessage{
			MessageID: lastID.String,
			SenderID:  lastSender.String,
			Content:   lastContent.String,
			CreatedAt: at,
		}
	}
	conv.UnreadCount = map[string]int{
		conv.ParticipantA: unreadA,
		conv.ParticipantB: unreadB,
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, conversationSelect+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns every conversation the user participates in,
// most recent activity first, ties broken by ID.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	query := conversationSelect + `
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return convs, nil
}

// AppendMessage persists a message and updates the conversation summary and
// the recipient's unread counter in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message, recipientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var newest sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT MAX(created_at) FROM messages WHERE conversation_id = c.id)
		FROM conversations c
		WHERE c.id = ?
	`, msg.ConversationID).Scan(&newest)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying conversation: %w", err)
	}

	createdAt := micros(msg.CreatedAt)
	if newest.Valid && createdAt <= newest.Int64 {
		createdAt = newest.Int64 + 1
	}
	msg.CreatedAt = fromMicros(createdAt)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, createdAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, last_sender_id = ?, last_content = ?, last_message_at = ?
		WHERE id = ?
	`, msg.ID, msg.SenderID, msg.Content, createdAt, msg.ConversationID); err != nil {
		return fmt.Errorf("updating conversation summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count)
		VALUES (?, ?, 1)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET count = count + 1
	`, msg.ConversationID, recipientID); err != nil {
		return fmt.Errorf("incrementing unread counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	msg.Seq = seq
	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"seq", seq)
	return nil
}

const messageColumns = `seq, id, conversation_id, sender_id, content, created_at, deleted_at`

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var createdAt int64
	var deletedAt sql.NullInt64

	if err := row.Scan(
		&msg.Seq,
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&createdAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}

	msg.CreatedAt = fromMicros(createdAt)
	if deletedAt.Valid {
		at := fromMicros(deletedAt.Int64)
		msg.DeletedAt = &at
	}
	return &msg, nil
}

// GetMessage retrieves a message by ID, including soft-deleted ones.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a page of visible messages in ascending order.
// It picks the newest `limit` messages before the cursor, then re-orders them.
func (s *SQLiteStore) ListMessages(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	if p.ConversationID == "" {
		return nil, errors.New("conversation_id required")
	}
	limit := normalizeLimit(p.Limit)

	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL`
	args := []any{p.ConversationID}

	if p.BeforeSeq > 0 {
		query += ` AND seq < ?`
		args = append(args, p.BeforeSeq)
	}

	// Fetch limit+1 to detect if there are more results
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Newest-first from the query; callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &HistoryResult{Messages: messages, HasMore: hasMore}, nil
}

// DeleteMessage soft-deletes a message and repairs the conversation summary
// when the deleted message was the latest one.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var conversationID string
	var deletedAt sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT conversation_id, deleted_at FROM messages WHERE id = ?`, id).
		Scan(&conversationID, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("querying message: %w", err)
	}
	if deletedAt.Valid {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET deleted_at = ? WHERE id = ?`, micros(at), id); err != nil {
		return false, fmt.Errorf("deleting message: %w", err)
	}

	var lastID sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT last_message_id FROM conversations WHERE id = ?`, conversationID).
		Scan(&lastID); err != nil {
		return false, fmt.Errorf("querying conversation summary: %w", err)
	}

	if lastID.Valid && lastID.String == id {
		if err := s.recomputeSummary(ctx, tx, conversationID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted message", "id", id, "conversation_id", conversationID)
	return true, nil
}

// recomputeSummary points the conversation summary at its newest visible message.
func (s *SQLiteStore) recomputeSummary(ctx context.Context, tx *sql.Tx, conversationID string) error {
	newest, err := scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL
		ORDER BY seq DESC
		LIMIT 1
	`, conversationID))

	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_message_id = NULL, last_sender_id = NULL, last_content = NULL, last_message_at = NULL
			WHERE id = ?
		`, conversationID)
		if err != nil {
			return fmt.Errorf("clearing conversation summary: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying newest message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, last_sender_id = ?, last_content = ?, last_message_at = ?
		WHERE id = ?
	`, newest.ID, newest.SenderID, newest.Content, micros(newest.CreatedAt), conversationID); err != nil {
		return fmt.Errorf("updating conversation summary: %w", err)
	}
	return nil
}

// ResetUnread zeroes a participant's unread counter and returns the previous value.
func (s *SQLiteStore) ResetUnread(ctx context.Context, conversationID, userID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var previous int
	err = tx.QueryRowContext(ctx, `
		SELECT count FROM conversation_unread WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		previous = 0
	} else if err != nil {
		return 0, fmt.Errorf("querying unread counter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count)
		VALUES (?, ?, 0)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET count = 0
	`, conversationID, userID); err != nil {
		return 0, fmt.Errorf("resetting unread counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing unread reset: %w", err)
	}
	return previous, nil
}

// UnreadCounts returns the non-zero unread counters for a user keyed by conversation ID.
func (s *SQLiteStore) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, count
		FROM conversation_unread
		WHERE user_id = ? AND count > 0
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying unread counters: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var conversationID string
		var count int
		if err := rows.Scan(&conversationID, &count); err != nil {
			return nil, fmt.Errorf("scanning unread row: %w", err)
		}
		counts[conversationID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unread rows: %w", err)
	}
	return counts, nil
}
