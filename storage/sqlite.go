// SQLite conversation storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements ConversationStorage using a SQLite database file.
// Writes are durable across process restarts.
//
// sql.DB makes individual statements safe for concurrent use, but appending
// turns to the same conversation from multiple goroutines gives no ordering
// guarantee; serialize per conversation ID if order matters.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storageErr("create database directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr("open database", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, storageErr("open in-memory database", err)
	}
	// A :memory: database exists per connection; pin the pool to one.
	db.SetMaxOpenConns(1)

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE,
			UNIQUE(conversation_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_conversation
		ON turns(conversation_id, seq);

		CREATE TABLE IF NOT EXISTS metadata (
			conversation_id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return storageErr("create schema", err)
	}
	return nil
}

func (s *SqliteStore) ensureConversation(ctx context.Context, tx *sql.Tx, conversationID string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversations (conversation_id) VALUES (?)",
		conversationID,
	)
	if err != nil {
		return storageErr("ensure conversation", err)
	}
	return nil
}

// AppendTurn durably appends one turn to the conversation's transcript.
// The conversation record is created on first append.
func (s *SqliteStore) AppendTurn(ctx context.Context, conversationID string, turn Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	// Rollback is a no-op after Commit.
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureConversation(ctx, tx, conversationID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, seq, role, content, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM turns WHERE conversation_id = ?), ?, ?, ?)`,
		conversationID, conversationID, turn.Role.String(), turn.Content, createdAt.Unix(),
	)
	if err != nil {
		return storageErr("append turn", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = datetime('now') WHERE conversation_id = ?",
		conversationID)
	if err != nil {
		return storageErr("update conversation timestamp", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}

	return nil
}

// History returns the conversation's turns in append order, restricted by
// the window. Returns an empty slice if the conversation doesn't exist.
func (s *SqliteStore) History(ctx context.Context, conversationID string, w Window) ([]Turn, error) {
	// Select newest-first so LIMIT keeps the most recent turns, then
	// reverse back into append order.
	query := "SELECT role, content, created_at FROM turns WHERE conversation_id = ?"
	args := []any{conversationID}

	if w.TimeLimit > 0 {
		query += " AND created_at >= ?"
		args = append(args, time.Now().Add(-w.TimeLimit).Unix())
	}

	query += " ORDER BY seq DESC"

	if w.MessageLimit > 0 {
		query += " LIMIT ?"
		args = append(args, w.MessageLimit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query turns", err)
	}
	defer rows.Close()

	turns := []Turn{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			roleStr   string
			content   string
			createdAt int64
		)
		if err := rows.Scan(&roleStr, &content, &createdAt); err != nil {
			return nil, storageErr("scan turn", err)
		}
		role, err := ParseRole(roleStr)
		if err != nil {
			// An unknown role in the database indicates corruption or a
			// schema mismatch; surface it instead of guessing.
			return nil, storageErr("scan turn", fmt.Errorf("invalid role %q in database", roleStr))
		}
		turns = append(turns, Turn{Role: role, Content: content, CreatedAt: time.Unix(createdAt, 0)})
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate turns", err)
	}

	reverse(turns)
	return turns, nil
}

// GetMetadata returns the conversation's metadata document, or nil if none
// was ever set.
func (s *SqliteStore) GetMetadata(ctx context.Context, conversationID string) (Metadata, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT document FROM metadata WHERE conversation_id = ?",
		conversationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load metadata", err)
	}

	var doc Metadata
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, storageErr("decode metadata", err)
	}
	return doc, nil
}

// SetMetadata replaces the conversation's metadata slot with doc.
func (s *SqliteStore) SetMetadata(ctx context.Context, conversationID string, doc Metadata) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return storageErr("encode metadata", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureConversation(ctx, tx, conversationID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (conversation_id, document)
		VALUES (?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET document = excluded.document`,
		conversationID, string(raw),
	)
	if err != nil {
		return storageErr("store metadata", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}

	return nil
}

// Delete removes the conversation's transcript and metadata.
func (s *SqliteStore) Delete(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Delete child rows explicitly; foreign key enforcement is off by
	// default in go-sqlite3.
	for _, stmt := range []string{
		"DELETE FROM turns WHERE conversation_id = ?",
		"DELETE FROM metadata WHERE conversation_id = ?",
		"DELETE FROM conversations WHERE conversation_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, conversationID); err != nil {
			return storageErr("delete conversation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}

	return nil
}

// List returns all known conversation IDs, most recently updated first.
func (s *SqliteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT conversation_id FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, storageErr("query conversations", err)
	}
	defer rows.Close()

	ids := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan conversation", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate conversations", err)
	}

	return ids, nil
}

// Exists checks whether a conversation has been created.
func (s *SqliteStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE conversation_id = ?",
		conversationID).Scan(&count)
	if err != nil {
		return false, storageErr("check conversation existence", err)
	}

	return count > 0, nil
}

func reverse(turns []Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}

// Verify SqliteStore implements ConversationStorage
var _ ConversationStorage = (*SqliteStore)(nil)
