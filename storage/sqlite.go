package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStorage implements Store using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SqliteStorage)(nil)

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newStorage(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newStorage(db)
}

func newStorage(db *sql.DB) (*SqliteStorage, error) {
	s := &SqliteStorage{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			color_code TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS clones (
			id TEXT PRIMARY KEY,
			creator_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			short_description TEXT NOT NULL DEFAULT '',
			long_description TEXT NOT NULL DEFAULT '',
			greeting TEXT NOT NULL DEFAULT '',
			avatar_uri TEXT NOT NULL DEFAULT '',
			is_public INTEGER NOT NULL DEFAULT 1,
			num_messages INTEGER NOT NULL DEFAULT 0,
			num_conversations INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS clone_tags (
			clone_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			PRIMARY KEY (clone_id, tag_id),
			FOREIGN KEY (clone_id) REFERENCES clones(id) ON DELETE CASCADE,
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			clone_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			memory_strategy TEXT NOT NULL DEFAULT 'zero',
			information_strategy TEXT NOT NULL DEFAULT 'internal',
			is_active INTEGER NOT NULL DEFAULT 1,
			num_messages_ever INTEGER NOT NULL DEFAULT 0,
			last_message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (clone_id) REFERENCES clones(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
		ON conversations(user_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			clone_id TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			is_clone INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_main INTEGER NOT NULL DEFAULT 1,
			parent_id TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, seq DESC);

		CREATE TABLE IF NOT EXISTS usage (
			user_id TEXT PRIMARY KEY,
			messages_sent INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// EnsureUser records a user. A non-empty name replaces the stored one.
func (s *SqliteStorage) EnsureUser(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name WHERE excluded.name != ''`,
		id, name, unixNano(s.now()))
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// IncrementUsage counts one sent message for userID and returns the new
// total.
func (s *SqliteStorage) IncrementUsage(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage (user_id, messages_sent) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET messages_sent = messages_sent + 1
		RETURNING messages_sent`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return n, nil
}

// Usage returns how many messages userID has sent.
func (s *SqliteStorage) Usage(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT messages_sent FROM usage WHERE user_id = ?", userID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
