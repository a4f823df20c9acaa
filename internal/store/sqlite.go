// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Stores each conversation as a whole JSON document with indexed timestamps

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
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

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
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

// createSchema creates the database tables if they don't exist.
// The conversation aggregate lives in the document column; opened_at and
// closed_at are duplicated as columns only so recovery and listing queries
// can run without unmarshaling every document.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id        TEXT PRIMARY KEY,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME,
			document  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_opened
			ON conversations(opened_at DESC);

		CREATE INDEX IF NOT EXISTS idx_conversations_open
			ON conversations(opened_at DESC) WHERE closed_at IS NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveConversation inserts or replaces the whole conversation document.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	doc, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshaling conversation: %w", err)
	}

	var closedAt *string
	if conv.ClosedAt != nil {
		ts := conv.ClosedAt.UTC().Format(time.RFC3339Nano)
		closedAt = &ts
	}

	query := `
		INSERT INTO conversations (id, opened_at, closed_at, document)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			closed_at = excluded.closed_at,
			document  = excluded.document
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.OpenedAt.UTC().Format(time.RFC3339Nano),
		closedAt,
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}

	s.logger.Debug("conversation saved",
		"conversation_id", conv.ID,
		"interactions", len(conv.Interactions),
		"closed", conv.ClosedAt != nil,
	)
	return nil
}

// GetConversation loads one conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT document FROM conversations WHERE id = ?`

	var doc string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	return unmarshalConversation(doc)
}

// LatestOpenConversation returns the most recently opened conversation that
// has no close timestamp. Returns ErrNotFound when every stored conversation
// is closed (or none exist).
func (s *SQLiteStore) LatestOpenConversation(ctx context.Context) (*Conversation, error) {
	query := `
		SELECT document FROM conversations
		WHERE closed_at IS NULL
		ORDER BY opened_at DESC
		LIMIT 1
	`

	var doc string
	err := s.db.QueryRowContext(ctx, query).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest open conversation: %w", err)
	}

	return unmarshalConversation(doc)
}

// ListConversations returns recent conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]*ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, opened_at, closed_at, json_array_length(document, '$.interactions')
		FROM conversations
		ORDER BY opened_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var (
			sum       ConversationSummary
			openedAt  string
			closedAt  sql.NullString
			nInteract sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &openedAt, &closedAt, &nInteract); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		sum.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing opened_at: %w", err)
		}
		if closedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, closedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing closed_at: %w", err)
			}
			sum.ClosedAt = &t
		}
		sum.Interactions = int(nInteract.Int64)
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return summaries, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func unmarshalConversation(doc string) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal([]byte(doc), &conv); err != nil {
		return nil, fmt.Errorf("unmarshaling conversation: %w", err)
	}
	return &conv, nil
}
