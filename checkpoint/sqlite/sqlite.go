// Package sqlite provides a checkpoint.Store on SQLite (modernc.org/sqlite,
// pure Go). Each conversation keeps its latest state as JSON; every Save also
// appends a row to an audit table of turns.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/agentswarm/checkpoint"
	"github.com/hupe1980/agentswarm/core"
	_ "modernc.org/sqlite"
)

// Turn is one row of the audit table.
type Turn struct {
	ID           int64
	Conversation string
	ActiveAgent  string
	ErrorCount   int
	MessageCount int
	CreatedAt    time.Time
}

// Store is a SQLite backed checkpoint store.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at path. The parent directory is
// created when missing. Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id           TEXT PRIMARY KEY,
			state        TEXT NOT NULL,
			active_agent TEXT,
			error_count  INTEGER NOT NULL DEFAULT 0,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			active_agent    TEXT,
			error_count     INTEGER NOT NULL DEFAULT 0,
			message_count   INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Load implements checkpoint.Store.
func (s *Store) Load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM conversations WHERE id = ?`, conversationID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", conversationID, err)
	}

	return checkpoint.Decode([]byte(data))
}

// Save implements checkpoint.Store. The state upsert and the audit row are
// written in one transaction.
func (s *Store) Save(ctx context.Context, conversationID string, state *core.ConversationState) error {
	data, err := checkpoint.Encode(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixMilli()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, state, active_agent, error_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			active_agent = excluded.active_agent,
			error_count = excluded.error_count,
			updated_at = excluded.updated_at`,
		conversationID, string(data), state.ActiveAgent, state.ErrorCount, now)
	if err != nil {
		return fmt.Errorf("save %s: %w", conversationID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, active_agent, error_count, message_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, state.ActiveAgent, state.ErrorCount, len(state.Messages), now)
	if err != nil {
		return fmt.Errorf("record turn %s: %w", conversationID, err)
	}

	return tx.Commit()
}

// List implements checkpoint.Lister, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Delete implements checkpoint.Deleter.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete turns %s: %w", conversationID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete %s: %w", conversationID, err)
	}

	return tx.Commit()
}

// Turns returns the audit trail of a conversation in save order.
func (s *Store) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, COALESCE(active_agent, ''), error_count, message_count, created_at
		FROM turns WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t       Turn
			created int64
		)
		if err := rows.Scan(&t.ID, &t.Conversation, &t.ActiveAgent, &t.ErrorCount, &t.MessageCount, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(created).UTC()
		turns = append(turns, t)
	}

	return turns, rows.Err()
}
