package agg

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/victhorio/arkchat/agg/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the UsageStore interface with SQLite persistence.
// It uses an embedded EphemeralStore as a cache so that repeated reads during an active
// conversation don't hit the database.
type SQLiteStore struct {
	db        *sql.DB
	ephemeral *EphemeralStore
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewSQLiteStore creates a new SQLite-backed store.
// The path parameter can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = discardLogger()
	}

	// Create parent directories if needed for file-based databases
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every :memory: connection is its own database, so stick to one
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		ephemeral: NewEphemeralStore(),
		logger:    logger,
	}, nil
}

// initSchema creates the necessary tables if they don't exist.
func initSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS usage (
			session_id TEXT PRIMARY KEY,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			requests INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Usage returns the accumulated usage for a given session.
// It uses the ephemeral cache if the session has already been loaded.
func (s *SQLiteStore) Usage(sessionID string) core.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ephemeral.loaded(sessionID) {
		return s.ephemeral.Usage(sessionID)
	}

	usage, err := s.loadUsage(sessionID)
	if err != nil {
		// a read failure must not poison the cache with zeroed counters
		s.logger.Error("failed to load usage", "session", sessionID, "err", err)
		return core.Usage{}
	}

	s.ephemeral.set(sessionID, usage)
	return usage
}

// Record accumulates usage for a session.
// It writes through to both SQLite and the ephemeral cache.
func (s *SQLiteStore) Record(sessionID string, usage core.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Persist to SQLite first to ensure DB is the source of truth
	_, err := s.db.Exec(`
		INSERT INTO usage (session_id, prompt_tokens, completion_tokens, total_tokens, requests)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET
			prompt_tokens = usage.prompt_tokens + excluded.prompt_tokens,
			completion_tokens = usage.completion_tokens + excluded.completion_tokens,
			total_tokens = usage.total_tokens + excluded.total_tokens,
			requests = usage.requests + 1,
			updated_at = CURRENT_TIMESTAMP
	`, sessionID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}

	// only touch the cache once it mirrors the database, otherwise the next read reloads it
	if s.ephemeral.loaded(sessionID) {
		_ = s.ephemeral.Record(sessionID, usage)
	}

	return nil
}

// Requests returns how many calls have been recorded for the session.
func (s *SQLiteStore) Requests(sessionID string) (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT requests FROM usage WHERE session_id = ?", sessionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query requests: %w", err)
	}
	return n, nil
}

// Totals sums the usage of every session ever recorded.
func (s *SQLiteStore) Totals() (core.Usage, error) {
	var usage core.Usage
	err := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM usage
	`).Scan(&usage.PromptTokens, &usage.CompletionTokens, &usage.TotalTokens)
	if err != nil {
		return core.Usage{}, fmt.Errorf("failed to query totals: %w", err)
	}
	return usage, nil
}

// loadUsage loads usage data for a session from the database.
func (s *SQLiteStore) loadUsage(sessionID string) (core.Usage, error) {
	var usage core.Usage
	err := s.db.QueryRow(`
		SELECT prompt_tokens, completion_tokens, total_tokens
		FROM usage
		WHERE session_id = ?
	`, sessionID).Scan(&usage.PromptTokens, &usage.CompletionTokens, &usage.TotalTokens)

	if errors.Is(err, sql.ErrNoRows) {
		// No usage data found, return zero-valued Usage
		return core.Usage{}, nil
	}

	if err != nil {
		return core.Usage{}, fmt.Errorf("failed to query usage: %w", err)
	}

	return usage, nil
}
