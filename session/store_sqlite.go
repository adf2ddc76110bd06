package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store with SQLite persistence. It uses an embedded
// EphemeralStore as a cache to reduce database reads during active
// conversations.
type SQLiteStore struct {
	db        *sql.DB
	ephemeral *EphemeralStore
	mu        sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed store.
// The path parameter can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
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

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_session_id_id
			ON exchanges(session_id, id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	eph := NewEphemeralStore()
	return &SQLiteStore{
		db:        db,
		ephemeral: &eph,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Exchanges returns all exchanges for a given session.
// It uses the ephemeral cache if the session has already been loaded.
func (s *SQLiteStore) Exchanges(sessionID string) []Exchange {
	s.mu.RLock()
	exchanges := s.ephemeral.Exchanges(sessionID)
	if len(exchanges) > 0 {
		defer s.mu.RUnlock()
		return exchanges
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	exchanges = s.ephemeral.Exchanges(sessionID)
	if len(exchanges) > 0 {
		return exchanges
	}

	exchanges, err := s.loadExchanges(sessionID)
	if err != nil {
		// Log error but return empty slice to maintain interface contract
		fmt.Fprintf(os.Stderr, "failed to load exchanges for session %s: %v\n", sessionID, err)
		return []Exchange{}
	}

	s.ephemeral.extendAll(sessionID, exchanges)
	return exchanges
}

// Extend appends one exchange for a session, writing through to both the
// ephemeral cache and SQLite.
func (s *SQLiteStore) Extend(sessionID string, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Make sure the cache is hydrated before appending, otherwise a later
	// read would find a nonempty cache that is missing older rows.
	if len(s.ephemeral.Exchanges(sessionID)) == 0 {
		existing, err := s.loadExchanges(sessionID)
		if err != nil {
			return fmt.Errorf("failed to load exchanges: %w", err)
		}
		s.ephemeral.extendAll(sessionID, existing)
	}

	// Persist to SQLite first to ensure DB is the source of truth
	_, err := s.db.Exec(
		"INSERT INTO exchanges (session_id, query, answer) VALUES (?, ?, ?)",
		sessionID, ex.Query, ex.Answer,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	return s.ephemeral.Extend(sessionID, ex)
}

func (s *SQLiteStore) loadExchanges(sessionID string) ([]Exchange, error) {
	rows, err := s.db.Query(
		"SELECT query, answer FROM exchanges WHERE session_id = ? ORDER BY id ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.Query, &ex.Answer); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchanges: %w", err)
	}

	return exchanges, nil
}
