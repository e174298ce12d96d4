package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists records to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a journal database.
// The path is a file path or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent and
	// serializes sequence assignment.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS journal (
			execution_id   TEXT NOT NULL,
			sequence       INTEGER NOT NULL,
			event_id       TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			chain          TEXT NOT NULL,
			outcome        TEXT NOT NULL,
			error          TEXT NOT NULL,
			duration_ns    INTEGER NOT NULL,
			timestamp      TEXT NOT NULL,
			PRIMARY KEY (execution_id, sequence)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize journal: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO journal (execution_id, sequence, event_id, correlation_id,
			chain, outcome, error, duration_ns, timestamp)
		VALUES (
			?,
			COALESCE((SELECT MAX(sequence) FROM journal WHERE execution_id = ?), 0) + 1,
			?, ?, ?, ?, ?, ?, ?
		)
	`, r.ExecutionID, r.ExecutionID, r.EventID, r.CorrelationID, r.Chain,
		r.Outcome, r.Error, int64(r.Duration), r.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(executionID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT sequence, event_id, correlation_id, chain, outcome, error,
			duration_ns, timestamp
		FROM journal
		WHERE execution_id = ?
		ORDER BY sequence
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list journal records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r := Record{ExecutionID: executionID}
		var durationNs int64
		var timestamp string
		if err := rows.Scan(&r.Sequence, &r.EventID, &r.CorrelationID, &r.Chain,
			&r.Outcome, &r.Error, &durationNs, &timestamp); err != nil {
			return nil, fmt.Errorf("scan journal record: %w", err)
		}
		r.Duration = time.Duration(durationNs)
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal records: %w", err)
	}
	return records, nil
}

// DeleteExecution implements Store.
func (s *SQLiteStore) DeleteExecution(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(`DELETE FROM journal WHERE execution_id = ?`, executionID); err != nil {
		return fmt.Errorf("delete journal records: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
