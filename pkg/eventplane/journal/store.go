// Package journal records the outcome of policy chain executions.
//
// Each time a journaled chain returns, one Record is appended for its
// execution. Records are listed back per execution in append order, which
// makes the journal a small audit trail for retries and rejections.
//
// Two stores are provided: MemoryStore for tests and short-lived processes,
// and SQLiteStore for a durable single-process journal.
package journal

import (
	"errors"
	"time"
)

// Outcome values for Record.Outcome.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Record is one journaled invocation.
type Record struct {
	ExecutionID   string
	Sequence      int
	EventID       string
	CorrelationID string
	Chain         string
	Outcome       string
	Error         string
	Duration      time.Duration
	Timestamp     time.Time
}

// Store persists records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores r. The store assigns Sequence, starting at 1 per
	// execution, and Timestamp when it is zero.
	Append(r Record) error

	// List returns the records of an execution ordered by sequence.
	// Returns an empty slice (not error) for an unknown execution.
	List(executionID string) ([]Record, error)

	// DeleteExecution removes all records of an execution.
	DeleteExecution(executionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("journal store closed")
