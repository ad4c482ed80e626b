package oplog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by reads for a checkout ID with no log rows.
var ErrNotFound = errors.New("oplog: checkout not found")

// Repository is the port for persisting operation log entries. The
// pipeline depends on this abstraction, not on SQLite directly, so the
// implementation can be swapped for Postgres or in-memory in tests.
type Repository interface {
	// Save persists a new log entry. Each call appends a row; the table
	// is an append-only audit log, not an upsert.
	Save(ctx context.Context, entry *Entry) error
}

// Reader is the port for reconciliation reads over the log: given a
// checkout ID, report where that pipeline run ended up.
type Reader interface {
	GetLatest(ctx context.Context, checkoutID string) (*Entry, error)
}
