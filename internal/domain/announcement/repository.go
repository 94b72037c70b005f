package announcement

import (
	"context"
)

// Repository defines the persistence operations the ingest pipeline needs.
// Insert is append-only; records are never updated or deleted by the
// pipeline (retention is an external concern).
type Repository interface {
	// Exists reports whether a record with the given (symbol, title) pair has
	// been committed, including by earlier process runs.
	Exists(ctx context.Context, symbol, title string) (bool, error)
	// Insert stores a new record and fills in its ID and CreatedAt. A
	// concurrent insert of the same (symbol, title) pair must surface as
	// database.ErrDuplicateAnnouncement, enforced by a uniqueness constraint
	// in the store, not by an application-level check.
	Insert(ctx context.Context, rec *Record) error
	// Latest returns the most recently inserted record, for status reporting.
	Latest(ctx context.Context) (*Record, error)
	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)
}
