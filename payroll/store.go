/*
store.go - Persistence interfaces for priced records

PURPOSE:
  The engine never depends on a storage engine. It talks to a narrow
  RecordStore (append, recent history); the HTTP layer needs the wider
  HistoryStore for filtering, bulk actions and the matches view.

DUPLICATES:
  A record is a duplicate when another record with the same Name and a
  non-empty, identical DateRange is already stored. Append returns
  ErrDuplicateRecord for it. Records without a DateRange are never
  duplicates; there is nothing to compare.

ORDERING:
  History is returned newest upload first. Records of one batch share
  an UploadedAt and keep their batch order.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with versioned migrations
  - payroll/store/memory.go: in-memory for tests/dev
*/
package payroll

import (
	"context"
	"errors"
)

// RecordStore is the minimal collaborator the engine writes to.
type RecordStore interface {
	// Append persists one record. Returns ErrDuplicateRecord for a duplicate.
	Append(ctx context.Context, rec ComparisonRecord) error

	// QueryRecent returns up to limit records, newest upload first.
	// limit <= 0 means no limit.
	QueryRecent(ctx context.Context, limit int) ([]ComparisonRecord, error)
}

// HistoryStore extends RecordStore with the operations history views need.
type HistoryStore interface {
	RecordStore

	// Exists reports whether a record with name and dateRange is stored.
	Exists(ctx context.Context, name, dateRange string) (bool, error)

	// QueryRange returns records uploaded within r, newest first.
	QueryRange(ctx context.Context, r DateRange, limit int) ([]ComparisonRecord, error)

	// Get returns the records with the given IDs, newest first. Unknown IDs
	// are ignored.
	Get(ctx context.Context, ids []string) ([]ComparisonRecord, error)

	// MarkPaid flags records as paid and returns how many were updated.
	MarkPaid(ctx context.Context, ids []string) (int, error)

	// Delete removes records and returns how many were removed.
	Delete(ctx context.Context, ids []string) (int, error)

	// Matches returns the distinct name pairings seen in history.
	Matches(ctx context.Context) ([]NameMatch, error)
}

// NameMatch pairs a timesheet name with the rate-sheet name it resolved to.
type NameMatch struct {
	Name      string
	MatchedAs string
	Ratio     float64
}

// =============================================================================
// BATCH PERSISTENCE
// =============================================================================

// PersistResult reports what PersistBatch did.
type PersistResult struct {
	Inserted   []ComparisonRecord
	Duplicates []ComparisonRecord
}

// PersistBatch appends every record, skipping duplicates. It stops at the
// first other error; records already inserted stay inserted and the in-memory
// batch is left untouched.
func PersistBatch(ctx context.Context, store RecordStore, recs []ComparisonRecord) (PersistResult, error) {
	var res PersistResult
	for _, rec := range recs {
		err := store.Append(ctx, rec)
		switch {
		case err == nil:
			res.Inserted = append(res.Inserted, rec)
		case errors.Is(err, ErrDuplicateRecord):
			res.Duplicates = append(res.Duplicates, rec)
		default:
			return res, err
		}
	}
	return res, nil
}
