/*
Package sqlite provides a SQLite-backed payroll.HistoryStore.

PURPOSE:
  Persists priced ComparisonRecords for the history, summary, matches
  and export views. The engine only sees payroll.RecordStore; the HTTP
  layer uses the wider payroll.HistoryStore.

KEY TABLES:
  timesheet_entries: one row per priced record (decimals stored as TEXT)

INDEXES:
  - idx_timesheet_entries_upload:     history ordering (hot path)
  - idx_timesheet_entries_name_range: enforces one row per (name, date range)
                                      when a date range is present

ORDERING:
  upload_timestamp is written in a fixed-width UTC layout so string order
  is time order. Ties (one batch) keep insertion order via rowid.

CONCURRENCY:
  Uses sync.RWMutex around writes and a single open connection, so
  ":memory:" databases stay one database.

MIGRATION:
  Schema is versioned under migrations/ and applied with golang-migrate
  on New().

USAGE:
  store, err := sqlite.New("./timesheets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: interface definitions
  - payroll/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/paycompare/payroll"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed-width so TEXT comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements payroll.HistoryStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations applies all up migrations. The migrate instance is not
// closed: its sqlite driver would close db with it.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return src.Close()
}

// =============================================================================
// WRITES
// =============================================================================

const columns = `id, batch_id, upload_timestamp, is_paid,
	name, matched_as, match_ratio, client, site_address, department,
	date_range, source_file, extracted_on,
	weekday_hours, saturday_hours, sunday_hours,
	default_rate, default_pay, default_policy,
	alternate_rate, alternate_ot_rate, alternate_pay, alternate_policy`

// Append persists one record.
func (s *Store) Append(ctx context.Context, rec payroll.ComparisonRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO timesheet_entries (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.BatchID, formatTime(rec.UploadedAt), rec.Paid,
		rec.Name, rec.MatchedAs, rec.MatchRatio, rec.Client, rec.SiteAddress, rec.Department,
		rec.DateRange, rec.SourceFile, formatTime(rec.ExtractedOn),
		rec.WeekdayHours, rec.SaturdayHours, rec.SundayHours,
		rec.DefaultRate, rec.DefaultPay, string(rec.DefaultPolicy),
		rec.AlternateRate, rec.AlternateOTRate, rec.AlternatePay, string(rec.AlternatePolicy),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s", payroll.ErrDuplicateRecord, rec.Name, rec.DateRange)
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// MarkPaid flags unpaid records as paid.
func (s *Store) MarkPaid(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	in, args := inClause(ids)
	res, err := s.db.ExecContext(ctx,
		`UPDATE timesheet_entries SET is_paid = 1 WHERE is_paid = 0 AND id IN `+in, args...)
	if err != nil {
		return 0, fmt.Errorf("mark paid: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Delete removes records by ID.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	in, args := inClause(ids)
	res, err := s.db.ExecContext(ctx, `DELETE FROM timesheet_entries WHERE id IN `+in, args...)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// READS
// =============================================================================

// QueryRecent returns up to limit records, newest upload first.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]payroll.ComparisonRecord, error) {
	return s.query(ctx, "", nil, limit)
}

// QueryRange returns records uploaded on a day within r.
func (s *Store) QueryRange(ctx context.Context, r payroll.DateRange, limit int) ([]payroll.ComparisonRecord, error) {
	start, end := r.Bounds()
	return s.query(ctx, "WHERE upload_timestamp >= ? AND upload_timestamp < ?",
		[]any{formatTime(start), formatTime(end)}, limit)
}

// Get returns the records with the given IDs.
func (s *Store) Get(ctx context.Context, ids []string) ([]payroll.ComparisonRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	return s.query(ctx, "WHERE id IN "+in, args, 0)
}

// Exists reports whether name already has a record for dateRange.
func (s *Store) Exists(ctx context.Context, name, dateRange string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timesheet_entries WHERE name = ? AND date_range = ?`,
		name, dateRange).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return n > 0, nil
}

// Matches returns distinct name pairings, sorted by name.
func (s *Store) Matches(ctx context.Context) ([]payroll.NameMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT name, matched_as, match_ratio
		FROM timesheet_entries
		ORDER BY name, matched_as`)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []payroll.NameMatch
	for rows.Next() {
		var m payroll.NameMatch
		if err := rows.Scan(&m.Name, &m.MatchedAs, &m.Ratio); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, where string, args []any, limit int) ([]payroll.ComparisonRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT ` + columns + ` FROM timesheet_entries ` + where +
		` ORDER BY upload_timestamp DESC, rowid ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []payroll.ComparisonRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (payroll.ComparisonRecord, error) {
	var (
		rec                     payroll.ComparisonRecord
		uploadedAt, extractedOn string
		defPolicy, altPolicy    string
	)
	err := rows.Scan(
		&rec.ID, &rec.BatchID, &uploadedAt, &rec.Paid,
		&rec.Name, &rec.MatchedAs, &rec.MatchRatio, &rec.Client, &rec.SiteAddress, &rec.Department,
		&rec.DateRange, &rec.SourceFile, &extractedOn,
		&rec.WeekdayHours, &rec.SaturdayHours, &rec.SundayHours,
		&rec.DefaultRate, &rec.DefaultPay, &defPolicy,
		&rec.AlternateRate, &rec.AlternateOTRate, &rec.AlternatePay, &altPolicy,
	)
	if err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}
	rec.DefaultPolicy = payroll.Policy(defPolicy)
	rec.AlternatePolicy = payroll.Policy(altPolicy)
	if rec.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return rec, err
	}
	if rec.ExtractedOn, err = parseTime(extractedOn); err != nil {
		return rec, err
	}
	return rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

var _ payroll.HistoryStore = (*Store)(nil)
