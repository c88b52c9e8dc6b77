/*
errors.go - Error types for the pay-comparison engine

PURPOSE:
  All error types in one place. Pricing itself never fails; these errors
  come from the edges: rate sources, uploaded containers and history.

ERROR CATEGORIES:
  1. Rate source errors - a workbook that exists but cannot be read
  2. Input errors - unsupported or corrupt uploaded files (reported per file)
  3. History errors - duplicates, unknown record IDs, bad date ranges

USAGE:
  if errors.Is(err, payroll.ErrDuplicateRecord) {
      // already in history; count it, don't fail the batch
  }

SEE ALSO:
  - extract/extract.go: produces FileError
  - ratesheet/loader.go: produces RateSourceError
  - api/handlers.go: maps errors to HTTP status via IsClientError/IsNotFound
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateSourceUnreadable is returned when a rate workbook exists but
	// cannot be opened or parsed. A missing workbook is not an error.
	ErrRateSourceUnreadable = errors.New("rate source unreadable")

	// ErrUnsupportedFormat is returned for an uploaded file no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrCorruptContainer is returned when an uploaded archive cannot be read.
	ErrCorruptContainer = errors.New("corrupt container")

	// ErrEmptyContainer is returned when an archive holds no supported files.
	ErrEmptyContainer = errors.New("container has no supported files")

	// ErrMemberTooLarge is returned when an archive member inflates past the
	// extraction limit.
	ErrMemberTooLarge = errors.New("archive member too large")

	// ErrDuplicateRecord is returned when a record with the same name and date
	// range is already in history.
	ErrDuplicateRecord = errors.New("duplicate record")

	// ErrRecordNotFound is returned when a record ID is unknown.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidRange is returned when a date range ends before it starts or
	// names an unknown preset.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrNotLoaded is returned when rate tables are required but have never
	// been loaded.
	ErrNotLoaded = errors.New("rate tables not loaded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FileError describes a failure to extract one uploaded file. The batch
// continues with the remaining files.
type FileError struct {
	File   string
	Member string // archive member, if the failure was inside a container
	Err    error
}

func (e *FileError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s (%s): %v", e.File, e.Member, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// RateSourceError wraps a read failure for one rate workbook.
type RateSourceError struct {
	Path string
	Err  error
}

func (e *RateSourceError) Error() string {
	return fmt.Sprintf("rate source %q: %v", e.Path, e.Err)
}

func (e *RateSourceError) Unwrap() []error {
	return []error{ErrRateSourceUnreadable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptContainer) ||
		errors.Is(err, ErrEmptyContainer) ||
		errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
