/*
ratestore.go - Cached rate tables with an explicit reload

PURPOSE:
  Holds the default and alternate RateTables as one immutable snapshot.
  Tables are loaded once and served read-only until an operator reloads.

SNAPSHOT SEMANTICS:
  Reload builds BOTH tables first, then swaps the snapshot pointer in one
  atomic store. A batch captures Current() once and uses that snapshot
  throughout, so it never sees a mix of pre- and post-reload tables.

FAILURE:
  If either source fails, Reload returns the error and the previous
  snapshot stays in place. A missing file is NOT a failure: sources return
  an empty table for it.

USAGE:
  rates := payroll.NewRateStore(defaultSrc, alternateSrc)
  if err := rates.Load(ctx); err != nil { ... }
  snap := rates.Current()
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TableSource builds a RateTable from wherever rates live.
type TableSource interface {
	LoadTable(ctx context.Context) (*RateTable, error)
}

// TableSourceFunc adapts a function to TableSource.
type TableSourceFunc func(ctx context.Context) (*RateTable, error)

func (f TableSourceFunc) LoadTable(ctx context.Context) (*RateTable, error) { return f(ctx) }

// RateSnapshot is one consistent pair of tables.
type RateSnapshot struct {
	Default    *RateTable
	Alternate  *RateTable
	LoadedAt   time.Time
	Generation uint64
}

// Loaded reports whether the snapshot came from a successful load.
func (s *RateSnapshot) Loaded() bool { return s.Generation > 0 }

// RateStore owns the cached tables.
type RateStore struct {
	defaultSrc   TableSource
	alternateSrc TableSource
	now          func() time.Time

	mu      sync.Mutex // serializes loads; readers never take it
	current atomic.Pointer[RateSnapshot]
}

// NewRateStore creates a store. Until Load succeeds, Current returns empty
// tables, so every lookup resolves to the fallback rate.
func NewRateStore(defaultSrc, alternateSrc TableSource) *RateStore {
	s := &RateStore{defaultSrc: defaultSrc, alternateSrc: alternateSrc, now: time.Now}
	s.current.Store(&RateSnapshot{
		Default:   NewRateTable(VariantSingleRate),
		Alternate: NewRateTable(VariantBaseAndOvertime),
	})
	return s
}

// Load loads the tables if they have not been loaded yet.
func (s *RateStore) Load(ctx context.Context) error {
	if s.current.Load().Loaded() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Load().Loaded() {
		return nil
	}
	_, err := s.reloadLocked(ctx)
	return err
}

// Reload discards the cached tables and rebuilds them from the sources.
func (s *RateStore) Reload(ctx context.Context) (*RateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *RateStore) reloadLocked(ctx context.Context) (*RateSnapshot, error) {
	def, err := s.defaultSrc.LoadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default rates: %w", err)
	}
	alt, err := s.alternateSrc.LoadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load alternate rates: %w", err)
	}

	snap := &RateSnapshot{
		Default:    def,
		Alternate:  alt,
		LoadedAt:   s.now(),
		Generation: s.current.Load().Generation + 1,
	}
	s.current.Store(snap)
	return snap, nil
}

// Current returns the snapshot in effect. Never nil.
func (s *RateStore) Current() *RateSnapshot {
	return s.current.Load()
}
