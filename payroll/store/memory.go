// Package store provides in-process HistoryStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/paycompare/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records []row
	byID    map[string]int // index into records
	seq     int
	natural map[naturalKey]bool
}

type row struct {
	seq int
	rec payroll.ComparisonRecord
}

type naturalKey struct {
	Name      string
	DateRange string
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]int),
		natural: make(map[naturalKey]bool),
	}
}

// Append stores one record. Records with a date range already stored under
// the same name are rejected with ErrDuplicateRecord.
func (m *Memory) Append(_ context.Context, rec payroll.ComparisonRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := naturalKey{Name: rec.Name, DateRange: rec.DateRange}
	if rec.DateRange != "" && m.natural[k] {
		return payroll.ErrDuplicateRecord
	}

	m.seq++
	m.byID[rec.ID] = len(m.records)
	m.records = append(m.records, row{seq: m.seq, rec: rec})
	if rec.DateRange != "" {
		m.natural[k] = true
	}
	return nil
}

func (m *Memory) QueryRecent(_ context.Context, limit int) ([]payroll.ComparisonRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(func(payroll.ComparisonRecord) bool { return true }, limit), nil
}

func (m *Memory) QueryRange(_ context.Context, r payroll.DateRange, limit int) ([]payroll.ComparisonRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(func(rec payroll.ComparisonRecord) bool { return r.Contains(rec.UploadedAt) }, limit), nil
}

func (m *Memory) Get(_ context.Context, ids []string) ([]payroll.ComparisonRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.collectLocked(func(rec payroll.ComparisonRecord) bool { return want[rec.ID] }, 0), nil
}

func (m *Memory) Exists(_ context.Context, name, dateRange string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.natural[naturalKey{Name: name, DateRange: dateRange}], nil
}

func (m *Memory) MarkPaid(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if i, ok := m.byID[id]; ok && !m.records[i].rec.Paid {
			m.records[i].rec.Paid = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) Delete(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.byID[id]; ok {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}

	kept := m.records[:0]
	for _, r := range m.records {
		if drop[r.rec.ID] {
			delete(m.natural, naturalKey{Name: r.rec.Name, DateRange: r.rec.DateRange})
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept

	m.byID = make(map[string]int, len(kept))
	for i, r := range kept {
		m.byID[r.rec.ID] = i
	}
	return len(drop), nil
}

func (m *Memory) Matches(_ context.Context) ([]payroll.NameMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[payroll.NameMatch]bool)
	var out []payroll.NameMatch
	for _, r := range m.records {
		nm := payroll.NameMatch{Name: r.rec.Name, MatchedAs: r.rec.MatchedAs, Ratio: r.rec.MatchRatio}
		if !seen[nm] {
			seen[nm] = true
			out = append(out, nm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].MatchedAs < out[j].MatchedAs
	})
	return out, nil
}

// collectLocked returns matching records newest upload first; ties keep
// insertion order.
func (m *Memory) collectLocked(keep func(payroll.ComparisonRecord) bool, limit int) []payroll.ComparisonRecord {
	var rows []row
	for _, r := range m.records {
		if keep(r.rec) {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].rec.UploadedAt.Equal(rows[j].rec.UploadedAt) {
			return rows[i].rec.UploadedAt.After(rows[j].rec.UploadedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]payroll.ComparisonRecord, len(rows))
	for i, r := range rows {
		out[i] = r.rec
	}
	return out
}

var _ payroll.HistoryStore = (*Memory)(nil)
