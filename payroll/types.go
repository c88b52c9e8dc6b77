/*
Package payroll provides the rate-matching and pay-computation engine.

PURPOSE:
  Every timesheet record is priced twice: once against the default
  (single-rate) table and once against the alternate (base+overtime) table.
  The two results are merged into a ComparisonRecord so the two pay regimes
  can be reconciled side by side.

KEY CONCEPTS IN THIS FILE (types.go):
  - NormalizedKey: canonical name form, the only lookup key into rate tables
  - RateEntry: base rate plus an OPTIONAL overtime rate (decimal.NullDecimal)
  - RateTable: normalized key -> RateEntry, in one of two variants
  - DailyHoursEntry / TimesheetRecord: what extraction hands us
  - PayResult / ComparisonRecord: what pricing hands back

DESIGN PRINCIPLES:
  1. Precision: hours, rates and pay are decimal.Decimal, never float64
  2. Explicit options: "maybe has an OT rate" is OTRate.Valid, not map membership
  3. Purity: nothing in this package holds hidden state except RateStore

SEE ALSO:
  - normalize.go:  NameNormalizer
  - calculator.go: bucketing, rate resolution, pay formulas
  - enricher.go:   dual pricing into ComparisonRecord
  - ratestore.go:  cached tables with explicit reload
*/
package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE TABLES
// =============================================================================

// NormalizedKey is the output of Normalize. It is not reversible to the
// original spelling; RateEntry.OriginalName keeps that.
type NormalizedKey string

// TableVariant distinguishes the two rate table shapes.
type TableVariant string

const (
	// VariantSingleRate tables never carry an overtime rate.
	VariantSingleRate TableVariant = "single_rate"
	// VariantBaseAndOvertime tables carry an overtime rate on every entry.
	VariantBaseAndOvertime TableVariant = "base_and_overtime"
)

// RawRateRow is one parsed row from a rate source.
type RawRateRow struct {
	Name    string
	PayRate decimal.Decimal
	OTRate  decimal.NullDecimal
}

// RateEntry is what a rate table resolves a key to.
type RateEntry struct {
	BaseRate     decimal.Decimal
	OTRate       decimal.NullDecimal
	OriginalName string
}

// HasOvertimeRate reports whether the base+overtime policy applies.
func (e RateEntry) HasOvertimeRate() bool { return e.OTRate.Valid }

// RateTable maps normalized names to rates. A table is built once by a loader
// and then treated as read-only; RateStore hands out whole tables, never
// mutates one in place.
type RateTable struct {
	variant TableVariant
	entries map[NormalizedKey]RateEntry
}

// NewRateTable returns an empty table of the given variant.
func NewRateTable(variant TableVariant) *RateTable {
	return &RateTable{variant: variant, entries: make(map[NormalizedKey]RateEntry)}
}

// Variant returns the table shape.
func (t *RateTable) Variant() TableVariant {
	if t == nil || t.variant == "" {
		return VariantSingleRate
	}
	return t.variant
}

// Add indexes a row by its normalized name. Later rows overwrite earlier rows
// sharing a key. Returns false when the row is dropped: its name normalizes to
// nothing, or the table requires an overtime rate the row does not have.
// The zero RateTable is an empty single-rate table ready for use.
func (t *RateTable) Add(row RawRateRow) bool {
	key := Normalize(row.Name)
	if key == "" {
		return false
	}
	if t.entries == nil {
		t.entries = make(map[NormalizedKey]RateEntry)
	}

	entry := RateEntry{BaseRate: row.PayRate, OriginalName: row.Name}
	switch t.variant {
	case VariantBaseAndOvertime:
		if !row.OTRate.Valid {
			return false
		}
		entry.OTRate = row.OTRate
	default:
		// single-rate tables never carry an OT rate, even if one was parsed
	}

	t.entries[key] = entry
	return true
}

// Lookup returns the entry for key. A nil table or an empty key never matches.
func (t *RateTable) Lookup(key NormalizedKey) (RateEntry, bool) {
	if t == nil || key == "" {
		return RateEntry{}, false
	}
	e, ok := t.entries[key]
	return e, ok
}

// Len returns the number of distinct keys.
func (t *RateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// KeyedRateEntry pairs an entry with its key for listing.
type KeyedRateEntry struct {
	Key NormalizedKey
	RateEntry
}

// Entries returns all entries sorted by key.
func (t *RateTable) Entries() []KeyedRateEntry {
	if t == nil {
		return nil
	}
	out := make([]KeyedRateEntry, 0, len(t.entries))
	for k, e := range t.entries {
		out = append(out, KeyedRateEntry{Key: k, RateEntry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// =============================================================================
// TIMESHEETS
// =============================================================================

// DailyHoursEntry is one worked-hours observation.
type DailyHoursEntry struct {
	Weekday string
	Hours   decimal.Decimal
}

// TimesheetRecord is produced by an extractor, one per document or page.
type TimesheetRecord struct {
	Name        string
	Daily       []DailyHoursEntry
	Client      string
	SiteAddress string
	Department  string
	DateRange   string
	SourceFile  string
	ExtractedOn time.Time
}

// =============================================================================
// RESULTS
// =============================================================================

// Policy names the overtime formula that was applied.
type Policy string

const (
	// PolicySingleRate bills overtime and weekends at fixed multiples of the base rate.
	PolicySingleRate Policy = "single_rate"
	// PolicyBaseAndOvertime bills overtime and weekends at the explicit OT rate.
	PolicyBaseAndOvertime Policy = "base_and_overtime"
)

// PayResult is the output of one pricing run.
type PayResult struct {
	WeekdayHours  decimal.Decimal
	SaturdayHours decimal.Decimal
	SundayHours   decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal

	RateUsed   decimal.Decimal
	OTRateUsed decimal.NullDecimal
	GrossPay   decimal.Decimal
	Policy     Policy

	// Matched is false when the fallback rate was used.
	Matched   bool
	MatchedAs string
}

// ComparisonRecord is one timesheet record priced under both schemes.
type ComparisonRecord struct {
	ID         string
	BatchID    string
	UploadedAt time.Time
	Paid       bool

	Name        string
	MatchedAs   string
	MatchRatio  float64
	Client      string
	SiteAddress string
	Department  string
	DateRange   string
	SourceFile  string
	ExtractedOn time.Time

	WeekdayHours  decimal.Decimal
	SaturdayHours decimal.Decimal
	SundayHours   decimal.Decimal

	DefaultRate   decimal.Decimal
	DefaultPay    decimal.Decimal
	DefaultPolicy Policy

	AlternateRate   decimal.Decimal
	AlternateOTRate decimal.Decimal // displayed; 1.5x base when the table had none
	AlternatePay    decimal.Decimal
	AlternatePolicy Policy

	// AlternateMatched reports whether the alternate table knew the name when
	// the record was priced. Not persisted.
	AlternateMatched bool
}

// Difference is AlternatePay - DefaultPay.
func (c ComparisonRecord) Difference() decimal.Decimal {
	return c.AlternatePay.Sub(c.DefaultPay)
}

// TotalHours sums the three buckets.
func (c ComparisonRecord) TotalHours() decimal.Decimal {
	return c.WeekdayHours.Add(c.SaturdayHours).Add(c.SundayHours)
}
