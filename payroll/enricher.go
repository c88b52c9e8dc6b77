package payroll

import (
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// DUAL PRICING
// =============================================================================

// Enrich prices record against both tables and merges the results.
//
// The default table is priced under whatever its entry carries (single-rate
// tables never carry an OT rate). The alternate table selects its policy by
// the entry's own OT option; when there is none, AlternateOTRate shows 1.5x
// the applied rate for reporting only.
func Enrich(record TimesheetRecord, defaultTable, alternateTable *RateTable) ComparisonRecord {
	def := ComputePay(record.Name, record.Daily, defaultTable)
	alt := ComputePay(record.Name, record.Daily, alternateTable)

	displayedOT := alt.RateUsed.Mul(displayedOTMultiplier)
	if alt.OTRateUsed.Valid {
		displayedOT = alt.OTRateUsed.Decimal
	}

	ratio := 0.0
	if def.Matched {
		ratio = 1.0
	}

	return ComparisonRecord{
		Name:        record.Name,
		MatchedAs:   def.MatchedAs,
		MatchRatio:  ratio,
		Client:      record.Client,
		SiteAddress: record.SiteAddress,
		Department:  record.Department,
		DateRange:   record.DateRange,
		SourceFile:  record.SourceFile,
		ExtractedOn: record.ExtractedOn,

		WeekdayHours:  def.WeekdayHours,
		SaturdayHours: def.SaturdayHours,
		SundayHours:   def.SundayHours,

		DefaultRate:   def.RateUsed,
		DefaultPay:    def.GrossPay,
		DefaultPolicy: def.Policy,

		AlternateRate:   alt.RateUsed,
		AlternateOTRate: displayedOT,
		AlternatePay:    alt.GrossPay,
		AlternatePolicy: alt.Policy,

		AlternateMatched: alt.Matched,
	}
}

// =============================================================================
// BATCH ENRICHMENT
// =============================================================================

// Batch is the output of one EnrichBatch call.
type Batch struct {
	ID             string
	UploadedAt     time.Time
	RateGeneration uint64
	Records        []ComparisonRecord
}

// Enricher prices batches against the tables held by a RateStore.
type Enricher struct {
	rates   *RateStore
	workers int
	now     func() time.Time
	newID   func() string
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithWorkers bounds how many records are priced concurrently.
func WithWorkers(n int) EnricherOption {
	return func(e *Enricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock overrides the upload timestamp source.
func WithClock(now func() time.Time) EnricherOption {
	return func(e *Enricher) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides record and batch ID generation.
func WithIDGenerator(gen func() string) EnricherOption {
	return func(e *Enricher) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// NewEnricher creates an Enricher reading tables from rates.
func NewEnricher(rates *RateStore, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		rates:   rates,
		workers: runtime.NumCPU(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnrichBatch prices every record against a single rate snapshot. Output order
// matches input order.
func (e *Enricher) EnrichBatch(records []TimesheetRecord) Batch {
	snap := e.rates.Current()
	batch := Batch{
		ID:             e.newID(),
		UploadedAt:     e.now().UTC(),
		RateGeneration: snap.Generation,
		Records:        make([]ComparisonRecord, len(records)),
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, rec := range records {
		g.Go(func() error {
			batch.Records[i] = Enrich(rec, snap.Default, snap.Alternate)
			return nil
		})
	}
	_ = g.Wait()

	// IDs are assigned after the workers finish; the generator need not be
	// safe for concurrent use.
	for i := range batch.Records {
		batch.Records[i].ID = e.newID()
		batch.Records[i].BatchID = batch.ID
		batch.Records[i].UploadedAt = batch.UploadedAt
	}
	return batch
}
