/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types keep
  decimal.Decimal for money and hours; DTOs expose them as JSON numbers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Timesheets:
    ComparisonRecordDTO, UploadResponse, FileErrorDTO

  History:
    SummaryRowDTO, NameMatchDTO, IDsRequest, BulkResultDTO

  Rates:
    RatesDTO, RateLookupResponse, RateResolutionDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/paycompare/payroll"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ComparisonRecordDTO is one priced record in API responses.
type ComparisonRecordDTO struct {
	ID         string `json:"id"`
	BatchID    string `json:"batch_id"`
	UploadedAt string `json:"uploaded_at"`
	Paid       bool   `json:"paid"`

	Name        string  `json:"name"`
	MatchedAs   string  `json:"matched_as"`
	MatchRatio  float64 `json:"match_ratio"`
	Client      string  `json:"client,omitempty"`
	SiteAddress string  `json:"site_address,omitempty"`
	Department  string  `json:"department,omitempty"`
	DateRange   string  `json:"date_range,omitempty"`
	SourceFile  string  `json:"source_file,omitempty"`
	ExtractedOn string  `json:"extracted_on,omitempty"`

	WeekdayHours  float64 `json:"weekday_hours"`
	SaturdayHours float64 `json:"saturday_hours"`
	SundayHours   float64 `json:"sunday_hours"`

	DefaultRate   float64 `json:"default_rate"`
	DefaultPay    float64 `json:"default_pay"`
	DefaultPolicy string  `json:"default_policy"`

	AlternateRate   float64 `json:"alternate_rate"`
	AlternateOTRate float64 `json:"alternate_ot_rate"`
	AlternatePay    float64 `json:"alternate_pay"`
	AlternatePolicy string  `json:"alternate_policy"`

	Difference float64 `json:"difference"`
}

// FileErrorDTO reports one file that could not be extracted.
type FileErrorDTO struct {
	File   string `json:"file"`
	Member string `json:"member,omitempty"`
	Error  string `json:"error"`
}

// UploadResponse is returned after a batch is priced and persisted.
type UploadResponse struct {
	BatchID        string                `json:"batch_id"`
	UploadedAt     string                `json:"uploaded_at"`
	RateGeneration uint64                `json:"rate_generation"`
	FilesProcessed int                   `json:"files_processed"`
	Records        []ComparisonRecordDTO `json:"records"`
	Duplicates     []ComparisonRecordDTO `json:"duplicates"`
	FileErrors     []FileErrorDTO        `json:"file_errors"`
}

// SummaryRowDTO is one date range in the weekly summary.
type SummaryRowDTO struct {
	DateRange     string  `json:"date_range"`
	Entries       int     `json:"entries"`
	WeekdayHours  float64 `json:"weekday_hours"`
	SaturdayHours float64 `json:"saturday_hours"`
	SundayHours   float64 `json:"sunday_hours"`
	DefaultPay    float64 `json:"default_pay"`
	AlternatePay  float64 `json:"alternate_pay"`
	Difference    float64 `json:"difference"`
}

// NameMatchDTO pairs a timesheet name with its rate-sheet match.
type NameMatchDTO struct {
	Name      string  `json:"name"`
	MatchedAs string  `json:"matched_as"`
	Ratio     float64 `json:"ratio"`
}

// IDsRequest selects records for bulk actions.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// BulkResultDTO reports how many selected records a bulk action touched.
type BulkResultDTO struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
}

// RatesDTO describes the rate snapshot in effect.
type RatesDTO struct {
	Loaded           bool     `json:"loaded"`
	Generation       uint64   `json:"generation"`
	LoadedAt         string   `json:"loaded_at,omitempty"`
	DefaultEntries   int      `json:"default_entries"`
	AlternateEntries int      `json:"alternate_entries"`
	DefaultSources   []string `json:"default_sources"`
	AlternateSources []string `json:"alternate_sources"`
}

// RateResolutionDTO is how one table resolves a name.
type RateResolutionDTO struct {
	Matched   bool     `json:"matched"`
	MatchedAs string   `json:"matched_as,omitempty"`
	BaseRate  float64  `json:"base_rate"`
	OTRate    *float64 `json:"ot_rate,omitempty"`
}

// RateLookupResponse resolves a name against both current tables.
type RateLookupResponse struct {
	Name      string            `json:"name"`
	Key       string            `json:"key"`
	Default   RateResolutionDTO `json:"default"`
	Alternate RateResolutionDTO `json:"alternate"`
}

// HealthDTO is the liveness response.
type HealthDTO struct {
	Status      string `json:"status"`
	RatesLoaded bool   `json:"rates_loaded"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toComparisonRecordDTO(r payroll.ComparisonRecord) ComparisonRecordDTO {
	return ComparisonRecordDTO{
		ID:         r.ID,
		BatchID:    r.BatchID,
		UploadedAt: formatTime(r.UploadedAt),
		Paid:       r.Paid,

		Name:        r.Name,
		MatchedAs:   r.MatchedAs,
		MatchRatio:  r.MatchRatio,
		Client:      r.Client,
		SiteAddress: r.SiteAddress,
		Department:  r.Department,
		DateRange:   r.DateRange,
		SourceFile:  r.SourceFile,
		ExtractedOn: formatTime(r.ExtractedOn),

		WeekdayHours:  r.WeekdayHours.InexactFloat64(),
		SaturdayHours: r.SaturdayHours.InexactFloat64(),
		SundayHours:   r.SundayHours.InexactFloat64(),

		DefaultRate:   r.DefaultRate.InexactFloat64(),
		DefaultPay:    r.DefaultPay.InexactFloat64(),
		DefaultPolicy: string(r.DefaultPolicy),

		AlternateRate:   r.AlternateRate.InexactFloat64(),
		AlternateOTRate: r.AlternateOTRate.InexactFloat64(),
		AlternatePay:    r.AlternatePay.InexactFloat64(),
		AlternatePolicy: string(r.AlternatePolicy),

		Difference: r.Difference().InexactFloat64(),
	}
}

func toComparisonRecordDTOs(recs []payroll.ComparisonRecord) []ComparisonRecordDTO {
	dtos := make([]ComparisonRecordDTO, len(recs))
	for i, r := range recs {
		dtos[i] = toComparisonRecordDTO(r)
	}
	return dtos
}

func toFileErrorDTOs(errs []*payroll.FileError) []FileErrorDTO {
	dtos := make([]FileErrorDTO, len(errs))
	for i, e := range errs {
		dtos[i] = FileErrorDTO{File: e.File, Member: e.Member, Error: e.Err.Error()}
	}
	return dtos
}

func toSummaryRowDTOs(rows []payroll.SummaryRow) []SummaryRowDTO {
	dtos := make([]SummaryRowDTO, len(rows))
	for i, s := range rows {
		dtos[i] = SummaryRowDTO{
			DateRange:     s.DateRange,
			Entries:       s.Entries,
			WeekdayHours:  s.WeekdayHours.InexactFloat64(),
			SaturdayHours: s.SaturdayHours.InexactFloat64(),
			SundayHours:   s.SundayHours.InexactFloat64(),
			DefaultPay:    s.DefaultPay.InexactFloat64(),
			AlternatePay:  s.AlternatePay.InexactFloat64(),
			Difference:    s.Difference().InexactFloat64(),
		}
	}
	return dtos
}

func toResolutionDTO(entry payroll.RateEntry, matched bool) RateResolutionDTO {
	dto := RateResolutionDTO{
		Matched:  matched,
		BaseRate: entry.BaseRate.InexactFloat64(),
	}
	if matched {
		dto.MatchedAs = entry.OriginalName
	}
	if entry.OTRate.Valid {
		dto.OTRate = floatPtr(entry.OTRate.Decimal)
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func floatPtr(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
