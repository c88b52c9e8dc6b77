/*
Package ratesheet loads pay-rate tables from xlsx workbooks.

PURPOSE:
  Turns operator-maintained rate workbooks into payroll.RateTables. One
  workbook may hold several sheets; each is scanned independently and
  sheets that are not rate tables are skipped.

HEADER DETECTION:
  Column A is scanned top to bottom for a cell equal to "name"
  (case-insensitive, trimmed).
    - single-rate:        the adjacent cell must also equal "pay rate"
    - base+overtime:      "name" alone marks the header
  Data rows follow the header until the sheet ends.

ROW RULES:
  Columns are located by header text ("Name", "Pay Rate", "OT Rate").
  A row is DROPPED (not an error) when the name is blank or a required
  rate is missing or not numeric. Partial sheets are expected.

MISSING FILES:
  A workbook that does not exist yields an empty table, so every lookup
  falls back to the global rate. A workbook that exists but cannot be
  read is a *payroll.RateSourceError.

USAGE:
  src := ratesheet.NewSource(payroll.VariantSingleRate, "pay details.xlsx")
  rates := payroll.NewRateStore(src, otSrc)

SEE ALSO:
  - payroll/ratestore.go: caches what Source loads
  - payroll/types.go: RateTable.Add normalizes keys, last write wins
*/
package ratesheet

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/paycompare/payroll"
)

// Header labels, compared case-insensitively after trimming.
const (
	HeaderName    = "name"
	HeaderPayRate = "pay rate"
	HeaderOTRate  = "ot rate"
)

// =============================================================================
// SOURCE - payroll.TableSource over one or more workbooks
// =============================================================================

// Source loads one table from a list of workbooks merged in order.
type Source struct {
	Variant payroll.TableVariant
	Paths   []string
}

// NewSource returns a Source for the given variant and workbook paths.
func NewSource(variant payroll.TableVariant, paths ...string) *Source {
	return &Source{Variant: variant, Paths: paths}
}

// LoadTable implements payroll.TableSource. Later workbooks overwrite earlier
// ones for names they share.
func (s *Source) LoadTable(ctx context.Context) (*payroll.RateTable, error) {
	table := payroll.NewRateTable(s.Variant)
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readFile(path, s.Variant)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			table.Add(row)
		}
	}
	return table, nil
}

// Describe lists the workbook paths for logs.
func (s *Source) Describe() string {
	return string(s.Variant) + ":" + strings.Join(s.Paths, ",")
}

// =============================================================================
// LOADERS
// =============================================================================

// LoadSingleRateTable reads a single-rate workbook.
func LoadSingleRateTable(path string) (*payroll.RateTable, error) {
	return NewSource(payroll.VariantSingleRate, path).LoadTable(context.Background())
}

// LoadBaseAndOvertimeRateTable reads a workbook carrying an OT rate per row.
func LoadBaseAndOvertimeRateTable(path string) (*payroll.RateTable, error) {
	return NewSource(payroll.VariantBaseAndOvertime, path).LoadTable(context.Background())
}

// LoadReader parses a workbook from r. Used to validate uploads before they
// replace a rate file.
func LoadReader(r io.Reader, variant payroll.TableVariant) (*payroll.RateTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := parseWorkbook(f, variant)
	if err != nil {
		return nil, err
	}
	table := payroll.NewRateTable(variant)
	for _, row := range rows {
		table.Add(row)
	}
	return table, nil
}

func readFile(path string, variant payroll.TableVariant) ([]payroll.RawRateRow, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &payroll.RateSourceError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	rows, err := parseWorkbook(f, variant)
	if err != nil {
		return nil, &payroll.RateSourceError{Path: path, Err: err}
	}
	return rows, nil
}

func parseWorkbook(f *excelize.File, variant payroll.TableVariant) ([]payroll.RawRateRow, error) {
	var out []payroll.RawRateRow
	for _, sheet := range f.GetSheetList() {
		cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		out = append(out, ParseSection(cells, variant)...)
	}
	return out, nil
}

// =============================================================================
// SECTION PARSING - pure, grid in, rows out
// =============================================================================

// ParseSection extracts rate rows from one sheet's cell grid. A grid without
// a header row yields nil.
func ParseSection(grid [][]string, variant payroll.TableVariant) []payroll.RawRateRow {
	header := findHeader(grid, variant)
	if header < 0 {
		return nil
	}

	cols := indexColumns(grid[header])
	nameCol, okName := cols[HeaderName]
	payCol, okPay := cols[HeaderPayRate]
	otCol, okOT := cols[HeaderOTRate]
	if !okName || !okPay {
		return nil
	}
	wantOT := variant == payroll.VariantBaseAndOvertime
	if wantOT && !okOT {
		return nil
	}

	var out []payroll.RawRateRow
	for _, row := range grid[header+1:] {
		name := strings.TrimSpace(cell(row, nameCol))
		if name == "" {
			continue
		}
		pay, ok := parseRate(cell(row, payCol))
		if !ok {
			continue
		}
		rr := payroll.RawRateRow{Name: name, PayRate: pay}
		if wantOT {
			ot, ok := parseRate(cell(row, otCol))
			if !ok {
				continue
			}
			rr.OTRate = decimal.NewNullDecimal(ot)
		}
		out = append(out, rr)
	}
	return out
}

func findHeader(grid [][]string, variant payroll.TableVariant) int {
	for i, row := range grid {
		if normalizeHeader(cell(row, 0)) != HeaderName {
			continue
		}
		if variant == payroll.VariantSingleRate && normalizeHeader(cell(row, 1)) != HeaderPayRate {
			continue
		}
		return i
	}
	return -1
}

// indexColumns maps header labels to column positions. First occurrence wins.
func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, seen := cols[key]; !seen {
			cols[key] = i
		}
	}
	return cols
}

func normalizeHeader(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseRate(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
