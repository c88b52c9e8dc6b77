package payroll

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SummaryRow aggregates the records sharing one date range.
type SummaryRow struct {
	DateRange     string
	Entries       int
	WeekdayHours  decimal.Decimal
	SaturdayHours decimal.Decimal
	SundayHours   decimal.Decimal
	DefaultPay    decimal.Decimal
	AlternatePay  decimal.Decimal
}

// Difference is AlternatePay - DefaultPay.
func (s SummaryRow) Difference() decimal.Decimal {
	return s.AlternatePay.Sub(s.DefaultPay)
}

// WeeklySummary groups records by DateRange, newest range first. Ranges
// starting with a DD.MM.YYYY date sort by that date; the rest sort as strings
// after them. Records without a range group under "".
func WeeklySummary(recs []ComparisonRecord) []SummaryRow {
	byRange := make(map[string]*SummaryRow)
	for _, r := range recs {
		row, ok := byRange[r.DateRange]
		if !ok {
			row = &SummaryRow{DateRange: r.DateRange}
			byRange[r.DateRange] = row
		}
		row.Entries++
		row.WeekdayHours = row.WeekdayHours.Add(r.WeekdayHours)
		row.SaturdayHours = row.SaturdayHours.Add(r.SaturdayHours)
		row.SundayHours = row.SundayHours.Add(r.SundayHours)
		row.DefaultPay = row.DefaultPay.Add(r.DefaultPay)
		row.AlternatePay = row.AlternatePay.Add(r.AlternatePay)
	}

	out := make([]SummaryRow, 0, len(byRange))
	for _, row := range byRange {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, iok := rangeStart(out[i].DateRange)
		tj, jok := rangeStart(out[j].DateRange)
		switch {
		case iok && jok && !ti.Equal(tj):
			return ti.After(tj)
		case iok != jok:
			return iok
		default:
			return out[i].DateRange > out[j].DateRange
		}
	})
	return out
}

// DateRangeLayout is the day format used in record date ranges.
const DateRangeLayout = "02.01.2006"

// DateRangeSeparator joins the two ends of a date range.
const DateRangeSeparator = "–"

// FormatDateRange renders from and to as a record date range.
func FormatDateRange(from, to time.Time) string {
	return from.Format(DateRangeLayout) + DateRangeSeparator + to.Format(DateRangeLayout)
}

func rangeStart(s string) (time.Time, bool) {
	head, _, _ := strings.Cut(s, DateRangeSeparator)
	head, _, _ = strings.Cut(head, "-")
	t, err := time.Parse(DateRangeLayout, strings.TrimSpace(head))
	return t, err == nil
}
