/*
calculator.go - Hour bucketing and the two overtime pay formulas

PURPOSE:
  Prices one employee's batch of daily entries against one rate table.

BUCKETING:
  Weekday labels are inspected case-insensitively:
    "sat..." -> Saturday
    "sun..." -> Sunday
    anything else (including "" and "Flexday") -> weekday
  Hours are summed as given. Negative or implausible values are NOT clamped.

RATE RESOLUTION:
  key = Normalize(name). A table hit yields BaseRate (and OTRate if present);
  a miss yields the fixed fallback rate with no OT rate. Never fails.

OVERTIME SPLIT:
  overtime = max(0, weekday - 50)
  regular  = weekday - overtime

PAY FORMULAS (policy chosen by RateEntry.OTRate.Valid):
  single-rate:       regular*r + overtime*r*1.5 + sat*r*1.5 + sun*r*1.75
  base+overtime:     regular*r + overtime*ot    + sat*ot    + sun*ot

  Worked example (single-rate, r=10, 60 weekday hours):
    50*10 + 10*10*1.5 = 650

SEE ALSO:
  - enricher.go: runs ComputePay twice per record
*/
package payroll

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Fixed pay rules. These are not configurable.
const (
	OvertimeThresholdHours = 50
	FallbackHourlyRate     = 15
)

var (
	overtimeThreshold = decimal.NewFromInt(OvertimeThresholdHours)
	fallbackRate      = decimal.NewFromInt(FallbackHourlyRate)

	overtimeMultiplier    = decimal.RequireFromString("1.5")
	saturdayMultiplier    = decimal.RequireFromString("1.5")
	sundayMultiplier      = decimal.RequireFromString("1.75")
	displayedOTMultiplier = decimal.RequireFromString("1.5")
)

// FallbackRate returns the rate applied to names missing from a table.
func FallbackRate() decimal.Decimal { return fallbackRate }

// =============================================================================
// BUCKETING
// =============================================================================

// DayType is the bucket a daily entry is attributed to.
type DayType int

const (
	DayWeekday DayType = iota
	DaySaturday
	DaySunday
)

// ClassifyDay maps a weekday label to its bucket. Total: every label lands
// in exactly one bucket.
func ClassifyDay(label string) DayType {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.HasPrefix(l, "sat"):
		return DaySaturday
	case strings.HasPrefix(l, "sun"):
		return DaySunday
	default:
		return DayWeekday
	}
}

// HourBuckets holds summed hours per day type.
type HourBuckets struct {
	Weekday  decimal.Decimal
	Saturday decimal.Decimal
	Sunday   decimal.Decimal
}

// BucketHours sums entries into weekday/Saturday/Sunday buckets.
func BucketHours(entries []DailyHoursEntry) HourBuckets {
	var b HourBuckets
	for _, e := range entries {
		switch ClassifyDay(e.Weekday) {
		case DaySaturday:
			b.Saturday = b.Saturday.Add(e.Hours)
		case DaySunday:
			b.Sunday = b.Sunday.Add(e.Hours)
		default:
			b.Weekday = b.Weekday.Add(e.Hours)
		}
	}
	return b
}

// Split returns (regular, overtime) weekday hours around the threshold.
func (b HourBuckets) Split() (regular, overtime decimal.Decimal) {
	overtime = decimal.Max(decimal.Zero, b.Weekday.Sub(overtimeThreshold))
	return b.Weekday.Sub(overtime), overtime
}

// =============================================================================
// PRICING
// =============================================================================

// ResolveRate looks name up in table. On a miss it returns the fallback rate
// with no overtime rate and matched=false.
func ResolveRate(name string, table *RateTable) (entry RateEntry, matched bool) {
	if e, ok := table.Lookup(Normalize(name)); ok {
		return e, true
	}
	return RateEntry{BaseRate: fallbackRate}, false
}

// ComputePay prices daily entries for name against table. Pure: identical
// inputs always yield identical output.
func ComputePay(name string, daily []DailyHoursEntry, table *RateTable) PayResult {
	entry, matched := ResolveRate(name, table)
	res := Price(BucketHours(daily), entry)
	res.Matched = matched
	if matched {
		res.MatchedAs = entry.OriginalName
	}
	return res
}

// Price applies the formula selected by entry's overtime option to buckets.
func Price(b HourBuckets, entry RateEntry) PayResult {
	regular, overtime := b.Split()
	rate := entry.BaseRate

	res := PayResult{
		WeekdayHours:  b.Weekday,
		SaturdayHours: b.Saturday,
		SundayHours:   b.Sunday,
		RegularHours:  regular,
		OvertimeHours: overtime,
		RateUsed:      rate,
	}

	pay := regular.Mul(rate)
	if entry.OTRate.Valid {
		ot := entry.OTRate.Decimal
		pay = pay.
			Add(overtime.Mul(ot)).
			Add(b.Saturday.Mul(ot)).
			Add(b.Sunday.Mul(ot))
		res.OTRateUsed = entry.OTRate
		res.Policy = PolicyBaseAndOvertime
	} else {
		pay = pay.
			Add(overtime.Mul(rate).Mul(overtimeMultiplier)).
			Add(b.Saturday.Mul(rate).Mul(saturdayMultiplier)).
			Add(b.Sunday.Mul(rate).Mul(sundayMultiplier))
		res.Policy = PolicySingleRate
	}

	res.GrossPay = pay
	return res
}
