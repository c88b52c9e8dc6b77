package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE RANGE - History filter over upload dates
// =============================================================================

// DateRange is an inclusive range of calendar days. Times inside From and To
// are ignored; only the date part counts.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange validates and builds a range. to before from is ErrInvalidRange.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: startOfDay(from), To: startOfDay(to)}
	if r.To.Before(r.From) {
		return DateRange{}, fmt.Errorf("%w: %s after %s", ErrInvalidRange,
			r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	}
	return r, nil
}

// Bounds returns [start, end) as instants in the range's location.
func (r DateRange) Bounds() (start, end time.Time) {
	return startOfDay(r.From), startOfDay(r.To).AddDate(0, 0, 1)
}

// Contains returns true if t falls on a day within the range.
func (r DateRange) Contains(t time.Time) bool {
	start, end := r.Bounds()
	t = t.In(start.Location())
	return !t.Before(start) && t.Before(end)
}

// String returns a string representation of the range.
func (r DateRange) String() string {
	return "[" + r.From.Format(time.DateOnly) + ", " + r.To.Format(time.DateOnly) + "]"
}

// RangePreset names a canned history filter.
type RangePreset string

const (
	RangeLast30Days RangePreset = "last_30_days"
	RangeThisMonth  RangePreset = "this_month"
	RangeLastMonth  RangePreset = "last_month"
	RangeYearToDate RangePreset = "year_to_date"
	RangeCustom     RangePreset = "custom"
)

// PresetRange resolves a preset relative to today. RangeCustom has no fixed
// bounds and is rejected here; callers build it with NewDateRange.
func PresetRange(p RangePreset, today time.Time) (DateRange, error) {
	today = startOfDay(today)
	y, m, _ := today.Date()
	loc := today.Location()

	switch p {
	case RangeLast30Days:
		return DateRange{From: today.AddDate(0, 0, -30), To: today}, nil
	case RangeThisMonth:
		return DateRange{From: time.Date(y, m, 1, 0, 0, 0, 0, loc), To: today}, nil
	case RangeLastMonth:
		first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return DateRange{From: first.AddDate(0, -1, 0), To: first.AddDate(0, 0, -1)}, nil
	case RangeYearToDate:
		return DateRange{From: time.Date(y, time.January, 1, 0, 0, 0, 0, loc), To: today}, nil
	default:
		return DateRange{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidRange, p)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
