package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/warp/paycompare/payroll"
)

// CSVExtractor reads one row per worked day and groups rows by employee
// name, in order of first appearance. Required columns: name, weekday, hours.
// Optional: date, client, site_address, department.
//
// The record's date range spans the earliest and latest parseable date.
type CSVExtractor struct{}

var csvDateLayouts = []string{payroll.DateRangeLayout, time.DateOnly, "02/01/2006"}

var errMissingColumn = errors.New("missing required column")

func (CSVExtractor) Extract(_ context.Context, name string, r io.Reader) ([]payroll.TimesheetRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if key == "day" {
			key = "weekday"
		}
		if _, seen := cols[key]; !seen {
			cols[key] = i
		}
	}
	for _, req := range []string{"name", "weekday", "hours"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%s: %w %q", name, errMissingColumn, req)
		}
	}

	type group struct {
		rec      payroll.TimesheetRecord
		min, max time.Time
	}
	var order []string
	groups := make(map[string]*group)

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		who := strings.TrimSpace(field(row, cols, "name"))
		if who == "" {
			continue
		}
		g, ok := groups[who]
		if !ok {
			g = &group{rec: payroll.TimesheetRecord{
				Name:        who,
				Client:      strings.TrimSpace(field(row, cols, "client")),
				SiteAddress: strings.TrimSpace(field(row, cols, "site_address")),
				Department:  strings.TrimSpace(field(row, cols, "department")),
			}}
			groups[who] = g
			order = append(order, who)
		}

		g.rec.Daily = append(g.rec.Daily, payroll.DailyHoursEntry{
			Weekday: strings.TrimSpace(field(row, cols, "weekday")),
			Hours:   hoursOrZero(field(row, cols, "hours")),
		})

		if d, ok := parseDate(field(row, cols, "date")); ok {
			if g.min.IsZero() || d.Before(g.min) {
				g.min = d
			}
			if g.max.IsZero() || d.After(g.max) {
				g.max = d
			}
		}
	}

	out := make([]payroll.TimesheetRecord, 0, len(order))
	for _, who := range order {
		g := groups[who]
		if !g.min.IsZero() {
			g.rec.DateRange = payroll.FormatDateRange(g.min, g.max)
		}
		out = append(out, g.rec)
	}
	return out, nil
}

func field(row []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
