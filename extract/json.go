package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/paycompare/payroll"
)

// JSONExtractor reads records already structured as JSON, as produced by an
// upstream document parser:
//
//	{"records": [{"name": "Ana", "date_range": "02.06.2025–08.06.2025",
//	  "daily": [{"weekday": "Monday", "hours": 8}, {"weekday": "Sat", "hours": "4:30"}]}]}
//
// A bare array of records is accepted too.
type JSONExtractor struct{}

type jsonRecord struct {
	Name        string      `json:"name"`
	Client      string      `json:"client"`
	SiteAddress string      `json:"site_address"`
	Department  string      `json:"department"`
	DateRange   string      `json:"date_range"`
	Daily       []jsonDaily `json:"daily"`
}

type jsonDaily struct {
	Weekday string    `json:"weekday"`
	Hours   jsonHours `json:"hours"`
}

// jsonHours accepts a number or a string ("7.5", "7:30").
type jsonHours struct {
	decimal.Decimal
}

func (h *jsonHours) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		h.Decimal = decimal.Zero
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		h.Decimal = hoursOrZero(s)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("hours %s: %w", b, err)
	}
	h.Decimal = d
	return nil
}

func (JSONExtractor) Extract(_ context.Context, name string, r io.Reader) ([]payroll.TimesheetRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw []jsonRecord
	if data[0] == '[' {
		err = json.Unmarshal(data, &raw)
	} else {
		var env struct {
			Records []jsonRecord `json:"records"`
		}
		err = json.Unmarshal(data, &env)
		raw = env.Records
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	out := make([]payroll.TimesheetRecord, 0, len(raw))
	for _, jr := range raw {
		rec := payroll.TimesheetRecord{
			Name:        strings.TrimSpace(jr.Name),
			Client:      strings.TrimSpace(jr.Client),
			SiteAddress: strings.TrimSpace(jr.SiteAddress),
			Department:  strings.TrimSpace(jr.Department),
			DateRange:   strings.TrimSpace(jr.DateRange),
		}
		for _, d := range jr.Daily {
			rec.Daily = append(rec.Daily, payroll.DailyHoursEntry{Weekday: d.Weekday, Hours: d.Hours.Decimal})
		}
		out = append(out, rec)
	}
	return out, nil
}
