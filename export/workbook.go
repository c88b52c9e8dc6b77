// Package export renders comparison records as an xlsx workbook: one bold,
// shaded header row plus one row per record, in the order given.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/paycompare/payroll"
)

const (
	// ContentType is the MIME type of the written workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// SheetName names the single worksheet.
	SheetName = "Timesheets"

	headerFill = "D9D9D9"
)

// Headers are the column titles, in column order.
var Headers = []string{
	"Name", "Matched As", "Ratio", "Client", "Site Address", "Department",
	"Weekday Hours", "Saturday Hours", "Sunday Hours",
	"Rate", "Pay", "Alt Rate", "Alt OT Rate", "Alt Pay", "Difference",
	"Date Range", "Extracted On", "Source File", "Uploaded At", "Paid?",
}

// Filename returns a download name stamped with at.
func Filename(at time.Time) string {
	return fmt.Sprintf("timesheets_%s.xlsx", at.UTC().Format("20060102_150405"))
}

// WriteWorkbook writes recs to w.
func WriteWorkbook(w io.Writer, recs []payroll.ComparisonRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, rec := range recs {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := recordRow(rec)
		if err := f.SetSheetRow(SheetName, addr, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "B", 24); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func recordRow(r payroll.ComparisonRecord) []any {
	paid := "No"
	if r.Paid {
		paid = "Yes"
	}
	return []any{
		r.Name,
		r.MatchedAs,
		r.MatchRatio,
		r.Client,
		r.SiteAddress,
		r.Department,
		r.WeekdayHours.InexactFloat64(),
		r.SaturdayHours.InexactFloat64(),
		r.SundayHours.InexactFloat64(),
		r.DefaultRate.InexactFloat64(),
		r.DefaultPay.Round(2).InexactFloat64(),
		r.AlternateRate.InexactFloat64(),
		r.AlternateOTRate.InexactFloat64(),
		r.AlternatePay.Round(2).InexactFloat64(),
		r.Difference().Round(2).InexactFloat64(),
		r.DateRange,
		formatTime(r.ExtractedOn),
		r.SourceFile,
		formatTime(r.UploadedAt),
		paid,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
