package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/paycompare/api"
	"github.com/warp/paycompare/export"
	"github.com/warp/paycompare/metrics"
	"github.com/warp/paycompare/payroll"
	"github.com/warp/paycompare/payroll/store"
	"github.com/warp/paycompare/ratesheet"
)

var fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const weekRange = "02.06.2025–08.06.2025"

// Ana works 60 weekday hours: default 50*10 + 10*10*1.5 = 650,
// alternate 50*10 + 10*13 = 630. Zed is in neither table: 8h at 15 = 120.
const timesheetsJSON = `{"records": [
  {"name": "Ana Silva", "client": "Acme", "date_range": "02.06.2025–08.06.2025", "daily": [
    {"weekday": "Monday", "hours": 12}, {"weekday": "Tuesday", "hours": 12},
    {"weekday": "Wednesday", "hours": 12}, {"weekday": "Thursday", "hours": 12},
    {"weekday": "Friday", "hours": "12:00"}]},
  {"name": "Zed", "date_range": "02.06.2025–08.06.2025", "daily": [
    {"weekday": "Monday", "hours": "8:00"}]}
]}`

const anaOnlyJSON = `[{"name": "ANA SILVA", "date_range": "09.06.2025–15.06.2025",
  "daily": [{"weekday": "Monday", "hours": 8}]}]`

type fixture struct {
	h      *api.Handler
	router http.Handler
	store  *store.Memory
}

func rateTables() (def, alt *payroll.RateTable) {
	def = payroll.NewRateTable(payroll.VariantSingleRate)
	def.Add(payroll.RawRateRow{Name: "Ana Silva", PayRate: decimal.NewFromInt(10)})
	alt = payroll.NewRateTable(payroll.VariantBaseAndOvertime)
	alt.Add(payroll.RawRateRow{
		Name:    "Ana Silva",
		PayRate: decimal.NewFromInt(10),
		OTRate:  decimal.NewNullDecimal(decimal.NewFromInt(13)),
	})
	return def, alt
}

func staticSource(t *payroll.RateTable) payroll.TableSource {
	return payroll.TableSourceFunc(func(context.Context) (*payroll.RateTable, error) { return t, nil })
}

func newFixtureWithRates(t *testing.T, rates *payroll.RateStore) *fixture {
	t.Helper()
	mem := store.NewMemory()
	h := api.NewHandler(mem, rates)
	h.Metrics = metrics.NewManager()
	h.Now = func() time.Time { return fixedNow }
	h.Enricher = payroll.NewEnricher(rates, payroll.WithClock(h.Now), payroll.WithWorkers(2))
	return &fixture{h: h, router: api.NewRouter(h, nil), store: mem}
}

func newFixture(t *testing.T) *fixture {
	def, alt := rateTables()
	return newFixtureWithRates(t, payroll.NewRateStore(staticSource(def), staticSource(alt)))
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	return f.do(t, http.MethodPost, path, strings.NewReader(body), "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type part struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, field string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func rateWorkbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func recordByName(t *testing.T, recs []api.ComparisonRecordDTO, name string) api.ComparisonRecordDTO {
	t.Helper()
	for _, r := range recs {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no record for %q", name)
	return api.ComparisonRecordDTO{}
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func TestCreateTimesheets_PricesBothSchemesAndPersists(t *testing.T) {
	// GIVEN: Rate tables that know Ana but not Zed
	f := newFixture(t)

	// WHEN: Posting both timesheets
	rec := f.postJSON(t, "/api/timesheets", timesheetsJSON)

	// THEN: Both are priced under each scheme and stored
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[api.UploadResponse](t, rec)
	require.Len(t, resp.Records, 2)
	assert.Empty(t, resp.Duplicates)
	assert.Equal(t, uint64(1), resp.RateGeneration)
	assert.NotEmpty(t, resp.BatchID)

	ana := recordByName(t, resp.Records, "Ana Silva")
	assert.Equal(t, 60.0, ana.WeekdayHours)
	assert.Equal(t, 650.0, ana.DefaultPay)
	assert.Equal(t, 630.0, ana.AlternatePay)
	assert.Equal(t, 13.0, ana.AlternateOTRate)
	assert.Equal(t, -20.0, ana.Difference)
	assert.Equal(t, 1.0, ana.MatchRatio)
	assert.Equal(t, "Ana Silva", ana.MatchedAs)
	assert.Equal(t, "Acme", ana.Client)
	assert.Equal(t, resp.BatchID, ana.BatchID)

	zed := recordByName(t, resp.Records, "Zed")
	assert.Equal(t, 15.0, zed.DefaultRate)
	assert.Equal(t, 120.0, zed.DefaultPay)
	assert.Equal(t, 120.0, zed.AlternatePay)
	assert.Equal(t, 22.5, zed.AlternateOTRate)
	assert.Equal(t, 0.0, zed.MatchRatio)
	assert.Empty(t, zed.MatchedAs)

	stored, err := f.store.QueryRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreateTimesheets_DuplicatesAreReportedNotStored(t *testing.T) {
	// GIVEN: A batch already uploaded
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)

	// WHEN: Uploading the same name/date ranges again
	rec := f.postJSON(t, "/api/timesheets", timesheetsJSON)

	// THEN: The results are still computed but reported as duplicates
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[api.UploadResponse](t, rec)
	assert.Empty(t, resp.Records)
	require.Len(t, resp.Duplicates, 2)
	assert.Equal(t, 650.0, recordByName(t, resp.Duplicates, "Ana Silva").DefaultPay)

	stored, err := f.store.QueryRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreateTimesheets_InvalidBody(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.postJSON(t, "/api/timesheets", "{not json").Code)
	assert.Equal(t, http.StatusBadRequest, f.postJSON(t, "/api/timesheets", `{"records": []}`).Code)
}

func TestUploadTimesheets_FileErrorsDoNotAbortBatch(t *testing.T) {
	// GIVEN: One good file, one corrupt archive and one unsupported file
	f := newFixture(t)
	body, ct := multipartBody(t, "files",
		part{name: "ana.json", data: []byte(anaOnlyJSON)},
		part{name: "broken.zip", data: []byte("not a zip")},
		part{name: "notes.txt", data: []byte("hello")},
	)

	// WHEN: Uploading them together
	rec := f.do(t, http.MethodPost, "/api/timesheets/upload", body, ct)

	// THEN: The good file is priced and the other two are reported
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[api.UploadResponse](t, rec)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "ANA SILVA", resp.Records[0].Name)
	assert.Equal(t, "Ana Silva", resp.Records[0].MatchedAs)
	assert.Equal(t, 80.0, resp.Records[0].DefaultPay)
	assert.Equal(t, "ana.json", resp.Records[0].SourceFile)
	assert.Equal(t, 1, resp.FilesProcessed)

	require.Len(t, resp.FileErrors, 2)
	assert.Equal(t, "broken.zip", resp.FileErrors[0].File)
	assert.Contains(t, resp.FileErrors[0].Error, payroll.ErrCorruptContainer.Error())
	assert.Equal(t, "notes.txt", resp.FileErrors[1].File)
	assert.Contains(t, resp.FileErrors[1].Error, payroll.ErrUnsupportedFormat.Error())
}

func TestUploadTimesheets_NothingExtracted(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, "files", part{name: "notes.txt", data: []byte("hello")})

	rec := f.do(t, http.MethodPost, "/api/timesheets/upload", body, ct)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes.txt")
}

func TestUploadTimesheets_NoFiles(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartBody(t, "other", part{name: "ana.json", data: []byte(anaOnlyJSON)})

	rec := f.do(t, http.MethodPost, "/api/timesheets/upload", body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTimesheets_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.h.MaxUploadBytes = 64
	body, ct := multipartBody(t, "files", part{name: "ana.json", data: bytes.Repeat([]byte(" "), 1024)})

	rec := f.do(t, http.MethodPost, "/api/timesheets/upload", body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCreateTimesheets_RatesUnavailable(t *testing.T) {
	// GIVEN: A default rate source that cannot be read
	failing := payroll.TableSourceFunc(func(context.Context) (*payroll.RateTable, error) {
		return nil, &payroll.RateSourceError{Path: "pay details.xlsx", Err: errors.New("zip: not a valid zip file")}
	})
	_, alt := rateTables()
	f := newFixtureWithRates(t, payroll.NewRateStore(failing, staticSource(alt)))

	// WHEN: Pricing a batch
	rec := f.postJSON(t, "/api/timesheets", timesheetsJSON)

	// THEN: Nothing is priced against half-loaded tables
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), payroll.ErrNotLoaded.Error())
}

// =============================================================================
// HISTORY
// =============================================================================

func TestListHistory_Filters(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"no filter", "", http.StatusOK, 2},
		{"this month", "?range=this_month", http.StatusOK, 2},
		{"last month", "?range=last_month", http.StatusOK, 0},
		{"custom covering upload", "?from=2025-06-15&to=2025-06-15", http.StatusOK, 2},
		{"custom open end", "?from=2025-06-01", http.StatusOK, 2},
		{"custom before upload", "?from=2025-01-01&to=2025-01-31", http.StatusOK, 0},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"unknown preset", "?range=forever", http.StatusBadRequest, 0},
		{"reversed range", "?from=2025-06-10&to=2025-06-01", http.StatusBadRequest, 0},
		{"bad date", "?from=15.06.2025", http.StatusBadRequest, 0},
		{"bad limit", "?limit=-3", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/history"+tt.query, nil, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				assert.Len(t, decode[[]api.ComparisonRecordDTO](t, rec), tt.count)
			}
		})
	}
}

func TestHistorySummary_GroupsByDateRange(t *testing.T) {
	// GIVEN: Two records in one week and one in the next
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", anaOnlyJSON).Code)

	// WHEN: Requesting the summary
	rec := f.do(t, http.MethodGet, "/api/history/summary", nil, "")

	// THEN: Weeks are newest first with summed pay
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]api.SummaryRowDTO](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, "09.06.2025–15.06.2025", rows[0].DateRange)
	assert.Equal(t, 1, rows[0].Entries)

	assert.Equal(t, weekRange, rows[1].DateRange)
	assert.Equal(t, 2, rows[1].Entries)
	assert.Equal(t, 68.0, rows[1].WeekdayHours)
	assert.Equal(t, 770.0, rows[1].DefaultPay)
	assert.Equal(t, 750.0, rows[1].AlternatePay)
	assert.Equal(t, -20.0, rows[1].Difference)
}

func TestMarkPaidAndDelete(t *testing.T) {
	f := newFixture(t)
	resp := decode[api.UploadResponse](t, f.postJSON(t, "/api/timesheets", timesheetsJSON))
	anaID := recordByName(t, resp.Records, "Ana Silva").ID

	// Mark paid
	rec := f.postJSON(t, "/api/history/paid", `{"ids": ["`+anaID+`", "missing"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, api.BulkResultDTO{Requested: 2, Affected: 1}, decode[api.BulkResultDTO](t, rec))

	history := decode[[]api.ComparisonRecordDTO](t, f.do(t, http.MethodGet, "/api/history", nil, ""))
	assert.True(t, recordByName(t, history, "Ana Silva").Paid)
	assert.False(t, recordByName(t, history, "Zed").Paid)

	// Validation
	assert.Equal(t, http.StatusBadRequest, f.postJSON(t, "/api/history/delete", `{"ids": []}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.postJSON(t, "/api/history/delete", `{"id": "x"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.postJSON(t, "/api/history/delete", `{"ids": ["missing"]}`).Code)

	// Delete
	rec = f.postJSON(t, "/api/history/delete", `{"ids": ["`+anaID+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	history = decode[[]api.ComparisonRecordDTO](t, f.do(t, http.MethodGet, "/api/history", nil, ""))
	require.Len(t, history, 1)
	assert.Equal(t, "Zed", history[0].Name)

	// A deleted record can be uploaded again
	again := decode[api.UploadResponse](t, f.postJSON(t, "/api/timesheets", timesheetsJSON))
	assert.Len(t, again.Records, 1)
	assert.Len(t, again.Duplicates, 1)
}

func TestExportHistory_SelectedIDs(t *testing.T) {
	// GIVEN: Two stored records
	f := newFixture(t)
	resp := decode[api.UploadResponse](t, f.postJSON(t, "/api/timesheets", timesheetsJSON))
	anaID := recordByName(t, resp.Records, "Ana Silva").ID

	// WHEN: Exporting only Ana
	rec := f.do(t, http.MethodGet, "/api/history/export?ids="+anaID, nil, "")

	// THEN: The workbook has one header row and one record row
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "timesheets_20250615_100000.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, export.Headers[0], rows[0][0])
	assert.Equal(t, "Ana Silva", rows[1][0])
}

func TestExportHistory_Filter(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)

	rec := f.do(t, http.MethodGet, "/api/history/export?range=this_month", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestListMatches(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)

	rec := f.do(t, http.MethodGet, "/api/matches", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]api.NameMatchDTO](t, rec)
	assert.Contains(t, matches, api.NameMatchDTO{Name: "Ana Silva", MatchedAs: "Ana Silva", Ratio: 1})
	assert.Contains(t, matches, api.NameMatchDTO{Name: "Zed", MatchedAs: "", Ratio: 0})
}

// =============================================================================
// RATES
// =============================================================================

func TestLookupRate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/rates/lookup?name=ANA%20S%C3%ADlva", nil, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.RateLookupResponse](t, rec)
	assert.Equal(t, "ana silva", resp.Key)
	assert.True(t, resp.Default.Matched)
	assert.Equal(t, 10.0, resp.Default.BaseRate)
	assert.Nil(t, resp.Default.OTRate)
	assert.True(t, resp.Alternate.Matched)
	require.NotNil(t, resp.Alternate.OTRate)
	assert.Equal(t, 13.0, *resp.Alternate.OTRate)

	rec = f.do(t, http.MethodGet, "/api/rates/lookup?name=Nobody", nil, "")
	resp = decode[api.RateLookupResponse](t, rec)
	assert.False(t, resp.Default.Matched)
	assert.Equal(t, 15.0, resp.Default.BaseRate)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/rates/lookup", nil, "").Code)
}

func TestReloadRates_FailureKeepsPreviousSnapshot(t *testing.T) {
	// GIVEN: Loaded rates whose source later breaks
	var broken atomic.Bool
	def, alt := rateTables()
	src := payroll.TableSourceFunc(func(context.Context) (*payroll.RateTable, error) {
		if broken.Load() {
			return nil, errors.New("disk gone")
		}
		return def, nil
	})
	f := newFixtureWithRates(t, payroll.NewRateStore(src, staticSource(alt)))

	rec := f.do(t, http.MethodPost, "/api/rates/reload", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), decode[api.RatesDTO](t, rec).Generation)

	// WHEN: Reloading after the failure
	broken.Store(true)
	rec = f.do(t, http.MethodPost, "/api/rates/reload", nil, "")

	// THEN: The reload fails and generation 1 is still served
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	info := decode[api.RatesDTO](t, f.do(t, http.MethodGet, "/api/rates", nil, ""))
	assert.True(t, info.Loaded)
	assert.Equal(t, uint64(1), info.Generation)
	assert.Equal(t, 1, info.DefaultEntries)
}

func TestUploadRateSheet_ReplacesWorkbookAndReloads(t *testing.T) {
	// GIVEN: Rates backed by workbook paths that do not exist yet
	dir := t.TempDir()
	defPath := filepath.Join(dir, "pay details.xlsx")
	altPath := filepath.Join(dir, "pay details ot.xlsx")
	defSrc := ratesheet.NewSource(payroll.VariantSingleRate, defPath)
	altSrc := ratesheet.NewSource(payroll.VariantBaseAndOvertime, altPath)
	f := newFixtureWithRates(t, payroll.NewRateStore(defSrc, altSrc))
	f.h.Sources = map[string]*ratesheet.Source{api.TableDefault: defSrc, api.TableAlternate: altSrc}

	info := decode[api.RatesDTO](t, f.do(t, http.MethodPost, "/api/rates/reload", nil, ""))
	assert.Equal(t, 0, info.DefaultEntries)

	// WHEN: Uploading a default rate workbook
	wb := rateWorkbook(t,
		[]any{"Name", "Pay Rate"},
		[]any{"Ana Silva", 11},
		[]any{"Bo Lind", 14.5},
	)
	body, ct := multipartBody(t, "file", part{name: "new rates.xlsx", data: wb})
	rec := f.do(t, http.MethodPost, "/api/rates/default/upload", body, ct)

	// THEN: The file is written to the configured path and tables reload
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info = decode[api.RatesDTO](t, rec)
	assert.Equal(t, uint64(2), info.Generation)
	assert.Equal(t, 2, info.DefaultEntries)
	assert.Equal(t, []string{defPath}, info.DefaultSources)
	_, err := os.Stat(defPath)
	assert.NoError(t, err)

	lookup := decode[api.RateLookupResponse](t, f.do(t, http.MethodGet, "/api/rates/lookup?name=bo%20lind", nil, ""))
	assert.Equal(t, 14.5, lookup.Default.BaseRate)
}

func TestUploadRateSheet_Rejects(t *testing.T) {
	dir := t.TempDir()
	defSrc := ratesheet.NewSource(payroll.VariantSingleRate, filepath.Join(dir, "d.xlsx"))
	altSrc := ratesheet.NewSource(payroll.VariantBaseAndOvertime, filepath.Join(dir, "a.xlsx"))
	f := newFixtureWithRates(t, payroll.NewRateStore(defSrc, altSrc))
	f.h.Sources = map[string]*ratesheet.Source{api.TableDefault: defSrc, api.TableAlternate: altSrc}

	tests := []struct {
		name   string
		table  string
		data   []byte
		status int
	}{
		{"unknown table", "bonus", rateWorkbook(t, []any{"Name", "Pay Rate"}, []any{"Ana", 1}), http.StatusNotFound},
		{"not a workbook", "default", []byte("plain text"), http.StatusBadRequest},
		{"no header row", "default", rateWorkbook(t, []any{"Who", "Rate"}, []any{"Ana", 1}), http.StatusBadRequest},
		{"missing OT column", "alternate", rateWorkbook(t, []any{"Name", "Pay Rate"}, []any{"Ana", 1}), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, "file", part{name: "rates.xlsx", data: tt.data})
			rec := f.do(t, http.MethodPost, "/api/rates/"+tt.table+"/upload", body, ct)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	_, err := os.Stat(filepath.Join(dir, "d.xlsx"))
	assert.True(t, os.IsNotExist(err))
}

// =============================================================================
// HEALTH AND METRICS
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.HealthDTO{Status: "ok", RatesLoaded: false}, decode[api.HealthDTO](t, rec))

	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `paycompare_records_priced_total{outcome="matched",scheme="default"} 1`)
	assert.Contains(t, out, `paycompare_records_priced_total{outcome="fallback",scheme="alternate"} 1`)
	assert.Contains(t, out, `paycompare_rate_reloads_total{result="success"} 1`)
	assert.Contains(t, out, `route="/api/timesheets`)

	rec = f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.True(t, decode[api.HealthDTO](t, rec).RatesLoaded)
}

func TestMetrics_PricedOutcomeFollowsEachTable(t *testing.T) {
	// GIVEN: Zed is only in the alternate table, Ana only in the default one
	def := payroll.NewRateTable(payroll.VariantSingleRate)
	def.Add(payroll.RawRateRow{Name: "Ana Silva", PayRate: decimal.NewFromInt(10)})
	alt := payroll.NewRateTable(payroll.VariantBaseAndOvertime)
	alt.Add(payroll.RawRateRow{
		Name:    "Zed",
		PayRate: decimal.NewFromInt(20),
		OTRate:  decimal.NewNullDecimal(decimal.NewFromInt(25)),
	})
	f := newFixtureWithRates(t, payroll.NewRateStore(staticSource(def), staticSource(alt)))

	// WHEN: Pricing both
	require.Equal(t, http.StatusCreated, f.postJSON(t, "/api/timesheets", timesheetsJSON).Code)

	// THEN: Each scheme counts the outcome its own table produced
	out := f.do(t, http.MethodGet, "/metrics", nil, "").Body.String()
	assert.Contains(t, out, `paycompare_records_priced_total{outcome="matched",scheme="default"} 1`)
	assert.Contains(t, out, `paycompare_records_priced_total{outcome="fallback",scheme="default"} 1`)
	assert.Contains(t, out, `paycompare_records_priced_total{outcome="matched",scheme="alternate"} 1`)
	assert.Contains(t, out, `paycompare_records_priced_total{outcome="fallback",scheme="alternate"} 1`)
}
