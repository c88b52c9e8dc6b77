/*
handlers.go - HTTP API handlers for the pay comparison service

PURPOSE:
  Exposes timesheet pricing, history and rate management via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  payroll engine, extractors and history store.

ENDPOINTS:
  Timesheets:
    POST   /api/timesheets/upload      Multipart files -> extract -> price -> persist
    POST   /api/timesheets             JSON records -> price -> persist

  History:
    GET    /api/history                Filtered history (range, from, to, limit)
    GET    /api/history/summary        Weekly summary over the same filter
    GET    /api/history/export         xlsx of the filter, or of ?ids=
    POST   /api/history/paid           Mark records paid
    POST   /api/history/delete         Delete records
    GET    /api/matches                Distinct name matches

  Rates:
    GET    /api/rates                  Current snapshot info
    GET    /api/rates/lookup?name=     Resolve a name in both tables
    POST   /api/rates/reload           Discard cached tables and reload
    POST   /api/rates/{table}/upload   Replace a rate workbook, then reload

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: History persistence
  - Rates: Cached rate tables (loaded lazily, reloaded on demand)
  - Enricher: Batch pricing against one rate snapshot
  - Extract: File extractors by extension

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Extract, price and persist
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown record or rate table
  - 413: Upload too large
  - 422: Upload produced no records
  - 503: Rate tables could not be loaded
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/paycompare/export"
	"github.com/warp/paycompare/extract"
	"github.com/warp/paycompare/logger"
	"github.com/warp/paycompare/metrics"
	"github.com/warp/paycompare/payroll"
	"github.com/warp/paycompare/ratesheet"
)

// Rate table names used in routes and metrics.
const (
	TableDefault   = "default"
	TableAlternate = "alternate"
)

// multipart form fields
const (
	formFiles = "files"
	formFile  = "file"
)

const (
	defaultMaxUploadBytes = 64 << 20
	defaultHistoryLimit   = 1000
	multipartMemory       = 32 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    payroll.HistoryStore
	Rates    *payroll.RateStore
	Enricher *payroll.Enricher
	Extract  *extract.Registry
	Metrics  *metrics.Manager
	Log      logger.Logger

	// Sources are the workbook sources behind Rates, keyed by table name.
	// Rate sheet uploads replace the first path of the matching source.
	Sources map[string]*ratesheet.Source

	MaxUploadBytes int64
	HistoryLimit   int
	Now            func() time.Time
}

// NewHandler creates a handler with default collaborators. Callers override
// exported fields before building the router.
func NewHandler(store payroll.HistoryStore, rates *payroll.RateStore) *Handler {
	return &Handler{
		Store:          store,
		Rates:          rates,
		Enricher:       payroll.NewEnricher(rates),
		Extract:        extract.NewRegistry(),
		Log:            logger.Nop(),
		Sources:        make(map[string]*ratesheet.Source),
		MaxUploadBytes: defaultMaxUploadBytes,
		HistoryLimit:   defaultHistoryLimit,
		Now:            time.Now,
	}
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

// UploadTimesheets extracts records from uploaded files, prices and stores them.
// Files that fail are reported and skipped; the rest of the batch continues.
func (h *Handler) UploadTimesheets(w http.ResponseWriter, r *http.Request) {
	if err := h.parseUpload(w, r); err != nil {
		writeUploadError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[formFiles]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded", fmt.Errorf("expected multipart field %q", formFiles))
		return
	}

	uploads := make([]extract.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to read upload", err)
			return
		}
		uploads = append(uploads, extract.Upload{Name: fh.Filename, Data: data})
	}

	res, err := h.Extract.ExtractAll(r.Context(), uploads)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Extraction cancelled", err)
		return
	}
	for _, fe := range res.Errors {
		h.Log.Warn(r.Context(), "file skipped",
			logger.String("file", fe.File),
			logger.String("member", fe.Member),
			logger.Error(fe.Err),
		)
	}
	h.Metrics.RecordFileErrors(len(res.Errors))

	if len(res.Records) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "No timesheet records could be extracted",
			Details: toFileErrorDTOs(res.Errors),
		})
		return
	}

	resp, status, err := h.priceAndStore(r.Context(), res.Records)
	if err != nil {
		writeError(w, status, "Failed to process timesheets", err)
		return
	}
	resp.FilesProcessed = res.Files
	resp.FileErrors = toFileErrorDTOs(res.Errors)
	writeJSON(w, http.StatusCreated, resp)
}

// CreateTimesheets prices records posted as JSON, in the same shape the JSON
// extractor accepts.
func (h *Handler) CreateTimesheets(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	recs, err := extract.JSONExtractor{}.Extract(r.Context(), "", r.Body)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	if len(recs) == 0 {
		writeError(w, http.StatusBadRequest, "No records in request", nil)
		return
	}
	now := h.Now().UTC()
	for i := range recs {
		recs[i].ExtractedOn = now
	}

	resp, status, err := h.priceAndStore(r.Context(), recs)
	if err != nil {
		writeError(w, status, "Failed to process timesheets", err)
		return
	}
	resp.FileErrors = []FileErrorDTO{}
	writeJSON(w, http.StatusCreated, resp)
}

// priceAndStore enriches recs against the current rates and appends them to
// history. Duplicates are reported, not stored.
func (h *Handler) priceAndStore(ctx context.Context, recs []payroll.TimesheetRecord) (UploadResponse, int, error) {
	if err := h.ensureRates(ctx); err != nil {
		return UploadResponse{}, http.StatusServiceUnavailable, err
	}

	start := time.Now()
	batch := h.Enricher.EnrichBatch(recs)
	h.Metrics.RecordBatch(len(batch.Records), time.Since(start))
	h.recordPriced(batch.Records)

	persisted, err := payroll.PersistBatch(ctx, h.Store, batch.Records)
	if err != nil {
		h.Log.Error(ctx, "persist batch failed",
			logger.String("batch_id", batch.ID),
			logger.Int("inserted", len(persisted.Inserted)),
			logger.Error(err),
		)
		return UploadResponse{}, http.StatusInternalServerError, err
	}
	h.Metrics.RecordDuplicates(len(persisted.Duplicates))

	h.Log.Info(ctx, "batch priced",
		logger.String("batch_id", batch.ID),
		logger.Int("records", len(batch.Records)),
		logger.Int("inserted", len(persisted.Inserted)),
		logger.Int("duplicates", len(persisted.Duplicates)),
	)

	return UploadResponse{
		BatchID:        batch.ID,
		UploadedAt:     formatTime(batch.UploadedAt),
		RateGeneration: batch.RateGeneration,
		Records:        toComparisonRecordDTOs(persisted.Inserted),
		Duplicates:     toComparisonRecordDTOs(persisted.Duplicates),
	}, http.StatusCreated, nil
}

// ensureRates loads the rate tables on first use.
func (h *Handler) ensureRates(ctx context.Context) error {
	if h.Rates.Current().Loaded() {
		return nil
	}
	if err := h.Rates.Load(ctx); err != nil {
		h.Log.Error(ctx, "initial rate load failed", logger.Error(err))
		return fmt.Errorf("%w: %v", payroll.ErrNotLoaded, err)
	}
	h.recordReload(ctx, h.Rates.Current(), nil)
	return nil
}

func (h *Handler) recordPriced(recs []payroll.ComparisonRecord) {
	if h.Metrics == nil {
		return
	}
	for _, rec := range recs {
		h.Metrics.RecordPriced(metrics.SchemeDefault, rec.MatchRatio > 0)
		h.Metrics.RecordPriced(metrics.SchemeAlternate, rec.AlternateMatched)
	}
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// ListHistory returns stored records, newest upload first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.queryHistory(r)
	if err != nil {
		writeStoreError(w, "Failed to query history", err)
		return
	}
	writeJSON(w, http.StatusOK, toComparisonRecordDTOs(recs))
}

// HistorySummary groups the filtered history by date range.
func (h *Handler) HistorySummary(w http.ResponseWriter, r *http.Request) {
	recs, err := h.queryHistory(r)
	if err != nil {
		writeStoreError(w, "Failed to query history", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryRowDTOs(payroll.WeeklySummary(recs)))
}

// ExportHistory streams an xlsx workbook of the selected records.
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	var (
		recs []payroll.ComparisonRecord
		err  error
	)
	if ids := parseIDs(r.URL.Query()["ids"]); len(ids) > 0 {
		recs, err = h.Store.Get(r.Context(), ids)
	} else {
		recs, err = h.queryHistory(r)
	}
	if err != nil {
		writeStoreError(w, "Failed to query history", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, recs); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(h.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// MarkPaid flags the selected records as paid.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "mark paid", h.Store.MarkPaid)
}

// DeleteRecords removes the selected records from history.
func (h *Handler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, "delete", h.Store.Delete)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, []string) (int, error)) {
	var req IDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ids := parseIDs(req.IDs)
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "No ids selected", nil)
		return
	}

	n, err := apply(r.Context(), ids)
	if err != nil {
		writeStoreError(w, "Failed to "+action, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "No matching records", payroll.ErrRecordNotFound)
		return
	}

	h.Log.Info(r.Context(), "bulk "+action,
		logger.Int("requested", len(ids)),
		logger.Int("affected", n),
	)
	writeJSON(w, http.StatusOK, BulkResultDTO{Requested: len(ids), Affected: n})
}

// ListMatches returns the distinct name pairings in history.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.Store.Matches(r.Context())
	if err != nil {
		writeStoreError(w, "Failed to list matches", err)
		return
	}
	dtos := make([]NameMatchDTO, len(matches))
	for i, m := range matches {
		dtos[i] = NameMatchDTO{Name: m.Name, MatchedAs: m.MatchedAs, Ratio: m.Ratio}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// queryHistory applies the range/from/to/limit query parameters.
func (h *Handler) queryHistory(r *http.Request) ([]payroll.ComparisonRecord, error) {
	q := r.URL.Query()

	limit := h.HistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: limit must be a non-negative integer", payroll.ErrInvalidRange)
		}
		if n > 0 && (h.HistoryLimit <= 0 || n < h.HistoryLimit) {
			limit = n
		}
	}

	dr, ok, err := parseRange(q.Get("range"), q.Get("from"), q.Get("to"), h.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return h.Store.QueryRecent(r.Context(), limit)
	}
	return h.Store.QueryRange(r.Context(), dr, limit)
}

// parseRange resolves a preset or a custom from/to pair. ok is false when no
// filter was requested.
func parseRange(preset, from, to string, now time.Time) (dr payroll.DateRange, ok bool, err error) {
	p := payroll.RangePreset(preset)
	if p == "" && (from != "" || to != "") {
		p = payroll.RangeCustom
	}

	switch p {
	case "":
		return payroll.DateRange{}, false, nil
	case payroll.RangeCustom:
		if from == "" {
			return payroll.DateRange{}, false, fmt.Errorf("%w: from is required", payroll.ErrInvalidRange)
		}
		start, err := time.ParseInLocation(time.DateOnly, from, now.Location())
		if err != nil {
			return payroll.DateRange{}, false, fmt.Errorf("%w: from: %v", payroll.ErrInvalidRange, err)
		}
		end := now
		if to != "" {
			if end, err = time.ParseInLocation(time.DateOnly, to, now.Location()); err != nil {
				return payroll.DateRange{}, false, fmt.Errorf("%w: to: %v", payroll.ErrInvalidRange, err)
			}
		}
		dr, err = payroll.NewDateRange(start, end)
		return dr, err == nil, err
	default:
		dr, err = payroll.PresetRange(p, now)
		return dr, err == nil, err
	}
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

// GetRates describes the rate snapshot in effect.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ratesDTO(h.Rates.Current()))
}

// LookupRate resolves ?name= against both current tables.
func (h *Handler) LookupRate(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if err := h.ensureRates(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Rate tables unavailable", err)
		return
	}

	snap := h.Rates.Current()
	def, defOK := payroll.ResolveRate(name, snap.Default)
	alt, altOK := payroll.ResolveRate(name, snap.Alternate)
	writeJSON(w, http.StatusOK, RateLookupResponse{
		Name:      name,
		Key:       string(payroll.Normalize(name)),
		Default:   toResolutionDTO(def, defOK),
		Alternate: toResolutionDTO(alt, altOK),
	})
}

// ReloadRates discards the cached tables and rebuilds them. On failure the
// previous tables stay in effect.
func (h *Handler) ReloadRates(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Rates.Reload(r.Context())
	h.recordReload(r.Context(), snap, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload rates", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ratesDTO(snap))
}

// UploadRateSheet replaces the workbook behind {table} and reloads.
func (h *Handler) UploadRateSheet(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	src, ok := h.Sources[table]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown rate table", fmt.Errorf("table %q", table))
		return
	}
	if len(src.Paths) == 0 {
		writeError(w, http.StatusConflict, "Rate table has no configured path", fmt.Errorf("table %q", table))
		return
	}

	if err := h.parseUpload(w, r); err != nil {
		writeUploadError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fhs := r.MultipartForm.File[formFile]
	if len(fhs) == 0 {
		writeError(w, http.StatusBadRequest, "No workbook uploaded", fmt.Errorf("expected multipart field %q", formFile))
		return
	}
	data, err := readFormFile(fhs[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	parsed, err := ratesheet.LoadReader(bytes.NewReader(data), src.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate workbook", err)
		return
	}
	if parsed.Len() == 0 {
		writeError(w, http.StatusBadRequest, "Workbook has no rate rows",
			fmt.Errorf("expected a %q header row", ratesheet.HeaderName))
		return
	}

	dest := src.Paths[0]
	if err := replaceFile(dest, data); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save workbook", err)
		return
	}
	h.Log.Info(r.Context(), "rate workbook replaced",
		logger.String("table", table),
		logger.String("path", dest),
		logger.Int("entries", parsed.Len()),
	)

	snap, err := h.Rates.Reload(r.Context())
	h.recordReload(r.Context(), snap, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Workbook saved but reload failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ratesDTO(snap))
}

func (h *Handler) recordReload(ctx context.Context, snap *payroll.RateSnapshot, err error) {
	if err != nil {
		h.Log.Error(ctx, "rate reload failed", logger.Error(err))
		h.Metrics.RecordRateReload(err, 0, 0, 0)
		return
	}
	h.Log.Info(ctx, "rates loaded",
		logger.Int("default_entries", snap.Default.Len()),
		logger.Int("alternate_entries", snap.Alternate.Len()),
		logger.Strings("default_sources", h.sourcePaths(TableDefault)),
		logger.Strings("alternate_sources", h.sourcePaths(TableAlternate)),
		logger.Any("generation", snap.Generation),
	)
	h.Metrics.RecordRateReload(nil, snap.Default.Len(), snap.Alternate.Len(), snap.Generation)
}

func (h *Handler) ratesDTO(snap *payroll.RateSnapshot) RatesDTO {
	dto := RatesDTO{
		Loaded:           snap.Loaded(),
		Generation:       snap.Generation,
		DefaultEntries:   snap.Default.Len(),
		AlternateEntries: snap.Alternate.Len(),
		DefaultSources:   h.sourcePaths(TableDefault),
		AlternateSources: h.sourcePaths(TableAlternate),
	}
	if snap.Loaded() {
		dto.LoadedAt = formatTime(snap.LoadedAt)
	}
	return dto
}

func (h *Handler) sourcePaths(table string) []string {
	if src, ok := h.Sources[table]; ok && src.Paths != nil {
		return src.Paths
	}
	return []string{}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", RatesLoaded: h.Rates.Current().Loaded()})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseUpload caps the body at MaxUploadBytes and parses the multipart form.
func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) error {
	if r.ContentLength > h.MaxUploadBytes {
		return &http.MaxBytesError{Limit: h.MaxUploadBytes}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	return r.ParseMultipartForm(multipartMemory)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// replaceFile writes data next to dest and renames it into place.
func replaceFile(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// parseIDs accepts repeated values and comma-separated lists.
func parseIDs(values []string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large",
			fmt.Errorf("limit is %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid upload", err)
}
