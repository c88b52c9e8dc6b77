/*
Package extract turns uploaded files into payroll.TimesheetRecords.

PURPOSE:
  Extraction is a pluggable collaborator. The engine only sees
  TimesheetRecords; how a document becomes one is up to the Extractor
  registered for its file extension.

BATCH RULES:
  - Each uploaded file is handled independently.
  - A .zip is expanded and every supported member is extracted.
  - A failure is reported as a *payroll.FileError for that file (or
    member) and the batch continues with the rest.
  - Unsupported members inside an archive are skipped silently; an
    unsupported top-level file is reported.
  - An archive member that inflates past the member limit is reported
    with payroll.ErrMemberTooLarge and never fully decompressed.

BUILT-IN EXTRACTORS:
  .json  - JSONExtractor (records array or {"records": [...]})
  .csv   - CSVExtractor  (one row per day, grouped by name)

SEE ALSO:
  - hours.go: decimal and H:MM hour parsing shared by extractors
*/
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/paycompare/payroll"
)

// Extractor reads zero or more timesheet records from one document.
type Extractor interface {
	Extract(ctx context.Context, name string, r io.Reader) ([]payroll.TimesheetRecord, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, name string, r io.Reader) ([]payroll.TimesheetRecord, error)

func (f ExtractorFunc) Extract(ctx context.Context, name string, r io.Reader) ([]payroll.TimesheetRecord, error) {
	return f(ctx, name, r)
}

// =============================================================================
// REGISTRY
// =============================================================================

const (
	zipExt = ".zip"

	defaultMaxMemberBytes = 64 << 20
)

// Registry maps lowercase file extensions to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
	workers    int
	maxMember  int64
	now        func() time.Time
}

// NewRegistry returns a registry with the built-in JSON and CSV extractors.
func NewRegistry() *Registry {
	r := &Registry{
		extractors: make(map[string]Extractor),
		workers:    4,
		maxMember:  defaultMaxMemberBytes,
		now:        time.Now,
	}
	r.Register(".json", JSONExtractor{})
	r.Register(".csv", CSVExtractor{})
	return r
}

// Register adds or replaces the extractor for ext (".pdf", "docx", ...).
func (r *Registry) Register(ext string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[normalizeExt(ext)] = e
}

// SetWorkers bounds how many uploaded files are extracted concurrently.
func (r *Registry) SetWorkers(n int) {
	if n > 0 {
		r.workers = n
	}
}

// SetMaxMemberBytes caps the decompressed size of a single archive member.
func (r *Registry) SetMaxMemberBytes(n int64) {
	if n > 0 {
		r.maxMember = n
	}
}

// SetClock overrides the ExtractedOn timestamp source.
func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Supports reports whether name can be extracted (archives included).
func (r *Registry) Supports(name string) bool {
	ext := normalizeExt(path.Ext(name))
	if ext == zipExt {
		return true
	}
	_, ok := r.lookup(ext)
	return ok
}

// Extensions lists registered extensions, sorted, plus ".zip".
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{zipExt}
	for ext := range r.extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(ext string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[ext]
	return e, ok
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// =============================================================================
// BATCH EXTRACTION
// =============================================================================

// Upload is one file as received from a client.
type Upload struct {
	Name string
	Data []byte
}

// Result collects the records and per-file failures of one batch.
type Result struct {
	Records []payroll.TimesheetRecord
	Errors  []*payroll.FileError
	Files   int // documents actually extracted, archive members included
}

// ExtractAll extracts every upload. Output keeps upload order. Only a
// cancelled ctx stops the batch early.
func (r *Registry) ExtractAll(ctx context.Context, uploads []Upload) (Result, error) {
	parts := make([]Result, len(uploads))
	extractedOn := r.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, up := range uploads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = r.extractUpload(gctx, up, extractedOn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, p := range parts {
		res.Records = append(res.Records, p.Records...)
		res.Errors = append(res.Errors, p.Errors...)
		res.Files += p.Files
	}
	return res, nil
}

func (r *Registry) extractUpload(ctx context.Context, up Upload, extractedOn time.Time) Result {
	ext := normalizeExt(path.Ext(up.Name))
	if ext == zipExt {
		return r.extractZip(ctx, up, extractedOn)
	}

	e, ok := r.lookup(ext)
	if !ok {
		return Result{Errors: []*payroll.FileError{{File: up.Name, Err: payroll.ErrUnsupportedFormat}}}
	}
	recs, err := e.Extract(ctx, up.Name, bytes.NewReader(up.Data))
	if err != nil {
		return Result{Errors: []*payroll.FileError{{File: up.Name, Err: err}}}
	}
	return Result{Records: stamp(recs, up.Name, extractedOn), Files: 1}
}

func (r *Registry) extractZip(ctx context.Context, up Upload, extractedOn time.Time) Result {
	zr, err := zip.NewReader(bytes.NewReader(up.Data), int64(len(up.Data)))
	if err != nil {
		return Result{Errors: []*payroll.FileError{{
			File: up.Name,
			Err:  fmt.Errorf("%w: %v", payroll.ErrCorruptContainer, err),
		}}}
	}

	var res Result
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		e, ok := r.lookup(normalizeExt(path.Ext(f.Name)))
		if !ok {
			continue
		}

		recs, err := extractMember(ctx, e, f, r.maxMember)
		res.Files++
		if err != nil {
			res.Errors = append(res.Errors, &payroll.FileError{File: up.Name, Member: f.Name, Err: err})
			continue
		}
		res.Records = append(res.Records, stamp(recs, path.Base(f.Name), extractedOn)...)
	}

	if res.Files == 0 {
		res.Errors = append(res.Errors, &payroll.FileError{File: up.Name, Err: payroll.ErrEmptyContainer})
	}
	return res
}

// extractMember inflates at most limit bytes of f before handing it to e.
// The declared size in the archive header is checked first but not trusted.
func extractMember(ctx context.Context, e Extractor, f *zip.File, limit int64) ([]payroll.TimesheetRecord, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", payroll.ErrMemberTooLarge, f.UncompressedSize64, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payroll.ErrCorruptContainer, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payroll.ErrCorruptContainer, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit %d", payroll.ErrMemberTooLarge, limit)
	}
	return e.Extract(ctx, f.Name, bytes.NewReader(data))
}

func stamp(recs []payroll.TimesheetRecord, source string, at time.Time) []payroll.TimesheetRecord {
	for i := range recs {
		if recs[i].SourceFile == "" {
			recs[i].SourceFile = source
		}
		if recs[i].ExtractedOn.IsZero() {
			recs[i].ExtractedOn = at
		}
	}
	return recs
}
