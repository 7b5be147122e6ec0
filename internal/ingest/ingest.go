package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkbdata/odeingest/internal/frame"
	"github.com/mkbdata/odeingest/internal/locale"
)

// Plan declares which columns get typed conversion. Columns not named in
// any list stay text.
type Plan struct {
	DateColumns    []string
	IntegerColumns []string
	FloatColumns   []string
}

// DateRangeFilter keeps only rows whose date, in any of the named columns,
// falls within [Start, End] inclusive. Columns are re-parsed under Layout
// for the comparison.
//
// Two quirks are deliberate and must not be "fixed" here: a filter naming
// no existing column is a silent pass-through, and a filter matching zero
// rows returns the unfiltered frame rather than an empty one. Both signal
// misconfiguration upstream; emptying the dataset silently would be worse.
// Flagged for product-owner review.
type DateRangeFilter struct {
	Columns []string
	Start   time.Time
	End     time.Time
	Layout  string // empty means the canonical ddmmyyyy layout
}

// Diagnostics records what the reader actually did to a file. Every silent
// fallback in the pipeline is surfaced here so tests and operators can
// assert on outcomes instead of scraping logs.
type Diagnostics struct {
	Encoding       string            `json:"encoding"`
	Rows           int               `json:"rows"`
	Columns        int               `json:"columns"`
	DroppedColumns []string          `json:"droppedColumns,omitempty"`
	SkippedColumns []string          `json:"skippedColumns,omitempty"`
	DateLayouts    map[string]string `json:"dateLayouts,omitempty"`
	FloatRedirects []string          `json:"floatRedirects,omitempty"`
	FilterApplied  bool              `json:"filterApplied"`
	FilterFallback bool              `json:"filterFallback"`
}

// Reader reads export files into typed frames.
type Reader struct {
	log *slog.Logger
}

// NewReader returns a Reader logging through the given logger.
// A nil logger falls back to slog.Default.
func NewReader(log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{log: log}
}

// Read loads one file, resolves its encoding, cleans it structurally,
// applies the type plan and the optional date filter, and returns the typed
// frame. An undecodable file is fatal; a declared column missing from the
// file is a warning and the column is skipped.
func (r *Reader) Read(ctx context.Context, path string, plan Plan, filter *DateRangeFilter) (*frame.Frame, Diagnostics, error) {
	var diag Diagnostics

	data, encoding, err := decodeFile(path)
	if err != nil {
		return nil, diag, err
	}
	diag.Encoding = encoding

	f, dropped, err := parseFrame(data, 0)
	if err != nil {
		return nil, diag, fmt.Errorf("parse %s: %w", path, err)
	}
	diag.DroppedColumns = dropped
	diag.Rows = f.NumRows()
	diag.Columns = f.NumColumns()

	r.log.Info("file read",
		"file", path,
		"encoding", encoding,
		"rows", diag.Rows,
		"columns", diag.Columns,
	)
	if len(dropped) > 0 {
		r.log.Info("dropped placeholder columns", "file", path, "columns", dropped)
	}

	if err := r.convert(ctx, f, plan, &diag); err != nil {
		return nil, diag, err
	}

	if filter != nil {
		f = r.applyDateFilter(f, filter, &diag)
	}
	diag.Rows = f.NumRows()

	return f, diag, nil
}

// convResult carries one column's conversion outcome back from its worker.
type convResult struct {
	column     string
	dateLayout string
	redirected bool
	skipped    bool
}

// convert applies the declared conversions. Columns are independent, so
// each declared column converts on its own goroutine; this is purely an
// optimization and the results are merged deterministically afterwards.
func (r *Reader) convert(ctx context.Context, f *frame.Frame, plan Plan, diag *Diagnostics) error {
	type job struct {
		column string
		kind   frame.Kind
	}
	var jobs []job
	for _, c := range plan.DateColumns {
		jobs = append(jobs, job{c, frame.KindDate})
	}
	for _, c := range plan.IntegerColumns {
		jobs = append(jobs, job{c, frame.KindInteger})
	}
	for _, c := range plan.FloatColumns {
		jobs = append(jobs, job{c, frame.KindFloat})
	}
	if len(jobs) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results []convResult
	)
	g, _ := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res := convResult{column: j.column}
			col, ok := f.Column(j.column)
			if !ok {
				res.skipped = true
			} else {
				switch j.kind {
				case frame.KindDate:
					res.dateLayout = convertDateColumn(col)
				case frame.KindInteger:
					res.redirected = convertIntegerColumn(col)
				case frame.KindFloat:
					convertFloatColumn(col)
				}
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].column < results[j].column })
	for _, res := range results {
		switch {
		case res.skipped:
			diag.SkippedColumns = append(diag.SkippedColumns, res.column)
			r.log.Warn("declared column not in file, skipping", "column", res.column)
		case res.redirected:
			diag.FloatRedirects = append(diag.FloatRedirects, res.column)
			r.log.Info("integer column contains decimals, converted as float", "column", res.column)
		case res.dateLayout != "":
			if diag.DateLayouts == nil {
				diag.DateLayouts = make(map[string]string)
			}
			diag.DateLayouts[res.column] = res.dateLayout
		}
	}
	return nil
}

// convertDateColumn resolves the column's date format and rewrites every
// parseable value to the canonical ddmmyyyy string. Returns the resolved
// layout ("auto" for the day-first fallback), or "" when nothing parsed and
// the column was left as text.
func convertDateColumn(col *frame.Column) string {
	raw := col.NonNull(0)

	if layout, ok := locale.DetectDateLayout(raw); ok {
		rewriteDates(col, func(s string) (time.Time, bool) {
			return locale.ParseDate(s, layout)
		})
		return layout
	}

	// No fixed format parsed anything: locale-agnostic day-first fallback.
	anyParsed := false
	for _, v := range raw {
		if _, ok := locale.ParseDateAuto(v); ok {
			anyParsed = true
			break
		}
	}
	if !anyParsed {
		return "" // column stays text
	}
	rewriteDates(col, locale.ParseDateAuto)
	return "auto"
}

func rewriteDates(col *frame.Column, parse func(string) (time.Time, bool)) {
	col.Kind = frame.KindDate
	for i, v := range col.Cells {
		if !v.Valid {
			col.Cells[i] = frame.Null(frame.KindDate)
			continue
		}
		t, ok := parse(v.Text)
		if !ok {
			col.Cells[i] = frame.Null(frame.KindDate)
			continue
		}
		col.Cells[i] = frame.Date(locale.Canonical(t))
	}
}

// convertIntegerColumn converts a column to integers, unless any value in
// the column contains a comma: then the data is fractional under the
// decimal convention and the whole column converts as float instead.
// Typing is holistic per column, never mixed per cell.
func convertIntegerColumn(col *frame.Column) bool {
	for _, v := range col.Cells {
		if v.Valid && strings.Contains(v.Text, ",") {
			convertFloatColumn(col)
			return true
		}
	}

	col.Kind = frame.KindInteger
	for i, v := range col.Cells {
		if !v.Valid {
			col.Cells[i] = frame.Null(frame.KindInteger)
			continue
		}
		n, ok := locale.ParseInt(v.Text)
		if !ok {
			col.Cells[i] = frame.Null(frame.KindInteger)
			continue
		}
		col.Cells[i] = frame.Int(n)
	}
	return false
}

func convertFloatColumn(col *frame.Column) {
	col.Kind = frame.KindFloat
	for i, v := range col.Cells {
		if !v.Valid {
			col.Cells[i] = frame.Null(frame.KindFloat)
			continue
		}
		f, ok := locale.ParseFloat(v.Text)
		if !ok {
			col.Cells[i] = frame.Null(frame.KindFloat)
			continue
		}
		col.Cells[i] = frame.Float(f)
	}
}

// applyDateFilter builds an OR-mask across the filter's columns and keeps
// rows within [Start, End]. See DateRangeFilter for the pass-through quirks.
func (r *Reader) applyDateFilter(f *frame.Frame, filter *DateRangeFilter, diag *Diagnostics) *frame.Frame {
	layout := filter.Layout
	if layout == "" {
		layout = locale.CanonicalDateLayout
	}

	mask := make([]bool, f.NumRows())
	present := 0
	for _, name := range filter.Columns {
		col, ok := f.Column(name)
		if !ok {
			r.log.Warn("date filter column not in frame", "column", name)
			continue
		}
		present++
		for i, v := range col.Cells {
			if !v.Valid {
				continue
			}
			t, ok := locale.ParseDate(v.String(), layout)
			if !ok {
				continue
			}
			if !t.Before(filter.Start) && !t.After(filter.End) {
				mask[i] = true
			}
		}
	}

	if present == 0 {
		return f
	}
	diag.FilterApplied = true

	matched := 0
	for _, m := range mask {
		if m {
			matched++
		}
	}
	if matched == 0 {
		// Zero matches means the filter is almost certainly misconfigured;
		// pass everything through instead of producing an empty load.
		diag.FilterFallback = true
		r.log.Warn("date filter matched no rows, returning unfiltered set",
			"columns", filter.Columns,
			"start", filter.Start.Format("2006-01-02"),
			"end", filter.End.Format("2006-01-02"),
		)
		return f
	}

	filtered, err := f.Select(mask)
	if err != nil {
		// Mask is built from the frame itself; length mismatch cannot happen.
		r.log.Error("date filter mask mismatch", "error", err)
		return f
	}
	r.log.Info("date filter applied", "before", f.NumRows(), "after", filtered.NumRows())
	return filtered
}
