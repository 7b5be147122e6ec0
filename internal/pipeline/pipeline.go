// Package pipeline drives a full ingest run: discover and order a table's
// export files, read each one into a typed frame, reconcile it into the
// warehouse, and mark delta files as processed by moving them aside.
//
// Files are applied strictly in sequencer order, one at a time. Later delta
// files may depend on earlier ones having already updated the rows they now
// touch again, so there is no cross-file concurrency and no out-of-order
// application. A failed file stops the run for its table; the file is not
// marked processed and will be retried on the next invocation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mkbdata/odeingest/internal/frame"
	"github.com/mkbdata/odeingest/internal/ingest"
	"github.com/mkbdata/odeingest/internal/merge"
	"github.com/mkbdata/odeingest/internal/schema"
	"github.com/mkbdata/odeingest/internal/sequence"
)

// TableMerger is the slice of the merge engine the pipeline needs.
// Satisfied by *merge.Merger.
type TableMerger interface {
	EnsureSchema(ctx context.Context) error
	EnsureTable(ctx context.Context, t schema.Table) error
	Merge(ctx context.Context, f *frame.Frame, t schema.Table) (merge.Result, error)
}

// Options control one load run.
type Options struct {
	// From skips the first From files in processing order, for resuming a
	// run that stopped partway.
	From int

	// Max bounds how many files to process this run. Zero means all.
	Max int

	// FileTimeout bounds one file's read and merge. Zero means no limit.
	FileTimeout time.Duration

	// Filter optionally restricts rows by date range during ingestion.
	Filter *ingest.DateRangeFilter
}

// FileResult is the structured outcome of applying one file.
type FileResult struct {
	RunID       string             `json:"runId"`
	Table       string             `json:"table"`
	File        string             `json:"file"`
	Index       int                `json:"index"`
	Total       int                `json:"total"`
	Merge       merge.Result       `json:"merge"`
	Diagnostics ingest.Diagnostics `json:"diagnostics"`
	Duration    time.Duration      `json:"duration"`
}

// Pipeline wires the sequencer, the ingestion engine and the merge engine.
type Pipeline struct {
	dir    string
	reg    *schema.Registry
	reader *ingest.Reader
	merger TableMerger
	log    *slog.Logger
}

// New creates a pipeline over the given export directory.
func New(dir string, reg *schema.Registry, reader *ingest.Reader, merger TableMerger, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{dir: dir, reg: reg, reader: reader, merger: merger, log: log}
}

// EnsureTables creates the warehouse schema and the named tables.
// Empty names means every table in the registry.
func (p *Pipeline) EnsureTables(ctx context.Context, names []string) error {
	if err := p.merger.EnsureSchema(ctx); err != nil {
		return err
	}
	if len(names) == 0 {
		names = p.reg.Names()
	}
	for _, name := range names {
		t, ok := p.reg.Get(name)
		if !ok {
			return fmt.Errorf("unknown table %q", name)
		}
		if err := p.merger.EnsureTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// LoadDeltas applies a table's delta files in order. Each successfully
// merged file moves into the processed subdirectory next to it; that move
// is the persisted "already applied" marker.
func (p *Pipeline) LoadDeltas(ctx context.Context, table string, opts Options) ([]FileResult, error) {
	return p.load(ctx, table, sequence.MarkerDelta, opts, true)
}

// LoadTotals applies a table's full-snapshot files in order. Total files
// are not moved; re-running a total load is idempotent for keyed tables.
func (p *Pipeline) LoadTotals(ctx context.Context, table string, opts Options) ([]FileResult, error) {
	return p.load(ctx, table, sequence.MarkerTotal, opts, false)
}

func (p *Pipeline) load(ctx context.Context, table string, marker sequence.Marker, opts Options, markProcessed bool) ([]FileResult, error) {
	t, ok := p.reg.Get(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	files, err := sequence.Find(p.dir, table, marker)
	if err != nil {
		return nil, fmt.Errorf("table %q: discover files: %w", table, err)
	}
	files = sequence.Sort(files)
	total := len(files)

	if opts.From > len(files) {
		files = nil
	} else {
		files = files[opts.From:]
	}
	if opts.Max > 0 && len(files) > opts.Max {
		files = files[:opts.Max]
	}

	runID := uuid.New().String()
	log := p.log.With("run_id", runID, "table", table, "marker", string(marker))
	log.Info("load starting", "files", len(files), "found", total, "from", opts.From)

	plan := planFor(t)
	var results []FileResult
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("table %q: %w", table, err)
		}

		index := opts.From + i
		log.Info("processing file", "file", filepath.Base(file), "index", index+1, "of", total)

		start := time.Now()
		res, diag, err := p.applyFile(ctx, file, t, plan, opts)
		if err != nil {
			return results, fmt.Errorf("table %q file %q: %w", table, file, err)
		}

		if markProcessed {
			if err := markFileProcessed(file); err != nil {
				return results, fmt.Errorf("table %q file %q: %w", table, file, err)
			}
		}

		fr := FileResult{
			RunID:       runID,
			Table:       table,
			File:        file,
			Index:       index,
			Total:       total,
			Merge:       res,
			Diagnostics: diag,
			Duration:    time.Since(start),
		}
		results = append(results, fr)
		log.Info("file applied",
			"file", filepath.Base(file),
			"rows", res.Rows,
			"updated", res.Updated,
			"inserted", res.Inserted,
			"strategy", res.Strategy,
			"duration", fr.Duration,
		)
	}

	log.Info("load complete", "files", len(results))
	return results, nil
}

// applyFile reads and merges one file under the per-file timeout.
func (p *Pipeline) applyFile(ctx context.Context, file string, t schema.Table, plan ingest.Plan, opts Options) (merge.Result, ingest.Diagnostics, error) {
	if opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.FileTimeout)
		defer cancel()
	}

	f, diag, err := p.reader.Read(ctx, file, plan, opts.Filter)
	if err != nil {
		return merge.Result{}, diag, err
	}
	res, err := p.merger.Merge(ctx, f, t)
	return res, diag, err
}

// planFor maps the registry's declared type columns to an ingestion plan.
func planFor(t schema.Table) ingest.Plan {
	return ingest.Plan{
		DateColumns:    t.DateColumns,
		IntegerColumns: t.IntegerColumns,
		FloatColumns:   t.FloatColumns,
	}
}

// markFileProcessed moves a merged delta file into the processed
// subdirectory of its source directory.
func markFileProcessed(file string) error {
	dir := filepath.Dir(file)
	processed := filepath.Join(dir, sequence.ProcessedDirName)
	if err := os.MkdirAll(processed, 0o755); err != nil {
		return fmt.Errorf("create processed directory: %w", err)
	}
	if err := os.Rename(file, filepath.Join(processed, filepath.Base(file))); err != nil {
		return fmt.Errorf("move to processed: %w", err)
	}
	return nil
}
