// Package merge reconciles a typed frame into a warehouse table.
//
// Tables with business keys support two functionally equivalent strategies:
// row-by-row reconciliation (targeted update, insert on miss; per-row error
// visibility at the cost of one round trip per row) and bulk set
// reconciliation (stage the frame into a per-operation temp table, then one
// update-or-insert statement). Duplicate keys within one file resolve to the
// last occurrence under both strategies. Tables without keys are append-only.
//
// Every application of one file is a single transaction: on any failure the
// target table is left exactly as it was.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkbdata/odeingest/internal/frame"
	"github.com/mkbdata/odeingest/internal/schema"
)

// DBTX is the interface for database operations. The row and append flows
// run against it so they can be exercised without a server.
// Satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// Strategy selects the keyed reconciliation algorithm.
type Strategy string

const (
	// StrategyRow reconciles one row at a time: a targeted update, and an
	// insert queued for every key the update did not match.
	StrategyRow Strategy = "row"

	// StrategyBulk stages the frame into a temp table and reconciles the
	// whole set in one statement.
	StrategyBulk Strategy = "bulk"
)

// ParseStrategy validates a strategy name from config.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyRow:
		return StrategyRow, nil
	case StrategyBulk, "":
		return StrategyBulk, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q (want row or bulk)", s)
	}
}

// Result summarizes one merge application.
type Result struct {
	Table    string
	Strategy string // "row", "bulk" or "append"
	Rows     int
	Updated  int64
	Inserted int64
}

// Merger applies frames to warehouse tables.
type Merger struct {
	pool       *pgxpool.Pool
	schemaName string
	strategy   Strategy
	log        *slog.Logger
}

// New creates a Merger writing into the given schema namespace.
func New(pool *pgxpool.Pool, schemaName string, strategy Strategy, log *slog.Logger) *Merger {
	if log == nil {
		log = slog.Default()
	}
	return &Merger{pool: pool, schemaName: schemaName, strategy: strategy, log: log}
}

// EnsureSchema creates the warehouse schema namespace.
func (m *Merger) EnsureSchema(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, buildCreateSchema(m.schemaName)); err != nil {
		return fmt.Errorf("create schema %s: %w", m.schemaName, err)
	}
	return nil
}

// EnsureTable creates the target table for a registry entry if missing.
// The registry must declare the persisted columns.
func (m *Merger) EnsureTable(ctx context.Context, t schema.Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q: registry declares no columns to create", t.Name)
	}
	if _, err := m.pool.Exec(ctx, buildCreateTable(m.schemaName, t.Name, t.Columns, t.Keys)); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// Merge reconciles the frame into the table. The frame is restricted to the
// registry's persisted columns first; every business key must survive that
// restriction or the merge is rejected.
func (m *Merger) Merge(ctx context.Context, f *frame.Frame, t schema.Table) (Result, error) {
	if len(t.Columns) > 0 {
		f.Restrict(t.Columns)
	}
	cols := f.Names()
	if len(cols) == 0 {
		return Result{}, fmt.Errorf("table %q: no persisted columns present in frame", t.Name)
	}
	for _, k := range t.Keys {
		if !f.HasColumn(k) {
			return Result{}, fmt.Errorf("table %q: key column %q missing from frame", t.Name, k)
		}
	}

	switch {
	case !t.Keyed():
		return m.appendAll(ctx, f, t, cols)
	case m.strategy == StrategyRow:
		return m.mergeRowByRow(ctx, f, t, cols)
	default:
		return m.mergeBulk(ctx, f, t, cols)
	}
}

// appendAll inserts every row; tables without business keys do not dedup.
func (m *Merger) appendAll(ctx context.Context, f *frame.Frame, t schema.Table, cols []string) (Result, error) {
	res := Result{Table: t.Name, Strategy: "append", Rows: f.NumRows()}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("table %q: begin: %w", t.Name, err)
	}
	defer tx.Rollback(ctx)

	inserted, err := appendRows(ctx, tx, m.schemaName, f, t, cols)
	if err != nil {
		return res, fmt.Errorf("table %q: append: %w", t.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("table %q: commit: %w", t.Name, err)
	}
	res.Inserted = inserted
	return res, nil
}

// appendRows queues every row as an insert and flushes them as one batch.
func appendRows(ctx context.Context, db DBTX, schemaName string, f *frame.Frame, t schema.Table, cols []string) (int64, error) {
	insertSQL := buildInsert(schemaName, t.Name, cols)
	batch := &pgx.Batch{}
	for i := 0; i < f.NumRows(); i++ {
		batch.Queue(insertSQL, storeArgs(f.Row(i))...)
	}
	if err := flushBatch(ctx, db, batch); err != nil {
		return 0, err
	}
	return int64(f.NumRows()), nil
}

// mergeRowByRow runs the row strategy inside a single transaction: commit on
// success, full rollback on any failure.
func (m *Merger) mergeRowByRow(ctx context.Context, f *frame.Frame, t schema.Table, cols []string) (Result, error) {
	res := Result{Table: t.Name, Strategy: string(StrategyRow), Rows: f.NumRows()}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("table %q: begin: %w", t.Name, err)
	}
	defer tx.Rollback(ctx)

	updated, inserted, err := rowMerge(ctx, tx, m.schemaName, f, t, cols)
	if err != nil {
		return res, fmt.Errorf("table %q: %w", t.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("table %q: commit: %w", t.Name, err)
	}
	res.Updated = updated
	res.Inserted = inserted
	return res, nil
}

// rowMerge attempts a targeted update per incoming key and queues an insert
// for every key the update did not match. Queued inserts run as one batch at
// the end. Only the last occurrence of each key in the frame is applied,
// matching the bulk strategy's DISTINCT ON resolution; without that dedup two
// identical incoming keys would both miss the update and collide on insert.
func rowMerge(ctx context.Context, db DBTX, schemaName string, f *frame.Frame, t schema.Table, cols []string) (updated, inserted int64, err error) {
	updateSQL, setCols, hasUpdate := buildUpdate(schemaName, t.Name, cols, t.Keys)
	existsSQL := buildKeyExists(schemaName, t.Name, t.Keys)
	insertSQL := buildInsert(schemaName, t.Name, cols)

	colIdx := make(map[string]int, len(cols))
	for i, c := range cols {
		colIdx[c] = i
	}

	inserts := &pgx.Batch{}
	for _, i := range lastPerKey(f, t.Keys, colIdx) {
		row := f.Row(i)

		keyArgs := make([]any, len(t.Keys))
		for j, k := range t.Keys {
			keyArgs[j] = row[colIdx[k]].StoreArg()
		}

		if hasUpdate {
			args := make([]any, 0, len(setCols)+len(t.Keys))
			for _, c := range setCols {
				args = append(args, row[colIdx[c]].StoreArg())
			}
			args = append(args, keyArgs...)

			tag, err := db.Exec(ctx, updateSQL, args...)
			if err != nil {
				return updated, inserted, fmt.Errorf("row %d: update: %w", i, err)
			}
			if tag.RowsAffected() > 0 {
				updated += tag.RowsAffected()
				continue
			}
		} else {
			// Key-only table: nothing to update, probe for existence.
			var exists bool
			if err := db.QueryRow(ctx, existsSQL, keyArgs...).Scan(&exists); err != nil {
				return updated, inserted, fmt.Errorf("row %d: key probe: %w", i, err)
			}
			if exists {
				updated++
				continue
			}
		}

		inserts.Queue(insertSQL, storeArgs(row)...)
		inserted++
	}

	if err := flushBatch(ctx, db, inserts); err != nil {
		return updated, 0, fmt.Errorf("insert batch: %w", err)
	}
	return updated, inserted, nil
}

// lastPerKey returns one row index per distinct business key: the last
// occurrence in file order, with keys kept in first-seen order.
func lastPerKey(f *frame.Frame, keys []string, colIdx map[string]int) []int {
	last := make(map[string]int, f.NumRows())
	var order []string
	for i := 0; i < f.NumRows(); i++ {
		row := f.Row(i)
		var b strings.Builder
		for _, k := range keys {
			v := row[colIdx[k]]
			if v.Valid {
				b.WriteByte(1)
				b.WriteString(v.String())
			} else {
				b.WriteByte(0)
			}
			b.WriteByte(0x1f)
		}
		key := b.String()
		if _, seen := last[key]; !seen {
			order = append(order, key)
		}
		last[key] = i
	}
	out := make([]int, len(order))
	for i, k := range order {
		out[i] = last[k]
	}
	return out
}

// mergeBulk stages the frame into a per-operation temp table and runs one
// set-based update-or-insert against the target.
//
// The whole operation is pinned to one pooled connection: the stage table is
// session-scoped and must be created, filled and dropped from the same
// session. Cleanup is attempted twice, best effort: first on the pinned
// session, then through a raw pool fallback, since a temp object may only be
// visible from specific connections.
func (m *Merger) mergeBulk(ctx context.Context, f *frame.Frame, t schema.Table, cols []string) (Result, error) {
	res := Result{Table: t.Name, Strategy: string(StrategyBulk), Rows: f.NumRows()}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("table %q: acquire connection: %w", t.Name, err)
	}
	defer conn.Release()

	stage := stageName(t.Name)
	defer m.dropStage(conn, stage)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("table %q: begin: %w", t.Name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, buildCreateStage(stage, cols)); err != nil {
		return res, fmt.Errorf("table %q: create stage: %w", t.Name, err)
	}

	copyCols := append([]string{"seq"}, cols...)
	_, err = tx.CopyFrom(ctx, pgx.Identifier{stage}, copyCols,
		pgx.CopyFromSlice(f.NumRows(), func(i int) ([]any, error) {
			return append([]any{int64(i)}, storeArgs(f.Row(i))...), nil
		}))
	if err != nil {
		return res, fmt.Errorf("table %q: stage copy: %w", t.Name, err)
	}

	var matched int64
	if err := tx.QueryRow(ctx, buildStageMatchCount(m.schemaName, t.Name, stage, t.Keys)).Scan(&matched); err != nil {
		return res, fmt.Errorf("table %q: stage match count: %w", t.Name, err)
	}

	tag, err := tx.Exec(ctx, buildStageMerge(m.schemaName, t.Name, stage, cols, t.Keys))
	if err != nil {
		return res, fmt.Errorf("table %q: merge: %w", t.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("table %q: commit: %w", t.Name, err)
	}

	res.Updated = matched
	res.Inserted = tag.RowsAffected() - matched
	if res.Inserted < 0 {
		res.Inserted = 0
	}
	return res, nil
}

// dropStage is the dual cleanup: once on the session that owns the temp
// table, once through the pool in case the session is no longer usable.
// Both attempts are best effort; a leaked temp table dies with its session.
func (m *Merger) dropStage(conn *pgxpool.Conn, stage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dropSQL := buildDropStage(stage)
	if _, err := conn.Exec(ctx, dropSQL); err == nil {
		return
	}
	if _, err := m.pool.Exec(ctx, dropSQL); err != nil {
		m.log.Warn("stage table cleanup failed", "stage", stage, "error", err)
	}
}

// stageName returns a staging table name unique to this invocation, so two
// operations on the same table can never collide.
func stageName(table string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_stage_%s", table, suffix)
}

func storeArgs(row []frame.Value) []any {
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v.StoreArg()
	}
	return args
}

func flushBatch(ctx context.Context, db DBTX, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batched statement %d: %w", i, err)
		}
	}
	return br.Close()
}
