// Command ingest applies export files to the warehouse: it can create the
// registry tables, load full-snapshot (Total) files, and reconcile
// incremental (Delta) files in their sequenced order.
//
// Usage:
//
//	ingest -create                     create schema and registry tables
//	ingest -tables Rykker,BO-aftale    restrict the run to named tables
//	ingest -totals                     load Total files instead of Delta
//	ingest -from 3                     resume from file index 3
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mkbdata/odeingest/internal/config"
	"github.com/mkbdata/odeingest/internal/ingest"
	"github.com/mkbdata/odeingest/internal/logging"
	"github.com/mkbdata/odeingest/internal/merge"
	"github.com/mkbdata/odeingest/internal/pipeline"
	"github.com/mkbdata/odeingest/internal/schema"
)

func main() {
	var (
		create   = flag.Bool("create", false, "create warehouse schema and registry tables, then exit")
		tables   = flag.String("tables", "", "comma-separated table names (default: all registry tables)")
		totals   = flag.Bool("totals", false, "load Total snapshot files instead of Delta files")
		from     = flag.Int("from", 0, "resume from this file index in processing order")
		maxFiles = flag.Int("max", 0, "process at most this many files per table (0 = all)")
	)
	flag.Parse()

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	reg, err := schema.Load(cfg.Ingest.TablesFile)
	if err != nil {
		slog.Error("failed to load table registry", "file", cfg.Ingest.TablesFile, "error", err)
		os.Exit(1)
	}
	slog.Info("table registry loaded", "file", cfg.Ingest.TablesFile, "tables", reg.Len())

	strategy, err := merge.ParseStrategy(cfg.Merge.Strategy)
	if err != nil {
		slog.Error("invalid merge strategy", "error", err)
		os.Exit(1)
	}

	pool, err := connect(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	merger := merge.New(pool, cfg.Ingest.Schema, strategy, slog.Default())
	reader := ingest.NewReader(slog.Default())
	pipe := pipeline.New(cfg.Ingest.Dir, reg, reader, merger, slog.Default())

	// Stop cleanly between files on SIGINT/SIGTERM; the in-flight file's
	// transaction rolls back and the file stays unprocessed.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names := reg.Names()
	if *tables != "" {
		names = splitNames(*tables)
	}

	if *create {
		if err := pipe.EnsureTables(ctx, names); err != nil {
			slog.Error("table creation failed", "error", err)
			os.Exit(1)
		}
		slog.Info("tables created", "count", len(names))
		return
	}

	opts := pipeline.Options{From: *from, Max: *maxFiles, FileTimeout: cfg.Ingest.FileTimeout}
	for _, name := range names {
		var err error
		if *totals {
			_, err = pipe.LoadTotals(ctx, name, opts)
		} else {
			_, err = pipe.LoadDeltas(ctx, name, opts)
		}
		if err != nil {
			slog.Error("load failed, halting table", "table", name, "error", err)
			os.Exit(1)
		}
	}
}

func connect(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func splitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
