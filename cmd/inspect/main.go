// Command inspect serves the diagnostic API: registry contents and
// per-file column type analysis, used to decide which columns to declare
// as date/integer/float before a full ingestion run.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mkbdata/odeingest/internal/config"
	"github.com/mkbdata/odeingest/internal/ingest"
	"github.com/mkbdata/odeingest/internal/logging"
	"github.com/mkbdata/odeingest/internal/schema"
	"github.com/mkbdata/odeingest/internal/web"
)

func main() {
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

	server := web.NewServer(reg, ingest.NewReader(slog.Default()), cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Inspect.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("inspect server starting", "addr", cfg.Inspect.Addr(), "tables", reg.Len())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
