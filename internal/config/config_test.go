package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	os.Setenv("DATABASE_URL", "postgres://localhost/ode")
	os.Setenv("INGEST_DIR", "/data/exports")
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("INGEST_DIR")
	})
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify defaults
	if cfg.Database.MaxConns != 10 {
		t.Errorf("Database.MaxConns = %d, want %d", cfg.Database.MaxConns, 10)
	}
	if cfg.Database.MinConns != 2 {
		t.Errorf("Database.MinConns = %d, want %d", cfg.Database.MinConns, 2)
	}
	if cfg.Ingest.Schema != "ode" {
		t.Errorf("Ingest.Schema = %q, want %q", cfg.Ingest.Schema, "ode")
	}
	if cfg.Ingest.TablesFile != "tables.yaml" {
		t.Errorf("Ingest.TablesFile = %q, want %q", cfg.Ingest.TablesFile, "tables.yaml")
	}
	if cfg.Ingest.FileTimeout != 10*time.Minute {
		t.Errorf("Ingest.FileTimeout = %v, want 10m", cfg.Ingest.FileTimeout)
	}
	if cfg.Merge.Strategy != "bulk" {
		t.Errorf("Merge.Strategy = %q, want %q", cfg.Merge.Strategy, "bulk")
	}
	if cfg.Inspect.Port != 8080 {
		t.Errorf("Inspect.Port = %d, want %d", cfg.Inspect.Port, 8080)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	setRequired(t)
	os.Setenv("INGEST_SCHEMA", "staging")
	os.Setenv("MERGE_STRATEGY", "row")
	os.Setenv("INSPECT_PORT", "9090")
	os.Setenv("DB_MAX_CONNS", "20")
	os.Setenv("LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("INGEST_SCHEMA")
		os.Unsetenv("MERGE_STRATEGY")
		os.Unsetenv("INSPECT_PORT")
		os.Unsetenv("DB_MAX_CONNS")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ingest.Schema != "staging" {
		t.Errorf("Ingest.Schema = %q, want %q", cfg.Ingest.Schema, "staging")
	}
	if cfg.Merge.Strategy != "row" {
		t.Errorf("Merge.Strategy = %q, want %q", cfg.Merge.Strategy, "row")
	}
	if cfg.Inspect.Port != 9090 {
		t.Errorf("Inspect.Port = %d, want %d", cfg.Inspect.Port, 9090)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("Database.MaxConns = %d, want %d", cfg.Database.MaxConns, 20)
	}
}

func TestLoad_AlternateDatabaseVar(t *testing.T) {
	os.Setenv("DB_URL", "postgres://localhost/alt")
	os.Setenv("INGEST_DIR", "/data/exports")
	defer func() {
		os.Unsetenv("DB_URL")
		os.Unsetenv("INGEST_DIR")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/alt" {
		t.Errorf("Database.URL = %q, want the DB_URL value", cfg.Database.URL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("DB_URL")
	os.Unsetenv("INGEST_DIR")

	if _, err := Load(); err == nil {
		t.Fatal("Load() without required vars succeeded, want error")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{name: "bad port", env: "INSPECT_PORT", value: "99999"},
		{name: "bad strategy", env: "MERGE_STRATEGY", value: "upsert"},
		{name: "bad log level", env: "LOG_LEVEL", value: "verbose"},
		{name: "non-numeric conns", env: "DB_MAX_CONNS", value: "many"},
		{name: "bad duration", env: "INGEST_FILE_TIMEOUT", value: "soon"},
		{name: "max below min conns", env: "DB_MAX_CONNS", value: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			os.Setenv(tt.env, tt.value)
			defer os.Unsetenv(tt.env)

			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s succeeded, want error", tt.env, tt.value)
			}
		})
	}
}

func TestConfig_StringMasksURL(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s := cfg.String()
	if strings.Contains(s, "postgres://") {
		t.Errorf("String() leaks the database URL: %s", s)
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() should mask the URL: %s", s)
	}
}

func TestInspectConfig_Addr(t *testing.T) {
	c := InspectConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
	c = InspectConfig{Host: "", Port: 9000}
	if got := c.Addr(); got != ":9000" {
		t.Errorf("Addr() with empty host = %q", got)
	}
}
