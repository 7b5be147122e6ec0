package web

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkbdata/odeingest/internal/logging"
)

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.WithFields(r.Context(), "method", r.Method, "path", r.URL.Path).
			Info("request", "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTables returns the full table registry.
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.All())
}

// handleTable returns one registry entry.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := s.reg.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown table: "+name)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleAnalyze samples an export file and suggests a type per column.
// The file path is taken relative to the configured export directory and
// must resolve inside it.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	if file == "" {
		writeError(w, http.StatusBadRequest, "missing file parameter")
		return
	}

	path, ok := s.resolvePath(file)
	if !ok {
		writeError(w, http.StatusBadRequest, "file path escapes the export directory")
		return
	}

	analysis, err := s.reader.Analyze(path)
	if err != nil {
		logging.FromContext(r.Context()).Warn("analyze failed", "file", path, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// resolvePath joins a requested file with the export directory and rejects
// anything that escapes it.
func (s *Server) resolvePath(file string) (string, bool) {
	path := filepath.Clean(filepath.Join(s.dir, file))
	root := filepath.Clean(s.dir)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
