package web

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/csvbatch/internal/report"
	"github.com/JonMunkholm/csvbatch/internal/web/views"
	"github.com/go-chi/chi/v5"
)

// handleReport returns the SUCCESS bodies of an info log as a table. The
// optional action query parameter filters entries by their action label, and
// dir names the run's log directory relative to the log root.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	name, table, err := s.loadReport(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		views.ReportTable(name, table).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	name, table, err := s.loadReport(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	filename := strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteCSV(w, table); err != nil {
		s.respondError(w, r, err)
	}
}

func (s *Server) loadReport(r *http.Request) (string, report.Table, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "logName"))
	if err != nil {
		return "", report.Table{}, fmt.Errorf("%w: %v", errInvalidLogName, err)
	}
	name, err := resolveLogName(raw)
	if err != nil {
		return "", report.Table{}, err
	}
	dir, err := s.service.ResolveLogDir(filepath.FromSlash(r.URL.Query().Get("dir")))
	if err != nil {
		return "", report.Table{}, err
	}
	entries, err := report.ParseLogFile(filepath.Join(dir, name))
	if err != nil {
		return "", report.Table{}, err
	}
	return name, report.Project(entries, r.URL.Query().Get("action")), nil
}

// resolveLogName accepts only bare .log file names so reports never read
// outside the run's log directory.
func resolveLogName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || filepath.Ext(name) != ".log" {
		return "", fmt.Errorf("%w: %q", errInvalidLogName, name)
	}
	return name, nil
}
