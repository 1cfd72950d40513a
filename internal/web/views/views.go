// Package views renders the HTML pages of the batch runner.
package views

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvbatch/internal/core"
	"github.com/JonMunkholm/csvbatch/internal/report"
	"github.com/a-h/templ"
)

// Dashboard is the status page: current progress, the action catalogue and
// recent runs.
func Dashboard(progress core.ProgressSnapshot, actions []core.ActionSpec, runs []core.RunSummary, logRoot string) templ.Component {
	return layout("Batch runner", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ProgressPanel(progress).Render(ctx, w); err != nil {
			return err
		}
		if err := actionTable(actions).Render(ctx, w); err != nil {
			return err
		}
		return RunHistory(runs, logRoot).Render(ctx, w)
	}))
}

// ProgressPanel shows the counters of the active or last run.
func ProgressPanel(p core.ProgressSnapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		pw := &writer{w: w}
		pw.printf(`<section id="progress" data-status="%s">`, esc(string(p.Status)))
		pw.printf(`<h2>Status: %s</h2>`, esc(string(p.Status)))
		if p.RunID != "" {
			pw.printf(`<p>Run <code>%s</code> &middot; %s</p>`, esc(p.RunID), esc(string(p.Action)))
		}
		pw.printf(`<dl>`)
		pw.term("Files", fmt.Sprintf("%d / %d", p.ProcessedFiles, p.TotalFiles))
		pw.term("Files with errors", strconv.Itoa(p.ErrorFiles))
		pw.term("Rows processed", strconv.Itoa(p.RowsProcessed))
		if p.CurrentFile != "" {
			pw.term("Current file", p.CurrentFile)
			pw.term("Current row", fmt.Sprintf("%d / %d", p.CurrentRow, p.CurrentTotal))
		}
		pw.printf(`</dl></section>`)
		return pw.err
	})
}

func actionTable(actions []core.ActionSpec) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		pw := &writer{w: w}
		pw.printf(`<section id="actions"><h2>Actions</h2><table><thead><tr><th>Action</th><th>Request</th><th>Required columns</th></tr></thead><tbody>`)
		for _, a := range actions {
			pw.printf(`<tr><td>%s</td><td><code>%s %s %s</code></td><td>%s</td></tr>`,
				esc(string(a.Action)), esc(a.Method), esc(string(a.API)), esc(a.Path), esc(strings.Join(a.Required, ", ")))
		}
		pw.printf(`</tbody></table></section>`)
		return pw.err
	})
}

// RunHistory lists finished runs, newest first. Log links are relative to
// logRoot.
func RunHistory(runs []core.RunSummary, logRoot string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		pw := &writer{w: w}
		pw.printf(`<section id="history"><h2>Recent runs</h2>`)
		if len(runs) == 0 {
			pw.printf(`<p>No runs yet.</p></section>`)
			return pw.err
		}
		pw.printf(`<table><thead><tr><th>Finished</th><th>Action</th><th>Status</th><th>Files</th><th>Rows</th><th>Logs</th></tr></thead><tbody>`)
		for _, r := range runs {
			pw.printf(`<tr><td>%s</td><td>%s</td><td>%s</td><td>%d / %d</td><td>%d</td><td>`,
				esc(r.FinishedAt.UTC().Format(core.LogTimestampLayout)), esc(string(r.Action)), esc(string(r.Status)),
				r.Progress.ProcessedFiles, r.Progress.TotalFiles, r.Progress.RowsProcessed)
			for _, f := range r.Files {
				if f.InfoLog == "" {
					continue
				}
				name := filepath.Base(f.InfoLog)
				pw.printf(`<a href="%s">%s</a> `, esc(ExportHref(logRoot, f.InfoLog)), esc(name))
			}
			pw.printf(`</td></tr>`)
		}
		pw.printf(`</tbody></table></section>`)
		return pw.err
	})
}

// ExportHref is the CSV export URL of infoLog. Logs in a subdirectory of
// logRoot carry it in the dir query parameter.
func ExportHref(logRoot, infoLog string) string {
	href := "/api/reports/" + url.PathEscape(filepath.Base(infoLog)) + "/export"
	rel, err := filepath.Rel(logRoot, filepath.Dir(infoLog))
	if err != nil || rel == "." {
		return href
	}
	return href + "?dir=" + url.QueryEscape(filepath.ToSlash(rel))
}

// ReportTable renders a projected info log.
func ReportTable(logName string, t report.Table) templ.Component {
	return layout(logName, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		pw := &writer{w: w}
		pw.printf(`<section id="report"><h2>%s</h2><table><thead><tr>`, esc(logName))
		for _, c := range t.Columns {
			pw.printf(`<th>%s</th>`, esc(c))
		}
		pw.printf(`</tr></thead><tbody>`)
		for _, row := range t.Rows {
			pw.printf(`<tr>`)
			for _, v := range row {
				pw.printf(`<td>%s</td>`, esc(v))
			}
			pw.printf(`</tr>`)
		}
		pw.printf(`</tbody></table></section>`)
		return pw.err
	}))
}

// ErrorAlert renders a user-facing error.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		pw := &writer{w: w}
		pw.printf(`<div class="error" role="alert"><strong>%s</strong>`, esc(message))
		if action != "" {
			pw.printf(`<p>%s</p>`, esc(action))
		}
		pw.printf(`<small>%s</small></div>`, esc(code))
		return pw.err
	})
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		pw := &writer{w: w}
		pw.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title></head><body><main>`, esc(title))
		if pw.err != nil {
			return pw.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		pw.printf(`</main></body></html>`)
		return pw.err
	})
}

// writer keeps the first write error so render code stays linear.
type writer struct {
	w   io.Writer
	err error
}

func (pw *writer) printf(format string, args ...any) {
	if pw.err != nil {
		return
	}
	_, pw.err = fmt.Fprintf(pw.w, format, args...)
}

func (pw *writer) term(name, value string) {
	pw.printf(`<dt>%s</dt><dd>%s</dd>`, esc(name), esc(value))
}

func esc(s string) string {
	return templ.EscapeString(s)
}
