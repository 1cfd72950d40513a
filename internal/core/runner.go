package core

// runner.go drives a batch: files in order, rows in order, one call per row.
//
// Failure scopes:
//   - row: validation, HTTP and transport failures are logged and the row is
//     skipped.
//   - file: a missing or empty file, or an unexpected failure, ends that file
//     as Failed; the batch moves on.
//   - batch: cancellation of ctx stops the current file and every file after
//     it.
//
// ctx is checked at the top of every file, at the top of every row and
// around each remote call.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/source"
)

// FileResult is the outcome of one input file.
type FileResult struct {
	File          string    `json:"file"`
	Status        RunStatus `json:"status"`
	RowsProcessed int       `json:"rows_processed"`
	ErrorWritten  bool      `json:"error_written"`
	InfoLog       string    `json:"info_log,omitempty"`
	ErrorLog      string    `json:"error_log,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// RunResult is the outcome of a whole batch.
type RunResult struct {
	Status RunStatus    `json:"status"`
	Files  []FileResult `json:"files"`
}

// Runner executes batches. The zero value is not usable; set Executor and
// Source.
type Runner struct {
	Executor Executor
	Source   source.Source

	// Now stamps log names and entries. Defaults to time.Now.
	Now func() time.Time

	// OnProgress, when set, is called after every row and every file with
	// the current counters. It runs on the batch goroutine.
	OnProgress func(ProgressSnapshot)

	Logger *slog.Logger
}

type rowResult int

const (
	rowSucceeded rowResult = iota
	rowFailed
	rowCancelled
)

// Run processes req.Files with req.Action. req must already be validated:
// StartRow >= 1, LogDir exists and Action is known.
func (r *Runner) Run(ctx context.Context, req RunRequest, progress *BatchProgress) RunResult {
	logger := r.logger()
	result := RunResult{Status: StatusRunning}
	progress.update(func(s *ProgressSnapshot) { s.Status = StatusRunning })

	for _, file := range req.Files {
		if ctx.Err() != nil {
			result.Status = StatusStopped
			break
		}

		shown := source.Redact(file)
		progress.update(func(s *ProgressSnapshot) {
			s.CurrentFile = shown
			s.CurrentRow = 0
			s.CurrentTotal = 0
		})

		fr, opened := r.runFile(ctx, req, file, progress)
		result.Files = append(result.Files, fr)

		snap := progress.update(func(s *ProgressSnapshot) {
			if opened {
				s.ProcessedFiles++
			}
			if fr.ErrorWritten || !opened {
				s.ErrorFiles++
			}
		})
		r.notify(snap)

		logger.Info("file finished",
			"file", shown,
			"status", fr.Status,
			"rows_processed", fr.RowsProcessed,
			"error_written", fr.ErrorWritten,
		)

		if fr.Status == StatusStopped {
			result.Status = StatusStopped
			break
		}
	}

	if result.Status == StatusRunning {
		result.Status = StatusCompleted
	}
	snap := progress.update(func(s *ProgressSnapshot) {
		s.Status = result.Status
		s.CurrentFile = ""
		s.CurrentRow = 0
		s.CurrentTotal = 0
	})
	r.notify(snap)
	return result
}

// runFile processes one file. opened is false when the logs could not be
// created, in which case nothing was recorded for the file.
func (r *Runner) runFile(ctx context.Context, req RunRequest, file string, progress *BatchProgress) (res FileResult, opened bool) {
	// file may be an ftp:// URL with a password; only the redacted form is
	// logged or returned.
	shown := source.Redact(file)
	res = FileResult{File: shown, Status: StatusRunning}

	runLog, err := OpenRunLogger(req.LogDir, file, r.now)
	if err != nil {
		r.logger().Error("cannot open run logs", "file", shown, "error", err)
		res.Status = StatusFailed
		res.Error = err.Error()
		return res, false
	}
	opened = true
	res.InfoLog = runLog.InfoPath()
	rc := &RunContext{File: shown, StartRow: req.StartRow}

	defer func() {
		if p := recover(); p != nil {
			r.logger().Error("file processing panicked", "file", shown, "panic", p)
			res.Status = StatusFailed
			res.Error = fmt.Sprint(p)
			_ = runLog.LogGeneralError(shown, res.Error)
		}
		rc.ErrorWritten = runLog.ErrorWritten()
		if err := runLog.Finalize(rc.ErrorWritten); err != nil {
			r.logger().Warn("finalize run logs", "file", shown, "error", err)
		}
		res.RowsProcessed = rc.RowsProcessed
		res.ErrorWritten = rc.ErrorWritten
		if rc.ErrorWritten {
			res.ErrorLog = runLog.ErrorPath()
		}
	}()

	fail := func(err error) {
		res.Status = StatusFailed
		res.Error = err.Error()
		_ = runLog.LogGeneralError(shown, err.Error())
	}

	table, err := LoadTable(ctx, r.Source, file)
	switch {
	case errors.Is(err, ErrFileNotFound):
		res.Status = StatusFailed
		res.Error = "File not found"
		_ = runLog.LogFileError(shown, res.Error)
		return res, true
	case errors.Is(err, ErrEmptyFile):
		res.Status = StatusFailed
		res.Error = "File is empty"
		_ = runLog.LogFileError(shown, res.Error)
		return res, true
	case err != nil:
		if ctx.Err() != nil {
			res.Status = StatusStopped
			return res, true
		}
		fail(err)
		return res, true
	}

	if err := runLog.LogStart(shown, table.Len()); err != nil {
		fail(err)
		return res, true
	}
	progress.update(func(s *ProgressSnapshot) { s.CurrentTotal = table.Len() })

	for i, row := range table.Rows {
		rowNumber := i + 1
		if ctx.Err() != nil {
			res.Status = StatusStopped
			return res, true
		}
		if rowNumber < rc.StartRow || isBlankRow(row) {
			continue
		}
		rc.CurrentRow = rowNumber

		outcome, err := r.processRow(ctx, req, table, row, rowNumber, runLog)
		if err != nil {
			fail(err)
			return res, true
		}
		if outcome == rowCancelled {
			res.Status = StatusStopped
			return res, true
		}

		snap := progress.update(func(s *ProgressSnapshot) {
			s.CurrentRow = rowNumber
			if outcome == rowSucceeded {
				s.RowsProcessed++
			}
		})
		if outcome == rowSucceeded {
			rc.RowsProcessed++
		}
		r.notify(snap)
	}

	res.Status = StatusCompleted
	return res, true
}

// processRow builds, sends and records one row. A non-nil error means the
// logs could not be written and the file cannot continue.
func (r *Runner) processRow(ctx context.Context, req RunRequest, table *CsvTable, row []string, rowNumber int, runLog *RunLogger) (rowResult, error) {
	tag := string(req.Action)

	built, err := BuildRequest(req.Action, table, row, rowNumber)
	if err != nil {
		var vf *ValidationFailure
		if errors.As(err, &vf) {
			return rowFailed, runLog.LogRowError(rowNumber, vf.Reason)
		}
		return rowFailed, err
	}

	if built.Lookup != nil {
		res, err := r.resolveLookup(ctx, req, &built, rowNumber, runLog)
		if err != nil || res != rowSucceeded {
			return res, err
		}
	}

	if ctx.Err() != nil {
		return rowCancelled, nil
	}
	out := r.Executor.Execute(ctx, built, req.Credential)
	return r.record(tag, rowNumber, out, runLog)
}

// resolveLookup runs the prerequisite call of a request and completes its body.
func (r *Runner) resolveLookup(ctx context.Context, req RunRequest, built *Request, rowNumber int, runLog *RunLogger) (rowResult, error) {
	if ctx.Err() != nil {
		return rowCancelled, nil
	}
	out := r.Executor.Execute(ctx, *built.Lookup, req.Credential)
	if out.Kind != OutcomeSuccess {
		return r.record(string(req.Action)+" lookup", rowNumber, out, runLog)
	}
	if err := built.Resolve(built.Body, []byte(out.Body)); err != nil {
		var vf *ValidationFailure
		if errors.As(err, &vf) {
			return rowFailed, runLog.LogRowError(rowNumber, vf.Reason)
		}
		return rowFailed, runLog.LogException(rowNumber, err.Error())
	}
	return rowSucceeded, nil
}

func (r *Runner) record(tag string, rowNumber int, out ActionOutcome, runLog *RunLogger) (rowResult, error) {
	switch out.Kind {
	case OutcomeSuccess:
		return rowSucceeded, runLog.LogSuccess(tag, rowNumber, out.Body)
	case OutcomeHTTPError:
		return rowFailed, runLog.LogError(tag, rowNumber, out.StatusCode, out.Reason, out.Body)
	case OutcomeTransportError:
		return rowFailed, runLog.LogException(rowNumber, out.Message)
	default:
		return rowCancelled, nil
	}
}

func (r *Runner) notify(s ProgressSnapshot) {
	if r.OnProgress != nil {
		r.OnProgress(s)
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
