package core

// runlog.go writes the per-file info and error logs of a run.
//
// Entry format, one per write:
//
//	[TAG] 2006-01-02 15:04:05Z - message
//	{ optional pretty-printed JSON block }
//
// The report package parses info logs back, so this layout is a contract.
// START and SUCCESS go to the info log; every error tag goes to the error
// log. Both files are opened in append mode when a file's processing
// starts. The error log is removed at Finalize unless it is kept.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/source"
)

// ErrLoggerClosed is returned by writes after Finalize.
var ErrLoggerClosed = errors.New("run logger is finalized")

// LogFileNames returns the info and error log paths for a CSV processed at t.
func LogFileNames(dir, csvName string, t time.Time) (info, errLog string) {
	stem := source.BaseName(csvName) + "_" + t.Format(LogFileTimeLayout)
	return filepath.Join(dir, stem+".log"), filepath.Join(dir, stem+"_error.log")
}

// RunLogger owns the two log files of one CSV file within a run.
type RunLogger struct {
	mu sync.Mutex

	infoPath  string
	errorPath string
	info      *os.File
	errLog    *os.File
	now       func() time.Time

	errorWritten bool
	closed       bool
}

// OpenRunLogger creates (or appends to) both log files for csvName.
func OpenRunLogger(dir, csvName string, now func() time.Time) (*RunLogger, error) {
	if now == nil {
		now = time.Now
	}
	infoPath, errorPath := LogFileNames(dir, csvName, now())

	info, err := openAppend(infoPath)
	if err != nil {
		return nil, err
	}
	errLog, err := openAppend(errorPath)
	if err != nil {
		info.Close()
		return nil, err
	}
	return &RunLogger{
		infoPath:  infoPath,
		errorPath: errorPath,
		info:      info,
		errLog:    errLog,
		now:       now,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return f, nil
}

// InfoPath returns the info log path.
func (l *RunLogger) InfoPath() string { return l.infoPath }

// ErrorPath returns the error log path.
func (l *RunLogger) ErrorPath() string { return l.errorPath }

// ErrorWritten reports whether any error-tagged entry was written.
func (l *RunLogger) ErrorWritten() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errorWritten
}

// LogStart records the beginning of a file.
func (l *RunLogger) LogStart(file string, totalLines int) error {
	return l.write(TagStart, fmt.Sprintf("Processing file: %s, total lines: %d", file, totalLines), "")
}

// LogSuccess records a successful call. tag is normally the action name.
func (l *RunLogger) LogSuccess(tag string, row int, body string) error {
	return l.write(TagSuccess, fmt.Sprintf("%s row %d:", tag, row), body)
}

// LogError records a non-2xx response.
func (l *RunLogger) LogError(tag string, row, status int, reason, body string) error {
	return l.write(TagError, fmt.Sprintf("%s row %d: %d %s", tag, row, status, reason), body)
}

// LogRowError records a row that failed validation.
func (l *RunLogger) LogRowError(row int, reason string) error {
	return l.write(TagRowError, fmt.Sprintf("Row %d: %s", row, reason), "")
}

// LogException records a transport failure.
func (l *RunLogger) LogException(row int, msg string) error {
	return l.write(TagException, fmt.Sprintf("Row %d: %s", row, msg), "")
}

// LogFileError records a missing or empty input file.
func (l *RunLogger) LogFileError(file, reason string) error {
	return l.write(TagFileError, fmt.Sprintf("%s: %s", file, reason), "")
}

// LogGeneralError records an unexpected failure that ended the file.
func (l *RunLogger) LogGeneralError(file, reason string) error {
	return l.write(TagGeneralError, fmt.Sprintf("%s: %s", file, reason), "")
}

func (l *RunLogger) write(tag LogTag, message, body string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoggerClosed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s - %s\n", tag, l.now().UTC().Format(LogTimestampLayout), message)
	if body = strings.TrimRight(body, "\r\n"); body != "" {
		b.WriteString(body)
		b.WriteByte('\n')
	}

	w := l.info
	if tag.IsErrorTag() {
		w = l.errLog
		l.errorWritten = true
	}
	if _, err := w.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s entry: %w", tag, err)
	}
	return nil
}

// Finalize flushes and closes both logs. Unless keepErrorLog is set an empty
// error log is deleted. A non-empty one is always kept: another logger for a
// file with the same base name, or a rerun within the same minute, may have
// appended to it. Calling it again is a no-op.
func (l *RunLogger) Finalize(keepErrorLog bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	remove := false
	if !keepErrorLog {
		st, err := l.errLog.Stat()
		remove = err == nil && st.Size() == 0
	}
	for _, f := range []*os.File{l.info, l.errLog} {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", filepath.Base(f.Name()), err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", filepath.Base(f.Name()), err))
		}
	}
	if remove {
		if err := os.Remove(l.errorPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove error log: %w", err))
		}
	}
	return errors.Join(errs...)
}
