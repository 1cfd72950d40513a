package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestLogFileNames(t *testing.T) {
	info, errLog := LogFileNames("/logs", "/data/in/users.csv", fixedTime)
	if info != filepath.Join("/logs", "users_09032024_1405.log") {
		t.Errorf("info = %q", info)
	}
	if errLog != filepath.Join("/logs", "users_09032024_1405_error.log") {
		t.Errorf("error = %q", errLog)
	}
}

func TestRunLogger_EntryFormat(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenRunLogger(dir, "users.csv", fixedNow)
	if err != nil {
		t.Fatal(err)
	}

	steps := []error{
		l.LogStart("users.csv", 2),
		l.LogSuccess("UpdateUser", 1, "{\n  \"id\": 42\n}"),
		l.LogError("UpdateUser", 2, 404, "Not Found", "missing"),
		l.LogRowError(3, "Invalid or missing 'type' value: ''"),
		l.LogException(4, "connection reset"),
		l.LogFileError("other.csv", "File not found"),
		l.LogGeneralError("users.csv", "disk full"),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !l.ErrorWritten() {
		t.Error("ErrorWritten() = false after error entries")
	}
	if err := l.Finalize(true); err != nil {
		t.Fatal(err)
	}

	wantInfo := "[START] 2024-03-09 14:05:07Z - Processing file: users.csv, total lines: 2\n" +
		"[SUCCESS] 2024-03-09 14:05:07Z - UpdateUser row 1:\n" +
		"{\n  \"id\": 42\n}\n"
	if got := readFile(t, l.InfoPath()); got != wantInfo {
		t.Errorf("info log =\n%s\nwant\n%s", got, wantInfo)
	}

	wantErr := "[ERROR] 2024-03-09 14:05:07Z - UpdateUser row 2: 404 Not Found\n" +
		"missing\n" +
		"[ROW_ERROR] 2024-03-09 14:05:07Z - Row 3: Invalid or missing 'type' value: ''\n" +
		"[EXCEPTION] 2024-03-09 14:05:07Z - Row 4: connection reset\n" +
		"[FILE_ERROR] 2024-03-09 14:05:07Z - other.csv: File not found\n" +
		"[GENERAL_ERROR] 2024-03-09 14:05:07Z - users.csv: disk full\n"
	if got := readFile(t, l.ErrorPath()); got != wantErr {
		t.Errorf("error log =\n%s\nwant\n%s", got, wantErr)
	}
}

func TestRunLogger_TimestampIsUTC(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*60*60)
	now := func() time.Time { return time.Date(2024, 3, 9, 16, 5, 7, 0, local) }

	l, err := OpenRunLogger(t.TempDir(), "a.csv", now)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.LogStart("a.csv", 1)
	_ = l.Finalize(false)

	if got := readFile(t, l.InfoPath()); !strings.Contains(got, "2024-03-09 14:05:07Z") {
		t.Errorf("info log = %q, want UTC timestamp", got)
	}
}

func TestRunLogger_FinalizeDeletesUnusedErrorLog(t *testing.T) {
	l, err := OpenRunLogger(t.TempDir(), "a.csv", fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if !fileExists(l.ErrorPath()) {
		t.Fatal("error log should exist while the file is processed")
	}
	_ = l.LogStart("a.csv", 1)

	if err := l.Finalize(false); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if fileExists(l.ErrorPath()) {
		t.Error("error log still on disk after Finalize(false)")
	}
	if !fileExists(l.InfoPath()) {
		t.Error("info log must always be kept")
	}
}

func TestRunLogger_FinalizeKeepsErrorsFromSharedLog(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		first  string
		second string
	}{
		{"same base name in another directory", "a/users.csv", "b/users.csv"},
		{"rerun within the same minute", "users.csv", "users.csv"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := filepath.Join(dir, fmt.Sprint(i))
			if err := os.Mkdir(sub, 0o755); err != nil {
				t.Fatal(err)
			}
			first, err := OpenRunLogger(sub, tt.first, fixedNow)
			if err != nil {
				t.Fatal(err)
			}
			_ = first.LogFileError(tt.first, "File not found")
			if err := first.Finalize(true); err != nil {
				t.Fatal(err)
			}

			second, err := OpenRunLogger(sub, tt.second, fixedNow)
			if err != nil {
				t.Fatal(err)
			}
			if second.ErrorPath() != first.ErrorPath() {
				t.Fatalf("error paths differ: %s vs %s", second.ErrorPath(), first.ErrorPath())
			}
			_ = second.LogStart(tt.second, 1)
			if err := second.Finalize(second.ErrorWritten()); err != nil {
				t.Fatal(err)
			}

			want := "[FILE_ERROR] 2024-03-09 14:05:07Z - " + tt.first + ": File not found\n"
			if got := readFile(t, first.ErrorPath()); got != want {
				t.Errorf("error log = %q, want %q", got, want)
			}
		})
	}
}

func TestRunLogger_FinalizeIdempotent(t *testing.T) {
	l, err := OpenRunLogger(t.TempDir(), "a.csv", fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Finalize(false); err != nil {
		t.Fatal(err)
	}
	if err := l.Finalize(false); err != nil {
		t.Errorf("second Finalize() error = %v", err)
	}
	if err := l.LogStart("a.csv", 1); !errors.Is(err, ErrLoggerClosed) {
		t.Errorf("write after Finalize = %v, want ErrLoggerClosed", err)
	}
}

func TestRunLogger_FinalizeToleratesMissingErrorLog(t *testing.T) {
	l, err := OpenRunLogger(t.TempDir(), "a.csv", fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(l.ErrorPath()); err != nil {
		t.Fatal(err)
	}
	if err := l.Finalize(false); err != nil {
		t.Errorf("Finalize() error = %v", err)
	}
}

func TestRunLogger_AppendsToExistingLogs(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l, err := OpenRunLogger(dir, "a.csv", fixedNow)
		if err != nil {
			t.Fatal(err)
		}
		_ = l.LogStart("a.csv", 1)
		_ = l.Finalize(false)
	}
	info, _ := LogFileNames(dir, "a.csv", fixedTime)
	if got := strings.Count(readFile(t, info), "[START]"); got != 2 {
		t.Errorf("START entries = %d, want 2", got)
	}
}

func TestOpenRunLogger_MissingDir(t *testing.T) {
	_, err := OpenRunLogger(filepath.Join(t.TempDir(), "nope"), "a.csv", fixedNow)
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
