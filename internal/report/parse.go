// Package report reads run info logs back into tabular form.
//
// An info log is a sequence of entries, each a header line
//
//	[TAG] 2006-01-02 15:04:05Z - message
//
// optionally followed by a pretty-printed JSON block that runs until the next
// header line. Project flattens the JSON of SUCCESS entries into columns so
// a run's responses can be reviewed or exported as CSV.
package report

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/csvbatch/internal/core"
	"github.com/pkg/errors"
)

// ErrNoEntries is returned when a log holds no recognisable entries.
var ErrNoEntries = errors.New("log contains no entries")

var headerLine = regexp.MustCompile(`^\[([A-Z_]+)\] (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}Z) - (.*)$`)

// rowRef pulls "row N" out of SUCCESS/ERROR messages and "Row N" out of the rest.
var rowRef = regexp.MustCompile(`(?i)\brow (\d+):`)

// Entry is one parsed log entry.
type Entry struct {
	Tag     core.LogTag `json:"tag"`
	Time    time.Time   `json:"time"`
	Message string      `json:"message"`
	Row     int         `json:"row,omitempty"`
	Body    string      `json:"body,omitempty"`
}

// Label is the part of a SUCCESS/ERROR message before " row N:", normally
// the action name.
func (e Entry) Label() string {
	if loc := rowRef.FindStringIndex(e.Message); loc != nil {
		return strings.TrimSpace(e.Message[:loc[0]])
	}
	return ""
}

// ParseLog reads entries from r. Lines before the first header are ignored.
func ParseLog(r io.Reader) ([]Entry, error) {
	var (
		entries []Entry
		body    []string
	)
	flush := func() {
		if len(entries) > 0 && len(body) > 0 {
			entries[len(entries)-1].Body = strings.TrimRight(strings.Join(body, "\n"), "\n")
		}
		body = body[:0]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			if len(entries) > 0 {
				body = append(body, line)
			}
			continue
		}
		flush()

		ts, err := time.Parse(core.LogTimestampLayout, m[2])
		if err != nil {
			return nil, errors.Wrapf(err, "parse timestamp %q", m[2])
		}
		e := Entry{Tag: core.LogTag(m[1]), Time: ts, Message: m[3]}
		if rm := rowRef.FindStringSubmatch(e.Message); rm != nil {
			e.Row, _ = strconv.Atoi(rm[1])
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read log")
	}
	flush()

	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	return entries, nil
}

// ParseLogFile opens path and parses it.
func ParseLogFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}
	defer f.Close()

	entries, err := ParseLog(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return entries, nil
}
