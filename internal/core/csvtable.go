package core

// csvtable.go parses batch input files.
//
// Lines are split on every comma. Quoting and escaping are not supported:
// a field containing a comma shifts every later column of that row. Input
// files are produced by export tools that never quote, and the runner's log
// output reports row numbers against this exact splitting.

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/csvbatch/internal/source"
	"github.com/pkg/errors"
)

var (
	// ErrFileNotFound is returned when an input CSV does not exist.
	ErrFileNotFound = errors.New("csv file not found")

	// ErrEmptyFile is returned when an input CSV has no header or no data rows.
	ErrEmptyFile = errors.New("csv file is empty")
)

// utf8BOM is stripped from the first header cell.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CsvTable is a parsed input file: the header line plus data rows in file order.
type CsvTable struct {
	Headers []string
	Rows    [][]string

	index map[string]int
}

// LoadTable opens name through src and parses it.
func LoadTable(ctx context.Context, src source.Source, name string) (*CsvTable, error) {
	shown := source.Redact(name)
	rc, err := src.Open(ctx, name)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, errors.Wrap(ErrFileNotFound, shown)
		}
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", shown)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, errors.Wrap(err, shown)
	}
	return t, nil
}

// ParseTable splits data into a header and data rows. Blank lines are kept
// as rows so data row numbers match the file; the runner skips them.
func ParseTable(data []byte) (*CsvTable, error) {
	data = bytes.TrimPrefix(sanitizeUTF8(data), utf8BOM)

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan csv")
	}

	// Trailing blank lines are not data.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	// A header without data rows is as useless to a run as no file at all.
	if len(lines) < 2 || strings.TrimSpace(lines[0]) == "" {
		return nil, ErrEmptyFile
	}

	t := &CsvTable{
		Headers: splitLine(lines[0]),
		Rows:    make([][]string, 0, len(lines)-1),
	}
	for _, line := range lines[1:] {
		t.Rows = append(t.Rows, splitLine(line))
	}
	t.buildIndex()
	return t, nil
}

func splitLine(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// buildIndex maps lowercased header names to their first position.
func (t *CsvTable) buildIndex() {
	t.index = make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		key := strings.ToLower(h)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
}

// HeaderIndex returns the position of a header, compared case-insensitively.
func (t *CsvTable) HeaderIndex(name string) (int, bool) {
	if t.index == nil {
		t.buildIndex()
	}
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// HasColumn reports whether the header contains name.
func (t *CsvTable) HasColumn(name string) bool {
	_, ok := t.HeaderIndex(name)
	return ok
}

// Column returns the value of the named column in row, or "" when the column
// does not exist or the row is too short.
func (t *CsvTable) Column(row []string, name string) string {
	i, ok := t.HeaderIndex(name)
	if !ok {
		return ""
	}
	return t.ColumnAt(row, i)
}

// ColumnAt returns row[i], or "" when i is out of range.
func (t *CsvTable) ColumnAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// DataRow returns the data row with the given 1-based number.
func (t *CsvTable) DataRow(number int) []string {
	if number < 1 || number > len(t.Rows) {
		return nil
	}
	return t.Rows[number-1]
}

// Len returns the number of data rows.
func (t *CsvTable) Len() int {
	return len(t.Rows)
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
