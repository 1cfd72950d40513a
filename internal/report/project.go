package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvbatch/internal/core"
)

// RowColumn is the first column of every projected table.
const RowColumn = "row"

// Table is a projected view of SUCCESS responses.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Project builds one table row per SUCCESS entry. When label is non-empty only
// entries whose message label matches it (ignoring case) are used. Response
// objects are flattened to dotted keys; arrays of scalars are joined with ";".
// Entries whose body is not JSON contribute their raw body as "body".
func Project(entries []Entry, label string) Table {
	var records []map[string]string
	var rowNums []int
	keys := map[string]struct{}{}

	for _, e := range entries {
		if e.Tag != core.TagSuccess {
			continue
		}
		if label != "" && !strings.EqualFold(e.Label(), label) {
			continue
		}

		rec := map[string]string{}
		if body := strings.TrimSpace(e.Body); body != "" {
			var v any
			if err := json.Unmarshal([]byte(body), &v); err != nil {
				rec["body"] = body
			} else {
				flatten("", v, rec)
			}
		}
		for k := range rec {
			keys[k] = struct{}{}
		}
		records = append(records, rec)
		rowNums = append(rowNums, e.Row)
	}

	cols := make([]string, 0, len(keys))
	for k := range keys {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	t := Table{Columns: append([]string{RowColumn}, cols...), Rows: make([][]string, 0, len(records))}
	for i, rec := range records {
		row := make([]string, 0, len(t.Columns))
		row = append(row, strconv.Itoa(rowNums[i]))
		for _, c := range cols {
			row = append(row, rec[c])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func flatten(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flatten(join(prefix, k), child, out)
		}
	case []any:
		if allScalar(val) {
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = scalar(item)
			}
			out[keyOr(prefix)] = strings.Join(parts, ";")
			return
		}
		for i, item := range val {
			flatten(join(prefix, strconv.Itoa(i)), item, out)
		}
	default:
		out[keyOr(prefix)] = scalar(val)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func keyOr(prefix string) string {
	if prefix == "" {
		return "value"
	}
	return prefix
}

func allScalar(items []any) bool {
	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
