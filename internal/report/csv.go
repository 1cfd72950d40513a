package report

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
)

// WriteCSV writes t with its header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
