package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// ConsoleSink renders each Write as an aligned text table.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink writes to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Write(_ context.Context, columns []string, rows []row.Row) (int, error) {
	tw := tabwriter.NewWriter(s.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))

	cells := make([]string, len(columns))
	for _, r := range rows {
		for i, c := range columns {
			v := r.Value(c)
			if v.IsNull() {
				cells[i] = "NULL"
				continue
			}
			cells[i] = v.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return 0, fmt.Errorf("console sink: %w", err)
	}
	return len(rows), nil
}

func (s *ConsoleSink) Close() error { return nil }
