package report

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// WriteTable writes the attribution as a human-readable table, one row
// per (symbol, source line), most samples first.
func WriteTable(w io.Writer, att *Attribution) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "samples\t%\tsymbol\tsource")
	for _, row := range att.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.Count, percent(row.Count, att.Total), row.Symbol, sourceColumn(row))
	}
	if att.Unattributed > 0 {
		fmt.Fprintf(tw, "%d\t%s\t%s\t\n", att.Unattributed, percent(att.Unattributed, att.Total), "<unattributed>")
	}
	return tw.Flush()
}

func sourceColumn(row Row) string {
	if row.File == "" {
		return "(no source line)"
	}
	return fmt.Sprintf("%s:%d", row.File, row.Line)
}

func percent(n, total uint64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", float64(n)*100/float64(total))
}
