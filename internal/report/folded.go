package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteFoldedStacks writes the attribution in the folded-stacks format
// flamegraph tooling consumes: one "frame count" line per row, most
// samples first. Rows are already sorted by count.
func WriteFoldedStacks(w io.Writer, att *Attribution) error {
	for _, row := range att.Rows {
		if _, err := fmt.Fprintf(w, "%s %d\n", escapeFoldedName(row.Symbol), row.Count); err != nil {
			return err
		}
	}
	if att.Unattributed > 0 {
		if _, err := fmt.Fprintf(w, "<unattributed> %d\n", att.Unattributed); err != nil {
			return err
		}
	}
	return nil
}

func escapeFoldedName(name string) string {
	// semicolons separate frames and newlines separate lines
	name = strings.ReplaceAll(name, ";", "_")
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return "<unknown>"
	}
	return name
}
