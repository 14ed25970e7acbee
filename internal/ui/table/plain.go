package table

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// PrintJSON outputs rows as a JSON array of objects holding only cols.
func PrintJSON(w io.Writer, cols []viewstate.Column, rows []record.Record) error {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		obj := make(map[string]any, len(cols))
		for _, c := range cols {
			obj[c.ID] = r[c.ID]
		}
		out[i] = obj
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// PrintPlain prints an aligned table for non-TTY output.
// Shows full content without truncation.
func PrintPlain(w io.Writer, cols []viewstate.Column, rows []record.Record) {
	if len(cols) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	cells := make([][]string, len(rows))
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(columnTitle(c))
	}
	for n, r := range rows {
		cells[n] = make([]string, len(cols))
		for i, c := range cols {
			v := r.String(c.ID)
			cells[n][i] = v
			widths[i] = max(widths[i], lipgloss.Width(v))
		}
	}

	line := func(vals []string) {
		for i, v := range vals {
			if i > 0 {
				fmt.Fprint(w, "  ")
			}
			if i == len(vals)-1 {
				fmt.Fprint(w, v)
			} else {
				fmt.Fprint(w, pad(v, widths[i]))
			}
		}
		fmt.Fprintln(w)
	}

	head := make([]string, len(cols))
	seps := make([]string, len(cols))
	for i, c := range cols {
		head[i] = columnTitle(c)
		seps[i] = strings.Repeat("─", widths[i])
	}
	line(head)
	line(seps)
	for _, row := range cells {
		line(row)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

// pad adds spaces to reach the display width (no truncation).
func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
