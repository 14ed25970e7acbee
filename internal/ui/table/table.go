// Package table renders a grid controller: an interactive TUI that drives
// every controller mutation from the keyboard, and plain, JSON and raw
// writers for one-shot output.
package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// DisplayOptions controls how a page is printed.
type DisplayOptions struct {
	// JSON outputs results as a JSON array of objects.
	JSON bool
	// Raw outputs results as tab-separated values (for piping).
	Raw bool
}

// Page is one fetched page with the view that produced it.
type Page struct {
	Columns   []viewstate.Column
	Rows      []record.Record
	Total     int
	PageIndex int
	PageSize  int
}

// PageCount returns the number of pages of the full result.
func (p Page) PageCount() int {
	return fetch.PageCount(p.Total, p.PageSize)
}

// Display writes p to w in the mode selected by opts.
func Display(w io.Writer, p Page, opts DisplayOptions) error {
	switch {
	case opts.JSON:
		return PrintJSON(w, p.Columns, p.Rows)
	case opts.Raw:
		return PrintRaw(w, p.Columns, p.Rows)
	}
	PrintPlain(w, p.Columns, p.Rows)
	fmt.Fprintf(w, "page %d/%d, %d total\n", p.PageIndex+1, max(p.PageCount(), 1), p.Total)
	return nil
}

// PrintRaw writes tab-separated rows without a header.
func PrintRaw(w io.Writer, cols []viewstate.Column, rows []record.Record) error {
	line := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			line[i] = strings.ReplaceAll(r.String(c.ID), "\t", " ")
		}
		if _, err := fmt.Fprintln(w, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func columnTitle(c viewstate.Column) string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}
