// Package display renders command output tables.
package display

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Alignment of a table column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Table is a header plus rows of cells.
type Table struct {
	Title   string
	Headers []string
	Aligns  []Alignment
	Rows    [][]string
	Footer  []string
}

// Render writes t to w. Terminals get rounded borders and a coloured
// header; anything else gets plain ASCII so output can be piped.
func Render(w io.Writer, t Table) {
	columns := len(t.Headers)
	if columns == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	colorize := IsTerminal(w)
	if colorize {
		tw.SetStyle(table.StyleRounded)
		tw.Style().Color.Header = text.Colors{text.Bold}
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	if t.Title != "" {
		tw.SetTitle(t.Title)
	}

	tw.AppendHeader(toRow(t.Headers, columns))
	for _, row := range t.Rows {
		tw.AppendRow(toRow(row, columns))
	}
	if len(t.Footer) > 0 {
		tw.AppendFooter(toRow(t.Footer, columns))
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(t.Aligns) && t.Aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			AlignFooter: align,
		})
	}
	tw.SetColumnConfigs(configs)

	tw.Render()
}

func toRow(cells []string, columns int) table.Row {
	r := make(table.Row, columns)
	for i := range columns {
		if i < len(cells) {
			r[i] = cells[i]
		} else {
			r[i] = ""
		}
	}
	return r
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
