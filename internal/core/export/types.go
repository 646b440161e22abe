// Package export renders tabular reports as XLSX, PDF or CSV.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"
)

type Format string

const (
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts the query-string spellings operators use.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx", "excel":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", s)
	}
}

// Exporter writes one table in a single file format
type Exporter interface {
	Export(t *Table, w io.Writer) error
	ContentType() string
	Extension() string
}

// Table is a titled grid of already formatted cells.
type Table struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time

	Headers []string
	Rows    [][]string

	Style Style
}

// Style holds presentation options; zero fields fall back to DefaultStyle.
type Style struct {
	Landscape     bool
	HeaderBgColor string // hex, e.g. "#B71C1C"
	StripeColor   string // hex background of every other row
	FontSize      float64
	ColumnWidths  map[int]float64 // xlsx column index -> width
}

// DefaultStyle returns default export styling
func DefaultStyle() Style {
	return Style{
		HeaderBgColor: "#B71C1C",
		StripeColor:   "#F5F5F5",
		FontSize:      9,
		ColumnWidths:  map[int]float64{},
	}
}

func (t *Table) style() Style {
	s := t.Style
	d := DefaultStyle()
	if s.HeaderBgColor == "" {
		s.HeaderBgColor = d.HeaderBgColor
	}
	if s.StripeColor == "" {
		s.StripeColor = d.StripeColor
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	return s
}

func (t *Table) validate() error {
	if len(t.Headers) == 0 {
		return fmt.Errorf("no headers provided")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Headers))
		}
	}
	return nil
}
