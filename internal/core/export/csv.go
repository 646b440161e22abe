package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVExporter writes headers and rows only; title and style are dropped.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter { return &CSVExporter{} }

func (c *CSVExporter) Export(t *Table, w io.Writer) error {
	if err := t.validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

func (c *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

func (c *CSVExporter) Extension() string { return ".csv" }
