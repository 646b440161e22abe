package export

import (
	"bytes"
	"fmt"
)

// Service picks the exporter for a format
type Service struct {
	exporters map[Format]Exporter
}

func NewService() *Service {
	return &Service{exporters: map[Format]Exporter{
		FormatExcel: NewExcelExporter(),
		FormatPDF:   NewPDFExporter(),
		FormatCSV:   NewCSVExporter(),
	}}
}

// File is a rendered report.
type File struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Render exports t in the given format
func (s *Service) Render(t *Table, format Format) (*File, error) {
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	var buf bytes.Buffer
	if err := exporter.Export(t, &buf); err != nil {
		return nil, fmt.Errorf("%s export failed: %w", format, err)
	}
	return &File{Data: buf.Bytes(), ContentType: exporter.ContentType(), Extension: exporter.Extension()}, nil
}
