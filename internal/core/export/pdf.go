package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter implements PDF export using gofpdf
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

func (p *PDFExporter) Export(t *Table, w io.Writer) error {
	if err := t.validate(); err != nil {
		return err
	}
	style := t.style()

	orientation := "P"
	if style.Landscape {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	// core fonts are cp1252; donor names often carry accents
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if t.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(0, 8, tr(t.Title))
		pdf.Ln(9)
	}
	if t.Subtitle != "" {
		pdf.SetFont("Arial", "", style.FontSize)
		pdf.MultiCell(0, 5, tr(t.Subtitle), "", "", false)
	}
	if !t.GeneratedAt.IsZero() {
		pdf.SetFont("Arial", "I", 7)
		pdf.Cell(0, 5, "Generated "+t.GeneratedAt.Format("2006-01-02 15:04 MST"))
		pdf.Ln(7)
	}

	pageWidth, pageHeight := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	colWidth := (pageWidth - left - right) / float64(len(t.Headers))

	hr, hg, hb := hexToRGB(style.HeaderBgColor)
	header := func() {
		pdf.SetFont("Arial", "B", style.FontSize)
		pdf.SetFillColor(hr, hg, hb)
		pdf.SetTextColor(255, 255, 255)
		for _, h := range t.Headers {
			pdf.CellFormat(colWidth, 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Arial", "", style.FontSize)
	}
	header()

	sr, sg, sb := hexToRGB(style.StripeColor)
	pdf.SetFillColor(sr, sg, sb)
	for i, values := range t.Rows {
		if pdf.GetY()+6 > pageHeight-bottom {
			pdf.AddPage()
			header()
			pdf.SetFillColor(sr, sg, sb)
		}
		for _, v := range values {
			pdf.CellFormat(colWidth, 6, tr(truncate(v, colWidth)), "1", 0, "L", i%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

func (p *PDFExporter) ContentType() string { return "application/pdf" }

func (p *PDFExporter) Extension() string { return ".pdf" }

// truncate keeps roughly what fits a column at the body font size.
func truncate(s string, width float64) string {
	limit := int(width / 1.8)
	r := []rune(s)
	if limit < 4 || len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

func hexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}
