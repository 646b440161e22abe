package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter implements Excel export using excelize
type ExcelExporter struct {
	sheetName string
}

func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{sheetName: "Report"}
}

func (e *ExcelExporter) Export(t *Table, w io.Writer) error {
	if err := t.validate(); err != nil {
		return err
	}
	style := t.style()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", e.sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	row := 1
	if t.Title != "" {
		titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
		if err != nil {
			return fmt.Errorf("failed to create title style: %w", err)
		}
		f.SetCellValue(e.sheetName, cell(1, row), t.Title)
		f.SetCellStyle(e.sheetName, cell(1, row), cell(1, row), titleStyle)
		row++
		if t.Subtitle != "" {
			f.SetCellValue(e.sheetName, cell(1, row), t.Subtitle)
			row++
		}
		if !t.GeneratedAt.IsZero() {
			f.SetCellValue(e.sheetName, cell(1, row), "Generated "+t.GeneratedAt.Format("2006-01-02 15:04 MST"))
			row++
		}
		row++
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: style.FontSize, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(style.HeaderBgColor, "#")}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	stripeStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: style.FontSize},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(style.StripeColor, "#")}},
	})
	if err != nil {
		return fmt.Errorf("failed to create row style: %w", err)
	}

	headerRow := row
	for col, h := range t.Headers {
		f.SetCellValue(e.sheetName, cell(col+1, row), h)
		if width, ok := style.ColumnWidths[col]; ok {
			name, _ := excelize.ColumnNumberToName(col + 1)
			f.SetColWidth(e.sheetName, name, name, width)
		}
	}
	f.SetCellStyle(e.sheetName, cell(1, row), cell(len(t.Headers), row), headerStyle)
	row++

	for i, values := range t.Rows {
		for col, v := range values {
			f.SetCellValue(e.sheetName, cell(col+1, row), v)
		}
		if i%2 == 1 {
			f.SetCellStyle(e.sheetName, cell(1, row), cell(len(values), row), stripeStyle)
		}
		row++
	}

	f.SetPanes(e.sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: cell(1, headerRow+1),
		ActivePane:  "bottomLeft",
	})
	lastRow := headerRow + len(t.Rows)
	if err := f.AutoFilter(e.sheetName, cell(1, headerRow)+":"+cell(len(t.Headers), lastRow), nil); err != nil {
		return fmt.Errorf("failed to add filter: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func (e *ExcelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *ExcelExporter) Extension() string { return ".xlsx" }

// cell names a 1-based (col, row) pair, e.g. (2, 3) -> "B3".
func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
