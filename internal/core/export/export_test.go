package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() *Table {
	return &Table{
		Title:       "Campanha Junho",
		Subtitle:    "3 contacts",
		GeneratedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Headers:     []string{"Phone", "Name", "Status"},
		Rows: [][]string{
			{"+5511987654321", "João", "responded"},
			{"+5511912345678", "Ana", "failed"},
			{"+5521998887777", "", "pending"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatExcel, "excel": FormatExcel, "XLSX": FormatExcel, "pdf": FormatPDF, "csv": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.Error(t, err)
}

func TestRenderExcel(t *testing.T) {
	file, err := NewService().Render(sampleTable(), FormatExcel)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", file.Extension)

	f, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Report", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Campanha Junho", title)

	// title, subtitle, generated, blank, header
	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, []string{"Phone", "Name", "Status"}, rows[4])
	assert.Equal(t, []string{"+5511987654321", "João", "responded"}, rows[5])
}

func TestRenderPDF(t *testing.T) {
	file, err := NewService().Render(sampleTable(), FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF-")))
}

func TestRenderCSV(t *testing.T) {
	file, err := NewService().Render(sampleTable(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "Phone,Name,Status\n+5511987654321,João,responded\n+5511912345678,Ana,failed\n+5521998887777,,pending\n", string(file.Data))
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	tbl := sampleTable()
	tbl.Rows = append(tbl.Rows, []string{"only one"})
	_, err := NewService().Render(tbl, FormatCSV)
	assert.Error(t, err)

	_, err = NewService().Render(&Table{}, FormatPDF)
	assert.Error(t, err)
}

func TestHexToRGB(t *testing.T) {
	r, g, b := hexToRGB("#B71C1C")
	assert.Equal(t, []int{0xB7, 0x1C, 0x1C}, []int{r, g, b})
	r, g, b = hexToRGB("nope")
	assert.Equal(t, []int{255, 255, 255}, []int{r, g, b})
}
