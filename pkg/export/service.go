// Package export renders a user's content history as CSV or Excel for
// download from the dashboard.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/contentdesk/contentdesk/pkg/store"
)

// Format is a supported export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Valid reports whether the format is supported.
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatXLSX
}

var headers = []string{"ID", "Type", "Topic", "Word Count", "Status", "Output", "Created At"}

func row(r *store.ContentRequest) []string {
	topic := ""
	switch {
	case r.Details.Blog != nil:
		topic = r.Details.Blog.Topic
	case r.Details.Seo != nil:
		topic = r.Details.Seo.Topic
	case r.Details.Social != nil:
		topic = r.Details.Social.Topic
	}
	return []string{
		r.ID,
		string(r.ContentType),
		topic,
		fmt.Sprintf("%d", r.Details.WordCount()),
		string(r.Status),
		r.Output,
		r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// Write renders the requests in the given format.
func Write(w io.Writer, format Format, items []*store.ContentRequest) error {
	switch format {
	case FormatXLSX:
		return writeExcel(w, items)
	case FormatCSV:
		return writeCSV(w, items)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, items []*store.ContentRequest) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, item := range items {
		if err := writer.Write(row(item)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeExcel(w io.Writer, items []*store.ContentRequest) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Content"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, item := range items {
		for colIdx, value := range row(item) {
			cell := fmt.Sprintf("%c%d", 'A'+colIdx, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	for i := range headers {
		col := string(rune('A' + i))
		f.SetColWidth(sheetName, col, col, 18)
	}
	f.SetActiveSheet(index)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
