package report

import (
	"bytes"
	"time"

	"github.com/go-pdf/fpdf"
)

// renderPDF lays the table out as a paginated A4 document. Timestamps are
// pinned so identical input yields byte-identical output.
func renderPDF(t table) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreationDate(time.Unix(0, 0).UTC())
	doc.SetModificationDate(time.Unix(0, 0).UTC())
	doc.SetTitle("Report", false)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()

	pageWidth, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	usable := pageWidth - left - right
	colWidth := usable / float64(len(t.Columns))
	const rowHeight = 8.0

	header := func() {
		doc.SetFont("Helvetica", "B", 10)
		doc.SetFillColor(230, 230, 230)
		for _, col := range t.Columns {
			doc.CellFormat(colWidth, rowHeight, col, "1", 0, "L", true, 0, "")
		}
		doc.Ln(rowHeight)
		doc.SetFont("Helvetica", "", 10)
	}
	header()

	_, pageHeight := doc.GetPageSize()
	for _, row := range t.Rows {
		if doc.GetY()+rowHeight > pageHeight-15 {
			doc.AddPage()
			header()
		}
		for _, cell := range row {
			doc.CellFormat(colWidth, rowHeight, cell, "1", 0, "L", false, 0, "")
		}
		doc.Ln(rowHeight)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
