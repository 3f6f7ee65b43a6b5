package report

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	lineHeight = 7.0
	labelWidth = 40.0
)

// Render writes d as an A4 PDF.
func Render(w io.Writer, d Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(d.Title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, d.Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for _, r := range d.Meta {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(labelWidth, lineHeight, r.Label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, lineHeight, r.Value, "", 1, "L", false, 0, "")
	}

	if len(d.Camps.Rows) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, lineHeight+1, "Camps", "", 1, "L", false, 0, "")
		drawTable(pdf, d.Camps)
	}

	pdf.Ln(4)
	drawTable(pdf, d.Body)

	pdf.Ln(4)
	for _, r := range d.Totals {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(labelWidth+60, lineHeight+1, r.Label, "", 0, "R", false, 0, "")
		pdf.CellFormat(0, lineHeight+1, r.Value, "", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func drawTable(pdf *fpdf.Fpdf, t Table) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 236, 245)
	for i, h := range t.Header {
		pdf.CellFormat(t.Widths[i], lineHeight, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, row := range t.Rows {
		for i, cell := range row {
			align := "L"
			if i > 0 && i == len(row)-1 {
				align = "R"
			}
			pdf.CellFormat(t.Widths[i], lineHeight, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}
