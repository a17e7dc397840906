package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// pdfWidths A4 横向可用宽度约 277mm
var pdfWidths = []float64{14, 20, 32, 28, 30, 20, 20, 16, 16, 32, 20, 29}

// WritePDF 生成横向 A4 表格
func WritePDF(w io.Writer, rows []Row, generated time.Time) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Device Export")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s   Devices: %d", generated.UTC().Format(time.RFC3339), len(rows)))
	pdf.Ln(8)

	header := func() {
		pdf.SetFont("Arial", "B", 7)
		for i, h := range Header {
			pdf.CellFormat(pdfWidths[i], 6, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 7)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, r := range rows {
		if pdf.GetY()+6 > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		for i, v := range Record(r) {
			align := "L"
			if i >= 5 && i <= 7 || i == 10 {
				align = "R"
			}
			pdf.CellFormat(pdfWidths[i], 6, fit(pdf, v, pdfWidths[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// fit 截断超出单元格宽度的文本
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
