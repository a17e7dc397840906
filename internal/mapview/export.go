package mapview

import (
	"fmt"
	"io"
	"time"

	"unit-tracker/internal/export"
	"unit-tracker/internal/metrics"
)

// 导出格式
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ExportCSV 导出当前过滤、排序后的设备列表
func (c *Controller) ExportCSV(w io.Writer, now time.Time) error {
	return c.Export(w, FormatCSV, now)
}

// ExportXLSX 导出为 XLSX
func (c *Controller) ExportXLSX(w io.Writer, now time.Time) error {
	return c.Export(w, FormatXLSX, now)
}

// ExportPDF 导出为 PDF
func (c *Controller) ExportPDF(w io.Writer, now time.Time) error {
	return c.Export(w, FormatPDF, now)
}

// Export 按格式导出
func (c *Controller) Export(w io.Writer, format string, now time.Time) error {
	rows := exportRows(c.View(now).Rows)

	var err error
	switch format {
	case FormatCSV:
		err = export.WriteCSV(w, rows)
	case FormatXLSX:
		err = export.WriteXLSX(w, rows)
	case FormatPDF:
		err = export.WritePDF(w, rows, now)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}

	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		return fmt.Errorf("failed to export %s: %w", format, err)
	}
	metrics.IncExport(format, metrics.ResultSuccess)
	return nil
}

// ExportFileName 导出文件名，如 devices_2026-10-14.csv
func (c *Controller) ExportFileName(format string, now time.Time) string {
	return export.FileName("devices", format, now)
}

func exportRows(rows []Row) []export.Row {
	out := make([]export.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, export.Row{
			Device:   r.Device,
			Position: r.Position,
			Status:   string(r.Status),
			Distance: r.DistanceToReference,
		})
	}
	return out
}
