package export

import (
	"strconv"
	"strings"
	"time"

	"unit-tracker/internal/models"
)

// NA 缺失字段的占位符
const NA = "N/A"

// Header 导出表头（固定列）
var Header = []string{
	"ID",
	"Code",
	"Name",
	"IMEI",
	"Unit",
	"Latitude",
	"Longitude",
	"Battery (%)",
	"Status",
	"Last Seen",
	"Distance (km)",
	"Assigned To",
}

// Row 一行导出数据
// Position 为 nil 表示设备还没有位置；Distance 为 nil 表示没有参考点或没有位置
type Row struct {
	Device   models.Device
	Position *models.Position
	Status   string // 有效状态
	Distance *float64
}

// Record 按 Header 顺序格式化一行
func Record(r Row) []string {
	d := r.Device
	lat, lon := NA, NA
	if r.Position != nil {
		lat = strconv.FormatFloat(r.Position.Latitude, 'f', 6, 64)
		lon = strconv.FormatFloat(r.Position.Longitude, 'f', 6, 64)
	}
	distance := NA
	if r.Distance != nil {
		distance = strconv.FormatFloat(*r.Distance, 'f', 2, 64)
	}
	lastSeen := NA
	if d.LastSeen != nil && !d.LastSeen.IsZero() {
		lastSeen = d.LastSeen.UTC().Format(time.RFC3339)
	}
	status := r.Status
	if status == "" {
		status = d.Status
	}

	return []string{
		orNA(string(d.ID)),
		orNA(d.Code),
		orNA(d.Name),
		orNA(d.IMEI),
		unitLabel(d),
		lat,
		lon,
		strconv.FormatFloat(d.Battery(), 'f', -1, 64),
		orNA(status),
		lastSeen,
		distance,
		orNA(d.AssignedTo),
	}
}

// FileName 导出文件名，如 devices_2026-10-14.csv
func FileName(prefix, ext string, now time.Time) string {
	if prefix == "" {
		prefix = "devices"
	}
	return prefix + "_" + now.Format("2006-01-02") + "." + strings.TrimPrefix(ext, ".")
}

func unitLabel(d models.Device) string {
	switch {
	case d.UnitCode != "" && d.UnitName != "":
		return d.UnitCode + " - " + d.UnitName
	case d.UnitCode != "":
		return d.UnitCode
	case d.UnitName != "":
		return d.UnitName
	default:
		return NA
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NA
	}
	return s
}
