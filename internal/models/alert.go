package models

import "time"

// 报警级别
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// 报警类型
const (
	AlertTypeLowBattery  = "low_battery"
	AlertTypeGeofence    = "geofence"
	AlertTypeSOS         = "sos"
	AlertTypeOffline     = "offline"
	AlertTypeSpeeding    = "speeding"
	AlertTypeTamper      = "tamper"
	AlertTypeMaintenance = "maintenance"
	AlertTypeOther       = "other"
)

// Alert 报警事件
type Alert struct {
	ID             ID         `json:"id"`
	DeviceID       ID         `json:"device_id"`
	DeviceName     string     `json:"device_name,omitempty"`
	Severity       string     `json:"severity"`
	Type           string     `json:"alert_type"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}
