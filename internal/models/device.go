package models

import (
	"math"
	"time"
)

// 设备声明状态（后端字段 status）
const (
	DeviceStatusActive      = "active"
	DeviceStatusInactive    = "inactive"
	DeviceStatusMaintenance = "maintenance"
)

// Device 被跟踪的单元（车辆、人员、装备）
type Device struct {
	ID           ID         `json:"id"`
	Name         string     `json:"name"`
	Code         string     `json:"code"`
	IMEI         string     `json:"imei,omitempty"`
	UnitCode     string     `json:"unit_code,omitempty"` // 所属编队代码
	UnitName     string     `json:"unit_name,omitempty"` // 所属编队名称
	BatteryLevel float64    `json:"battery_level"`
	Status       string     `json:"status"`
	LastSeen     *time.Time `json:"last_seen"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	Category     string     `json:"category,omitempty"`
}

// Battery 电量（限制在 [0,100]）
func (d Device) Battery() float64 {
	if math.IsNaN(d.BatteryLevel) {
		return 0
	}
	return math.Max(0, math.Min(100, d.BatteryLevel))
}

// LastSeenText 最后在线时间，未知时为 "never"
func (d Device) LastSeenText() string {
	if d.LastSeen == nil || d.LastSeen.IsZero() {
		return "never"
	}
	return d.LastSeen.UTC().Format(time.RFC3339)
}

// DeviceInput 创建/更新设备的表单
type DeviceInput struct {
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	IMEI         string  `json:"imei,omitempty"`
	UnitCode     string  `json:"unit_code,omitempty"`
	UnitName     string  `json:"unit_name,omitempty"`
	BatteryLevel float64 `json:"battery_level"`
	Status       string  `json:"status"`
	AssignedTo   string  `json:"assigned_to,omitempty"`
	Category     string  `json:"category,omitempty"`
}

// DeviceStatusChange 推送的设备状态变化
type DeviceStatusChange struct {
	DeviceID     ID         `json:"device_id"`
	Status       string     `json:"status"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	BatteryLevel *float64   `json:"battery_level,omitempty"`
}
