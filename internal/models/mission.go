package models

import "time"

// 任务生命周期状态
const (
	MissionStatusPlanned   = "planned"
	MissionStatusActive    = "active"
	MissionStatusCompleted = "completed"
	MissionStatusAborted   = "aborted"
)

// Mission 任务记录
type Mission struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Commander   string     `json:"commander,omitempty"`
	Devices     []ID       `json:"devices"`
}

// HasDevice 设备是否分配到该任务
func (m Mission) HasDevice(id ID) bool {
	for _, d := range m.Devices {
		if d == id {
			return true
		}
	}
	return false
}

// MissionInput 创建/更新任务的表单
type MissionInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Commander   string     `json:"commander,omitempty"`
	Devices     []ID       `json:"devices"`
}

// DeviceTrack 单个设备在任务期间的轨迹
type DeviceTrack struct {
	DeviceID  ID         `json:"device_id"`
	Positions []Position `json:"positions"`
}

// MissionTrack GET /missions/{id}/track/ 的返回
type MissionTrack struct {
	MissionID ID            `json:"mission_id"`
	Tracks    []DeviceTrack `json:"tracks"`
}
