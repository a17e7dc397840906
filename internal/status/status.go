package status

import (
	"time"

	"unit-tracker/internal/models"
)

// Status 派生的在线状态（不存储）
type Status string

const (
	Online   Status = "online"
	Offline  Status = "offline"
	Inactive Status = "inactive"
)

// OfflineAfter 超过该时长未上报即视为离线
const OfflineAfter = 10 * time.Minute

// Effective 根据声明状态和最后上报时间计算有效状态
// 非 active → inactive；now - last_seen > 10 分钟 → offline；否则 online
// 每次渲染/轮询都要重新计算，不能缓存
func Effective(d models.Device, now time.Time) Status {
	if d.Status != models.DeviceStatusActive {
		return Inactive
	}
	if d.LastSeen == nil || d.LastSeen.IsZero() {
		return Offline
	}
	if now.Sub(*d.LastSeen) > OfflineAfter {
		return Offline
	}
	return Online
}

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case Online, Offline, Inactive:
		return true
	}
	return false
}

// LegendEntry 图例条目
type LegendEntry struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Count  int    `json:"count"`
}

// Colors 图例颜色
var Colors = map[Status]string{
	Online:   "#4caf50",
	Offline:  "#f44336",
	Inactive: "#9e9e9e",
}

// Legend 按固定顺序（online, offline, inactive）生成图例
func Legend(counts map[Status]int) []LegendEntry {
	order := []struct {
		s     Status
		label string
	}{
		{Online, "Online"},
		{Offline, "Offline"},
		{Inactive, "Inactive"},
	}
	entries := make([]LegendEntry, 0, len(order))
	for _, o := range order {
		entries = append(entries, LegendEntry{
			Status: o.s,
			Label:  o.label,
			Color:  Colors[o.s],
			Count:  counts[o.s],
		})
	}
	return entries
}
