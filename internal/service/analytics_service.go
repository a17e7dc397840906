package service

import (
	"time"

	"unit-tracker/internal/state"
	"unit-tracker/internal/status"
)

// LowBatteryThreshold 低电量阈值（%）
const LowBatteryThreshold = 20.0

// Summary 统计页数据
type Summary struct {
	TotalDevices     int
	ByEffective      map[status.Status]int
	ByDeclared       map[string]int
	AverageBattery   float64
	LowBattery       int
	PositionsCached  int
	AlertsBySeverity map[string]int
	Unacknowledged   int
	GeneratedAt      time.Time
}

// AnalyticsService 统计页（只读本地状态）
type AnalyticsService interface {
	Summary(now time.Time) Summary
}

type analyticsService struct {
	store *state.Store
}

// NewAnalyticsService 创建 AnalyticsService 实例
func NewAnalyticsService(store *state.Store) AnalyticsService {
	return &analyticsService{store: store}
}

func (s *analyticsService) Summary(now time.Time) Summary {
	devices := s.store.Devices()
	sum := Summary{
		TotalDevices:     len(devices),
		ByEffective:      map[status.Status]int{status.Online: 0, status.Offline: 0, status.Inactive: 0},
		ByDeclared:       make(map[string]int),
		AlertsBySeverity: make(map[string]int),
		PositionsCached:  len(s.store.Positions()),
		GeneratedAt:      now,
	}

	var battery float64
	for _, d := range devices {
		sum.ByEffective[status.Effective(d, now)]++
		sum.ByDeclared[d.Status]++
		b := d.Battery()
		battery += b
		if b < LowBatteryThreshold {
			sum.LowBattery++
		}
	}
	if len(devices) > 0 {
		sum.AverageBattery = battery / float64(len(devices))
	}

	for _, a := range s.store.Alerts() {
		sum.AlertsBySeverity[a.Severity]++
		if !a.Acknowledged {
			sum.Unacknowledged++
		}
	}
	return sum
}
