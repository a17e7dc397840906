package models

import "time"

// Position 单个位置样本
type Position struct {
	DeviceID       ID        `json:"device_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Altitude       *float64  `json:"altitude,omitempty"`
	Speed          *float64  `json:"speed,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	Accuracy       *float64  `json:"accuracy,omitempty"`
	SignalStrength *int      `json:"signal_strength,omitempty"` // 0..5
	Satellites     *int      `json:"satellites,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Signal 信号强度（限制在 0..5），未知返回 -1
func (p Position) Signal() int {
	if p.SignalStrength == nil {
		return -1
	}
	s := *p.SignalStrength
	if s < 0 {
		return 0
	}
	if s > 5 {
		return 5
	}
	return s
}

// Equal 比较两个样本的所有字段
func (p Position) Equal(o Position) bool {
	return p.DeviceID == o.DeviceID &&
		p.Latitude == o.Latitude &&
		p.Longitude == o.Longitude &&
		floatPtrEqual(p.Altitude, o.Altitude) &&
		floatPtrEqual(p.Speed, o.Speed) &&
		floatPtrEqual(p.Heading, o.Heading) &&
		floatPtrEqual(p.Accuracy, o.Accuracy) &&
		intPtrEqual(p.SignalStrength, o.SignalStrength) &&
		intPtrEqual(p.Satellites, o.Satellites) &&
		p.Timestamp.Equal(o.Timestamp)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
