package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"unit-tracker/internal/models"
)

// DecodePosition 解析 location 事件
func DecodePosition(data json.RawMessage) (models.Position, error) {
	var pos models.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return models.Position{}, fmt.Errorf("failed to decode location event: %w", err)
	}
	if pos.DeviceID == "" {
		return models.Position{}, errors.New("location event has no device_id")
	}
	return pos, nil
}

// DecodeAlert 解析 alert 事件
func DecodeAlert(data json.RawMessage) (models.Alert, error) {
	var alert models.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to decode alert event: %w", err)
	}
	if alert.ID == "" {
		return models.Alert{}, errors.New("alert event has no id")
	}
	return alert, nil
}

// DecodeDeviceStatus 解析 device_status 事件
func DecodeDeviceStatus(data json.RawMessage) (models.DeviceStatusChange, error) {
	var change models.DeviceStatusChange
	if err := json.Unmarshal(data, &change); err != nil {
		return models.DeviceStatusChange{}, fmt.Errorf("failed to decode device_status event: %w", err)
	}
	if change.DeviceID == "" {
		return models.DeviceStatusChange{}, errors.New("device_status event has no device_id")
	}
	return change, nil
}
