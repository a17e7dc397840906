package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"unit-tracker/internal/models"
)

// ListDevices GET /devices/
func (c *Client) ListDevices(ctx context.Context) ([]models.Device, error) {
	body, err := c.do(ctx, request{
		endpoint: "devices.list",
		method:   http.MethodGet,
		path:     "/devices/",
	})
	if err != nil {
		return nil, err
	}
	return models.DecodeList[models.Device](body)
}

// GetDevice GET /devices/{id}/
func (c *Client) GetDevice(ctx context.Context, id models.ID) (models.Device, error) {
	body, err := c.do(ctx, request{
		endpoint: "devices.get",
		method:   http.MethodGet,
		path:     devicePath(id, ""),
	})
	if err != nil {
		return models.Device{}, err
	}
	return decodeOne[models.Device](body, "device")
}

// CreateDevice POST /devices/
func (c *Client) CreateDevice(ctx context.Context, in models.DeviceInput) (models.Device, error) {
	body, err := c.do(ctx, request{
		endpoint: "devices.create",
		method:   http.MethodPost,
		path:     "/devices/",
		body:     in,
	})
	if err != nil {
		return models.Device{}, err
	}
	return decodeOne[models.Device](body, "device")
}

// UpdateDevice PUT /devices/{id}/
func (c *Client) UpdateDevice(ctx context.Context, id models.ID, in models.DeviceInput) (models.Device, error) {
	body, err := c.do(ctx, request{
		endpoint: "devices.update",
		method:   http.MethodPut,
		path:     devicePath(id, ""),
		body:     in,
	})
	if err != nil {
		return models.Device{}, err
	}
	return decodeOne[models.Device](body, "device")
}

// CurrentPosition GET /devices/{id}/current_location/
// 设备还没有任何位置记录时返回 ErrNotFound
func (c *Client) CurrentPosition(ctx context.Context, id models.ID) (models.Position, error) {
	body, err := c.do(ctx, request{
		endpoint: "devices.current_location",
		method:   http.MethodGet,
		path:     devicePath(id, "current_location/"),
	})
	if err != nil {
		return models.Position{}, err
	}
	if isEmptyBody(body) {
		return models.Position{}, ErrNotFound
	}
	pos, err := decodeOne[models.Position](body, "position")
	if err != nil {
		return models.Position{}, err
	}
	if pos.DeviceID == "" {
		pos.DeviceID = id
	}
	return pos, nil
}

// History GET /devices/{id}/history/?hours=N，按时间升序
func (c *Client) History(ctx context.Context, id models.ID, hours int) ([]models.Position, error) {
	if hours <= 0 {
		hours = 24
	}
	body, err := c.do(ctx, request{
		endpoint: "devices.history",
		method:   http.MethodGet,
		path:     devicePath(id, "history/"),
		query:    map[string]string{"hours": strconv.Itoa(hours)},
	})
	if err != nil {
		return nil, err
	}
	positions, err := models.DecodeList[models.Position](body)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].DeviceID == "" {
			positions[i].DeviceID = id
		}
	}
	return positions, nil
}

func devicePath(id models.ID, suffix string) string {
	return "/devices/" + url.PathEscape(string(id)) + "/" + suffix
}

func decodeOne[T any](body []byte, what string) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return v, nil
}

func isEmptyBody(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) == 0 || bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte("{}"))
}
