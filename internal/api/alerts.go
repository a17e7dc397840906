package api

import (
	"context"
	"net/http"
	"net/url"

	"unit-tracker/internal/models"
)

// ListAlerts GET /alerts/
func (c *Client) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	body, err := c.do(ctx, request{
		endpoint: "alerts.list",
		method:   http.MethodGet,
		path:     "/alerts/",
	})
	if err != nil {
		return nil, err
	}
	return models.DecodeList[models.Alert](body)
}

// AcknowledgeAlert POST /alerts/{id}/acknowledge/
// 后端可能返回空响应体，此时只回填 ID 和已确认标记
func (c *Client) AcknowledgeAlert(ctx context.Context, id models.ID) (models.Alert, error) {
	body, err := c.do(ctx, request{
		endpoint: "alerts.acknowledge",
		method:   http.MethodPost,
		path:     "/alerts/" + url.PathEscape(string(id)) + "/acknowledge/",
	})
	if err != nil {
		return models.Alert{}, err
	}
	if isEmptyBody(body) {
		return models.Alert{ID: id, Acknowledged: true}, nil
	}
	alert, err := decodeOne[models.Alert](body, "alert")
	if err != nil {
		return models.Alert{}, err
	}
	if alert.ID == "" {
		alert.ID = id
	}
	alert.Acknowledged = true
	return alert, nil
}
