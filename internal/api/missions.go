package api

import (
	"context"
	"net/http"
	"net/url"

	"unit-tracker/internal/models"
)

// ListMissions GET /missions/
func (c *Client) ListMissions(ctx context.Context) ([]models.Mission, error) {
	body, err := c.do(ctx, request{
		endpoint: "missions.list",
		method:   http.MethodGet,
		path:     "/missions/",
	})
	if err != nil {
		return nil, err
	}
	return models.DecodeList[models.Mission](body)
}

// GetMission GET /missions/{id}/
func (c *Client) GetMission(ctx context.Context, id models.ID) (models.Mission, error) {
	body, err := c.do(ctx, request{
		endpoint: "missions.get",
		method:   http.MethodGet,
		path:     missionPath(id, ""),
	})
	if err != nil {
		return models.Mission{}, err
	}
	return decodeOne[models.Mission](body, "mission")
}

// CreateMission POST /missions/
func (c *Client) CreateMission(ctx context.Context, in models.MissionInput) (models.Mission, error) {
	body, err := c.do(ctx, request{
		endpoint: "missions.create",
		method:   http.MethodPost,
		path:     "/missions/",
		body:     in,
	})
	if err != nil {
		return models.Mission{}, err
	}
	return decodeOne[models.Mission](body, "mission")
}

// UpdateMission PUT /missions/{id}/
func (c *Client) UpdateMission(ctx context.Context, id models.ID, in models.MissionInput) (models.Mission, error) {
	body, err := c.do(ctx, request{
		endpoint: "missions.update",
		method:   http.MethodPut,
		path:     missionPath(id, ""),
		body:     in,
	})
	if err != nil {
		return models.Mission{}, err
	}
	return decodeOne[models.Mission](body, "mission")
}

// TrackMission GET /missions/{id}/track/
func (c *Client) TrackMission(ctx context.Context, id models.ID) (models.MissionTrack, error) {
	body, err := c.do(ctx, request{
		endpoint: "missions.track",
		method:   http.MethodGet,
		path:     missionPath(id, "track/"),
	})
	if err != nil {
		return models.MissionTrack{}, err
	}
	track, err := decodeOne[models.MissionTrack](body, "mission track")
	if err != nil {
		return models.MissionTrack{}, err
	}
	if track.MissionID == "" {
		track.MissionID = id
	}
	return track, nil
}

func missionPath(id models.ID, suffix string) string {
	return "/missions/" + url.PathEscape(string(id)) + "/" + suffix
}
