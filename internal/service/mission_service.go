package service

import (
	"context"
	"sort"

	"unit-tracker/internal/geo"
	"unit-tracker/internal/models"

	"go.uber.org/zap"
)

// MissionAPI 任务相关的 REST 调用
type MissionAPI interface {
	ListMissions(ctx context.Context) ([]models.Mission, error)
	GetMission(ctx context.Context, id models.ID) (models.Mission, error)
	CreateMission(ctx context.Context, in models.MissionInput) (models.Mission, error)
	UpdateMission(ctx context.Context, id models.ID, in models.MissionInput) (models.Mission, error)
	TrackMission(ctx context.Context, id models.ID) (models.MissionTrack, error)
}

// MissionService 任务页
type MissionService interface {
	List(ctx context.Context, status string) ([]models.Mission, error)
	Get(ctx context.Context, id models.ID) (*models.Mission, error)
	Create(ctx context.Context, in models.MissionInput) (*models.Mission, error)
	Update(ctx context.Context, id models.ID, in models.MissionInput) (*models.Mission, error)
	Track(ctx context.Context, id models.ID) (*MissionTrackSummary, error)
}

// MissionTrackSummary 任务轨迹及每个设备的行进距离
type MissionTrackSummary struct {
	Track        models.MissionTrack
	PathLengthKm map[models.ID]float64
	TotalKm      float64
}

type missionService struct {
	api    MissionAPI
	logger *zap.Logger
}

// NewMissionService 创建 MissionService 实例
func NewMissionService(api MissionAPI, logger *zap.Logger) MissionService {
	return &missionService{api: api, logger: logger}
}

// List status 为空时返回全部任务，按开始时间倒序
func (s *missionService) List(ctx context.Context, status string) ([]models.Mission, error) {
	missions, err := s.api.ListMissions(ctx)
	if err != nil {
		s.logger.Error("ListMissions failed", zap.Error(err))
		return nil, err
	}
	out := make([]models.Mission, 0, len(missions))
	for _, m := range missions {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StartTime, out[j].StartTime
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
	return out, nil
}

func (s *missionService) Get(ctx context.Context, id models.ID) (*models.Mission, error) {
	m, err := s.api.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *missionService) Create(ctx context.Context, in models.MissionInput) (*models.Mission, error) {
	if err := ValidateMission(in); err != nil {
		return nil, err
	}
	m, err := s.api.CreateMission(ctx, in)
	if err != nil {
		s.logger.Error("CreateMission failed", zap.String("name", in.Name), zap.Error(err))
		return nil, err
	}
	return &m, nil
}

func (s *missionService) Update(ctx context.Context, id models.ID, in models.MissionInput) (*models.Mission, error) {
	if err := ValidateMission(in); err != nil {
		return nil, err
	}
	m, err := s.api.UpdateMission(ctx, id, in)
	if err != nil {
		s.logger.Error("UpdateMission failed", zap.String("mission_id", string(id)), zap.Error(err))
		return nil, err
	}
	return &m, nil
}

func (s *missionService) Track(ctx context.Context, id models.ID) (*MissionTrackSummary, error) {
	track, err := s.api.TrackMission(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := &MissionTrackSummary{
		Track:        track,
		PathLengthKm: make(map[models.ID]float64, len(track.Tracks)),
	}
	for _, t := range track.Tracks {
		length := geo.PathLength(t.Positions)
		summary.PathLengthKm[t.DeviceID] += length
		summary.TotalKm += length
	}
	return summary, nil
}

// ValidateMission 任务表单校验
func ValidateMission(in models.MissionInput) error {
	verrs := ValidationErrors{}
	if isBlank(in.Name) {
		verrs.Add("name", "name is required")
	}
	switch in.Status {
	case models.MissionStatusPlanned, models.MissionStatusActive, models.MissionStatusCompleted, models.MissionStatusAborted:
	default:
		verrs.Add("status", "status must be one of planned, active, completed, aborted")
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		verrs.Add("end_time", "end time must not be before start time")
	}
	return verrs.Err()
}
