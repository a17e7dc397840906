package service

import (
	"context"
	"sort"
	"time"

	"unit-tracker/internal/models"
	"unit-tracker/internal/state"

	"go.uber.org/zap"
)

// AlertAPI 报警相关的 REST 调用
type AlertAPI interface {
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id models.ID) (models.Alert, error)
}

// AlertFilter 报警列表过滤，零值字段不参与过滤
type AlertFilter struct {
	Severity     string
	Acknowledged *bool
}

// AlertService 报警页
type AlertService interface {
	Load(ctx context.Context) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id models.ID) error
	Filter(f AlertFilter) []models.Alert
}

type alertService struct {
	api    AlertAPI
	store  *state.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewAlertService 创建 AlertService 实例
func NewAlertService(api AlertAPI, store *state.Store, logger *zap.Logger) AlertService {
	return &alertService{api: api, store: store, logger: logger, now: time.Now}
}

// Load 拉取报警列表替换本地列表（最新在前）
func (s *alertService) Load(ctx context.Context) ([]models.Alert, error) {
	alerts, err := s.api.ListAlerts(ctx)
	if err != nil {
		s.logger.Error("ListAlerts failed", zap.Error(err))
		return nil, err
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	s.store.SetAlerts(alerts)
	return s.store.Alerts(), nil
}

// Acknowledge 先调用 API，成功后标记本地条目
func (s *alertService) Acknowledge(ctx context.Context, id models.ID) error {
	acked, err := s.api.AcknowledgeAlert(ctx, id)
	if err != nil {
		s.logger.Error("AcknowledgeAlert failed", zap.String("alert_id", string(id)), zap.Error(err))
		return err
	}

	by := acked.AcknowledgedBy
	if by == "" {
		if u := s.store.User(); u != nil {
			by = u.DisplayName()
		}
	}
	at := s.now()
	if acked.AcknowledgedAt != nil {
		at = *acked.AcknowledgedAt
	}
	if !s.store.AcknowledgeAlert(id, by, at) {
		s.logger.Debug("Acknowledged alert is not in local list", zap.String("alert_id", string(id)))
	}
	return nil
}

func (s *alertService) Filter(f AlertFilter) []models.Alert {
	alerts := s.store.Alerts()
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out
}
