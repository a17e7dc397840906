package service

import (
	"context"
	"sort"
	"strings"

	"unit-tracker/internal/models"
	"unit-tracker/internal/state"

	"go.uber.org/zap"
)

// InventoryAPI 设备清单相关的 REST 调用
type InventoryAPI interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, id models.ID) (models.Device, error)
	CreateDevice(ctx context.Context, in models.DeviceInput) (models.Device, error)
	UpdateDevice(ctx context.Context, id models.ID, in models.DeviceInput) (models.Device, error)
}

// InventoryService 设备清单页
type InventoryService interface {
	List(ctx context.Context, req ListDevicesRequest) (*ListDevicesResponse, error)
	Get(ctx context.Context, id models.ID) (*models.Device, error)
	Create(ctx context.Context, in models.DeviceInput) (*models.Device, error)
	Update(ctx context.Context, id models.ID, in models.DeviceInput) (*models.Device, error)
}

type inventoryService struct {
	api    InventoryAPI
	store  *state.Store
	logger *zap.Logger
}

// NewInventoryService 创建 InventoryService 实例；store 可为 nil
func NewInventoryService(api InventoryAPI, store *state.Store, logger *zap.Logger) InventoryService {
	return &inventoryService{api: api, store: store, logger: logger}
}

// ListDevicesRequest 查询设备列表请求
type ListDevicesRequest struct {
	Search string // 可选：名称/编码/IMEI/负责人
	Status string // 可选：声明状态
	SortBy string // 可选：name, code, battery, status, last_seen（默认 name）
	Desc   bool
	Page   int // 可选，默认 1
	Size   int // 可选，默认 20
}

// ListDevicesResponse 查询设备列表响应
type ListDevicesResponse struct {
	Items []models.Device
	Total int // 过滤后的总数
	Page  int
	Size  int
}

func (s *inventoryService) List(ctx context.Context, req ListDevicesRequest) (*ListDevicesResponse, error) {
	devices, err := s.api.ListDevices(ctx)
	if err != nil {
		s.logger.Error("ListDevices failed", zap.Error(err))
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(req.Search))
	filtered := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if req.Status != "" && d.Status != req.Status {
			continue
		}
		if q != "" && !deviceMatches(d, q) {
			continue
		}
		filtered = append(filtered, d)
	}
	sortDevices(filtered, req.SortBy, req.Desc)

	page := req.Page
	if page <= 0 {
		page = 1
	}
	size := req.Size
	if size <= 0 {
		size = 20
	}
	start := min((page-1)*size, len(filtered))
	end := min(start+size, len(filtered))

	return &ListDevicesResponse{
		Items: filtered[start:end],
		Total: len(filtered),
		Page:  page,
		Size:  size,
	}, nil
}

func (s *inventoryService) Get(ctx context.Context, id models.ID) (*models.Device, error) {
	d, err := s.api.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *inventoryService) Create(ctx context.Context, in models.DeviceInput) (*models.Device, error) {
	if err := ValidateDevice(in); err != nil {
		return nil, err
	}
	d, err := s.api.CreateDevice(ctx, in)
	if err != nil {
		s.logger.Error("CreateDevice failed", zap.String("code", in.Code), zap.Error(err))
		return nil, err
	}
	s.remember(d)
	return &d, nil
}

func (s *inventoryService) Update(ctx context.Context, id models.ID, in models.DeviceInput) (*models.Device, error) {
	if err := ValidateDevice(in); err != nil {
		return nil, err
	}
	d, err := s.api.UpdateDevice(ctx, id, in)
	if err != nil {
		s.logger.Error("UpdateDevice failed", zap.String("device_id", string(id)), zap.Error(err))
		return nil, err
	}
	s.remember(d)
	return &d, nil
}

func (s *inventoryService) remember(d models.Device) {
	if s.store != nil {
		s.store.UpsertDevice(d)
	}
}

// ValidateDevice 设备表单校验
func ValidateDevice(in models.DeviceInput) error {
	verrs := ValidationErrors{}
	if isBlank(in.Name) {
		verrs.Add("name", "name is required")
	}
	if isBlank(in.Code) {
		verrs.Add("code", "code is required")
	}
	if in.BatteryLevel < 0 || in.BatteryLevel > 100 {
		verrs.Add("battery_level", "battery level must be between 0 and 100")
	}
	switch in.Status {
	case models.DeviceStatusActive, models.DeviceStatusInactive, models.DeviceStatusMaintenance:
	default:
		verrs.Add("status", "status must be one of active, inactive, maintenance")
	}
	if in.IMEI != "" && !isDigits(in.IMEI, 15) {
		verrs.Add("imei", "IMEI must be 15 digits")
	}
	return verrs.Err()
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func deviceMatches(d models.Device, q string) bool {
	for _, f := range []string{d.Name, d.Code, d.IMEI, d.AssignedTo, d.UnitCode, d.UnitName} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func sortDevices(devices []models.Device, by string, desc bool) {
	less := func(a, b models.Device) bool {
		switch by {
		case "code":
			return a.Code < b.Code
		case "battery":
			return a.Battery() < b.Battery()
		case "status":
			return a.Status < b.Status
		case "last_seen":
			if a.LastSeen == nil || b.LastSeen == nil {
				return a.LastSeen == nil && b.LastSeen != nil
			}
			return a.LastSeen.Before(*b.LastSeen)
		default:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if desc {
			return less(devices[j], devices[i])
		}
		return less(devices[i], devices[j])
	})
}
