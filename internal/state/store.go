package state

import (
	"sync"
	"time"

	"unit-tracker/internal/models"
)

// MaxAlerts 报警列表最多保留条数（最新在前）
const MaxAlerts = 100

// Slice 可订阅的状态分片
type Slice int

const (
	SliceUser Slice = iota
	SliceDevices
	SlicePositions
	SliceAlerts
	SliceSelection
)

func (s Slice) String() string {
	switch s {
	case SliceUser:
		return "user"
	case SliceDevices:
		return "devices"
	case SlicePositions:
		return "positions"
	case SliceAlerts:
		return "alerts"
	case SliceSelection:
		return "selection"
	}
	return "unknown"
}

// Listener 分片变化回调
type Listener func()

// Option Store 选项
type Option func(*Store)

// WithStalePositionGuard 启用后，比缓存更旧的位置样本会被丢弃
func WithStalePositionGuard(enabled bool) Option {
	return func(s *Store) { s.staleGuard = enabled }
}

// Store 控制台全局状态（显式注入，不使用包级单例）
// 所有修改都通过命名的 setter；读取返回副本
type Store struct {
	mu sync.RWMutex

	user      *models.User
	devices   []models.Device
	positions map[models.ID]models.Position
	alerts    []models.Alert
	selected  *models.ID

	staleGuard bool

	lmu       sync.Mutex
	nextID    int
	listeners map[Slice]map[int]Listener
}

// New 创建状态容器
func New(opts ...Option) *Store {
	s := &Store{
		positions:  make(map[models.ID]models.Position),
		staleGuard: true,
		listeners:  make(map[Slice]map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe 订阅分片变化，返回取消函数
func (s *Store) Subscribe(slice Slice, fn Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	s.nextID++
	id := s.nextID
	if s.listeners[slice] == nil {
		s.listeners[slice] = make(map[int]Listener)
	}
	s.listeners[slice][id] = fn

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners[slice], id)
	}
}

// notify 必须在释放 mu 之后调用
func (s *Store) notify(slice Slice) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners[slice]))
	for _, fn := range s.listeners[slice] {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ---- user ----

// SetUser 设置当前用户
func (s *Store) SetUser(u models.User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	s.notify(SliceUser)
}

// ClearUser 清除当前用户（登出/会话失效）
func (s *Store) ClearUser() {
	s.mu.Lock()
	changed := s.user != nil
	s.user = nil
	s.mu.Unlock()
	if changed {
		s.notify(SliceUser)
	}
}

// User 当前用户，未登录返回 nil
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// ---- devices ----

// SetDevices 替换设备列表
func (s *Store) SetDevices(devices []models.Device) {
	cp := make([]models.Device, len(devices))
	copy(cp, devices)

	s.mu.Lock()
	s.devices = cp
	s.mu.Unlock()
	s.notify(SliceDevices)
}

// UpsertDevice 新增或替换单个设备
func (s *Store) UpsertDevice(d models.Device) {
	s.mu.Lock()
	replaced := false
	for i := range s.devices {
		if s.devices[i].ID == d.ID {
			s.devices[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		s.devices = append(s.devices, d)
	}
	s.mu.Unlock()
	s.notify(SliceDevices)
}

// SetDeviceStatus 应用推送的设备状态变化，设备未知时返回 false
func (s *Store) SetDeviceStatus(change models.DeviceStatusChange) bool {
	s.mu.Lock()
	found := false
	for i := range s.devices {
		if s.devices[i].ID != change.DeviceID {
			continue
		}
		if change.Status != "" {
			s.devices[i].Status = change.Status
		}
		if change.LastSeen != nil {
			ts := *change.LastSeen
			s.devices[i].LastSeen = &ts
		}
		if change.BatteryLevel != nil {
			s.devices[i].BatteryLevel = *change.BatteryLevel
		}
		found = true
		break
	}
	s.mu.Unlock()
	if found {
		s.notify(SliceDevices)
	}
	return found
}

// Devices 设备列表副本
func (s *Store) Devices() []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Device 按 ID 查找设备
func (s *Store) Device(id models.ID) (models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, true
		}
	}
	return models.Device{}, false
}

// ---- positions ----

// SetPosition 写入设备当前位置（最新写入覆盖）
// 返回 false 表示写入未改变状态：样本与缓存完全相同，或被旧样本保护丢弃
func (s *Store) SetPosition(p models.Position) bool {
	s.mu.Lock()
	cur, ok := s.positions[p.DeviceID]
	if ok {
		if cur.Equal(p) {
			s.mu.Unlock()
			return false
		}
		if s.staleGuard && !p.Timestamp.IsZero() && p.Timestamp.Before(cur.Timestamp) {
			s.mu.Unlock()
			return false
		}
	}
	s.positions[p.DeviceID] = p
	s.mu.Unlock()
	s.notify(SlicePositions)
	return true
}

// Position 单个设备的当前位置
func (s *Store) Position(id models.ID) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	return p, ok
}

// Positions 位置缓存副本
func (s *Store) Positions() map[models.ID]models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.ID]models.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// ---- alerts ----

// AddAlert 插入到列表头部，超出 MaxAlerts 的旧记录丢弃
func (s *Store) AddAlert(a models.Alert) {
	s.mu.Lock()
	alerts := make([]models.Alert, 0, min(len(s.alerts)+1, MaxAlerts))
	alerts = append(alerts, a)
	for _, existing := range s.alerts {
		if len(alerts) == MaxAlerts {
			break
		}
		alerts = append(alerts, existing)
	}
	s.alerts = alerts
	s.mu.Unlock()
	s.notify(SliceAlerts)
}

// SetAlerts 替换报警列表（调用方保证最新在前）
func (s *Store) SetAlerts(alerts []models.Alert) {
	n := min(len(alerts), MaxAlerts)
	cp := make([]models.Alert, n)
	copy(cp, alerts[:n])

	s.mu.Lock()
	s.alerts = cp
	s.mu.Unlock()
	s.notify(SliceAlerts)
}

// AcknowledgeAlert 标记报警已确认，找不到返回 false
func (s *Store) AcknowledgeAlert(id models.ID, by string, at time.Time) bool {
	s.mu.Lock()
	found := false
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Acknowledged = true
			s.alerts[i].AcknowledgedBy = by
			ts := at
			s.alerts[i].AcknowledgedAt = &ts
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify(SliceAlerts)
	}
	return found
}

// Alerts 报警列表副本（最新在前）
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ---- selection ----

// Select 选中单个设备，nil 清除选中
func (s *Store) Select(id *models.ID) {
	s.mu.Lock()
	prev := s.selected
	if id == nil {
		s.selected = nil
	} else {
		v := *id
		s.selected = &v
	}
	changed := (prev == nil) != (s.selected == nil) || (prev != nil && *prev != *s.selected)
	s.mu.Unlock()
	if changed {
		s.notify(SliceSelection)
	}
}

// Selected 当前选中的设备 ID
func (s *Store) Selected() *models.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil
	}
	v := *s.selected
	return &v
}
