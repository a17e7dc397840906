package mapview

import (
	"sort"
	"strings"
	"time"

	"unit-tracker/internal/geo"
	"unit-tracker/internal/marker"
	"unit-tracker/internal/models"
	"unit-tracker/internal/status"
)

// SortKey 列表排序字段
type SortKey string

const (
	SortName     SortKey = "name"
	SortCode     SortKey = "code"
	SortStatus   SortKey = "status"
	SortBattery  SortKey = "battery"
	SortLastSeen SortKey = "last_seen"
	SortDistance SortKey = "distance"
)

// Filter 视图过滤条件，零值字段不参与过滤
type Filter struct {
	Status          string        // 声明状态 active/inactive/maintenance
	EffectiveStatus status.Status // online/offline/inactive
	MissionID       models.ID     // 只显示分配到该任务的设备
	Search          string        // 名称/编码/IMEI/编队/负责人，不区分大小写
}

// Row 一个设备在视图中的派生数据
type Row struct {
	Device              models.Device
	Position            *models.Position
	Status              status.Status
	Color               marker.HSL
	Icon                marker.Icon
	DistanceToReference *float64 // km
	DistanceToSelected  *float64 // km，选中设备自身为 nil
}

// View 一次渲染所需的全部数据
type View struct {
	Phase           Phase
	Rows            []Row
	Legend          []status.LegendEntry
	Selected        *Row
	Filter          Filter
	ShowTrails      bool
	AutoRefresh     bool
	RefreshInterval time.Duration
	Reference       *Point
	GeneratedAt     time.Time
}

// SetFilter 更新过滤条件（不重新拉取）
func (c *Controller) SetFilter(f Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// SetShowTrails 开关轨迹显示
func (c *Controller) SetShowTrails(show bool) {
	c.mu.Lock()
	c.showTrails = show
	c.mu.Unlock()
}

// SetSort 设置排序字段和方向
func (c *Controller) SetSort(key SortKey, desc bool) {
	c.mu.Lock()
	c.sortKey = key
	c.sortDesc = desc
	c.mu.Unlock()
}

// SetReference 设置参考点
func (c *Controller) SetReference(lat, lon float64) {
	c.mu.Lock()
	c.reference = &Point{Lat: lat, Lon: lon}
	c.mu.Unlock()
}

// ClearReference 清除参考点
func (c *Controller) ClearReference() {
	c.mu.Lock()
	c.reference = nil
	c.mu.Unlock()
}

// View 从当前缓存计算视图；距离每次重新计算
func (c *Controller) View(now time.Time) View {
	devices := c.store.Devices()
	positions := c.store.Positions()
	selectedID := c.store.Selected()

	c.mu.RLock()
	v := View{
		Phase:           c.phase,
		Filter:          c.filter,
		ShowTrails:      c.showTrails,
		AutoRefresh:     c.autoRefresh,
		RefreshInterval: c.interval,
		GeneratedAt:     now,
	}
	if c.reference != nil {
		ref := *c.reference
		v.Reference = &ref
	}
	sortKey, sortDesc := c.sortKey, c.sortDesc
	var mission *models.Mission
	if c.filter.MissionID != "" {
		for i := range c.missions {
			if c.missions[i].ID == c.filter.MissionID {
				m := c.missions[i]
				mission = &m
				break
			}
		}
	}
	c.mu.RUnlock()

	var selectedPos *models.Position
	if selectedID != nil {
		if p, ok := positions[*selectedID]; ok {
			selectedPos = &p
		}
	}

	counts := make(map[status.Status]int, 3)
	v.Rows = make([]Row, 0, len(devices))
	for _, d := range devices {
		row := buildRow(d, positions, now, v.Reference, selectedID, selectedPos)
		counts[row.Status]++
		if selectedID != nil && d.ID == *selectedID {
			sel := row
			v.Selected = &sel
		}
		if !v.Filter.matches(row, mission) {
			continue
		}
		v.Rows = append(v.Rows, row)
	}
	v.Legend = status.Legend(counts)
	sortRows(v.Rows, sortKey, sortDesc)
	return v
}

func buildRow(d models.Device, positions map[models.ID]models.Position, now time.Time, ref *Point, selectedID *models.ID, selectedPos *models.Position) Row {
	row := Row{
		Device: d,
		Status: status.Effective(d, now),
		Color:  marker.ColorFor(d.ID),
		Icon:   marker.IconFor(d),
	}
	p, ok := positions[d.ID]
	if !ok {
		return row
	}
	row.Position = &p
	if ref != nil {
		dist := geo.Distance(ref.Lat, ref.Lon, p.Latitude, p.Longitude)
		row.DistanceToReference = &dist
	}
	if selectedPos != nil && selectedID != nil && *selectedID != d.ID {
		dist := geo.Between(*selectedPos, p)
		row.DistanceToSelected = &dist
	}
	return row
}

func (f Filter) matches(row Row, mission *models.Mission) bool {
	d := row.Device
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.EffectiveStatus != "" && row.Status != f.EffectiveStatus {
		return false
	}
	if f.MissionID != "" && (mission == nil || !mission.HasDevice(d.ID)) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{d.Name, d.Code, d.IMEI, d.UnitCode, d.UnitName, d.AssignedTo}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// sortRows 稳定排序；相同值按名称、ID 排
func sortRows(rows []Row, key SortKey, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := compareRows(a, b, key); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		if a.Device.Name != b.Device.Name {
			return a.Device.Name < b.Device.Name
		}
		return a.Device.ID < b.Device.ID
	})
}

func compareRows(a, b Row, key SortKey) int {
	switch key {
	case SortCode:
		return strings.Compare(a.Device.Code, b.Device.Code)
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortBattery:
		return compareFloat(a.Device.Battery(), b.Device.Battery())
	case SortLastSeen:
		return compareTime(a.Device.LastSeen, b.Device.LastSeen)
	case SortDistance:
		return compareOptional(a.DistanceToReference, b.DistanceToReference)
	default:
		return strings.Compare(strings.ToLower(a.Device.Name), strings.ToLower(b.Device.Name))
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareTime 未知时间排在最前
func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

// compareOptional 没有距离的排在最后
func compareOptional(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compareFloat(*a, *b)
}
