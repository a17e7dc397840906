package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"unit-tracker/internal/api"
	"unit-tracker/internal/metrics"
	"unit-tracker/internal/models"
	"unit-tracker/internal/push"
	"unit-tracker/internal/state"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Phase 控制器阶段
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

// DefaultRefreshInterval 自动刷新默认间隔
const DefaultRefreshInterval = 30 * time.Second

// DeviceSource 设备与位置的数据来源（REST API）
type DeviceSource interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	CurrentPosition(ctx context.Context, id models.ID) (models.Position, error)
	History(ctx context.Context, id models.ID, hours int) ([]models.Position, error)
	ListMissions(ctx context.Context) ([]models.Mission, error)
}

// EventSource 推送事件来源
type EventSource interface {
	Subscribe(event string, handler push.Handler) push.SubscriptionID
	Unsubscribe(event string, id push.SubscriptionID)
}

// PositionMirror 位置镜像（Redis），可选
type PositionMirror interface {
	Put(ctx context.Context, pos models.Position) error
	All(ctx context.Context) (map[models.ID]models.Position, error)
}

// Point 经纬度
type Point struct {
	Lat float64
	Lon float64
}

// Options 控制器配置
type Options struct {
	RefreshInterval  time.Duration
	AutoRefresh      bool
	FetchConcurrency int
	Reference        *Point
	Mirror           PositionMirror
}

// Controller 地图视图控制器
// 加载设备、初始位置，订阅推送，定时轮询；视图每次调用 View 时从缓存重新计算
type Controller struct {
	source DeviceSource
	events EventSource
	store  *state.Store
	mirror PositionMirror
	logger *zap.Logger

	concurrency int

	mu          sync.RWMutex
	phase       Phase
	missions    []models.Mission
	loaded      bool // 设备列表是否已成功加载
	filter      Filter
	sortKey     SortKey
	sortDesc    bool
	showTrails  bool
	reference   *Point
	autoRefresh bool
	interval    time.Duration

	settings chan struct{}
}

// New 创建控制器
func New(source DeviceSource, events EventSource, store *state.Store, opts Options, logger *zap.Logger) *Controller {
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	concurrency := opts.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	var ref *Point
	if opts.Reference != nil {
		p := *opts.Reference
		ref = &p
	}
	return &Controller{
		source:      source,
		events:      events,
		store:       store,
		mirror:      opts.Mirror,
		logger:      logger,
		concurrency: concurrency,
		phase:       PhaseLoading,
		sortKey:     SortName,
		reference:   ref,
		autoRefresh: opts.AutoRefresh,
		interval:    interval,
		settings:    make(chan struct{}, 1),
	}
}

// Phase 当前阶段
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Missions 已加载的任务列表
func (c *Controller) Missions() []models.Mission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Mission(nil), c.missions...)
}

// Run 加载数据、订阅推送并运行自动刷新，直到 ctx 结束
func (c *Controller) Run(ctx context.Context) error {
	c.setPhase(PhaseLoading)
	c.logger.Info("Map view loading")

	// 先订阅，加载和预取期间到达的推送事件也要生效
	unsubscribe := c.subscribe(ctx)
	defer unsubscribe()

	c.warmFromMirror(ctx)
	if err := c.loadDevices(ctx); err != nil {
		c.logger.Error("Failed to load devices, will retry on next refresh", zap.Error(err))
	}
	c.loadMissions(ctx)
	c.refreshPositions(ctx)

	if ctx.Err() != nil {
		return nil
	}

	c.setPhase(PhaseReady)
	c.logger.Info("Map view ready",
		zap.Int("device_count", len(c.store.Devices())),
		zap.Int("position_count", len(c.store.Positions())),
	)

	c.pollLoop(ctx)
	c.logger.Info("Map view stopped")
	return nil
}

// RefreshNow 立即重新拉取设备列表和所有设备的当前位置
func (c *Controller) RefreshNow(ctx context.Context) error {
	if err := c.loadDevices(ctx); err != nil {
		return err
	}
	c.refreshPositions(ctx)
	return nil
}

// SetAutoRefresh 开关自动刷新
func (c *Controller) SetAutoRefresh(enabled bool) {
	c.mu.Lock()
	c.autoRefresh = enabled
	c.mu.Unlock()
	c.reconfigure()
}

// SetRefreshInterval 修改自动刷新间隔
func (c *Controller) SetRefreshInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", d)
	}
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
	c.reconfigure()
	return nil
}

// Select 选中设备，nil 取消选中
func (c *Controller) Select(id *models.ID) {
	c.store.Select(id)
}

// Trail 按需拉取设备历史轨迹，不写入缓存
func (c *Controller) Trail(ctx context.Context, id models.ID, hours int) ([]models.Position, error) {
	positions, err := c.source.History(ctx, id, hours)
	if err != nil {
		return nil, fmt.Errorf("failed to load trail for device %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) reconfigure() {
	select {
	case c.settings <- struct{}{}:
	default:
	}
}

func (c *Controller) warmFromMirror(ctx context.Context) {
	if c.mirror == nil {
		return
	}
	cached, err := c.mirror.All(ctx)
	if err != nil {
		c.logger.Warn("Failed to read mirrored positions", zap.Error(err))
		return
	}
	for _, pos := range cached {
		c.store.SetPosition(pos)
	}
	c.logger.Debug("Warmed position cache from mirror", zap.Int("position_count", len(cached)))
}

func (c *Controller) loadDevices(ctx context.Context) error {
	devices, err := c.source.ListDevices(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	c.store.SetDevices(devices)
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// loadMissions 任务只用于过滤，失败不影响地图
func (c *Controller) loadMissions(ctx context.Context) {
	missions, err := c.source.ListMissions(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Warn("Failed to load missions", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.missions = missions
	c.mu.Unlock()
}

// refreshPositions 并发拉取每个已知设备的当前位置；单个设备失败只记录日志
func (c *Controller) refreshPositions(ctx context.Context) {
	devices := c.store.Devices()
	if len(devices) == 0 {
		return
	}
	start := time.Now()

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, d := range devices {
		id := d.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			pos, err := c.source.CurrentPosition(ctx, id)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				if errors.Is(err, api.ErrNotFound) {
					c.logger.Debug("Device has no position yet", zap.String("device_id", string(id)))
					return nil
				}
				failed.Add(1)
				c.logger.Warn("Failed to fetch current position",
					zap.String("device_id", string(id)),
					zap.Error(err),
				)
				return nil
			}
			if pos.DeviceID == "" {
				pos.DeviceID = id
			}
			c.applyPosition(ctx, pos)
			return nil
		})
	}
	_ = g.Wait()

	result := metrics.ResultSuccess
	if failed.Load() > 0 {
		result = metrics.ResultError
	}
	metrics.ObservePoll(result, time.Since(start))
	metrics.SetCachedPositions(len(c.store.Positions()))
}

// applyPosition 写入缓存，被接受的样本同时写入镜像
func (c *Controller) applyPosition(ctx context.Context, pos models.Position) {
	if !c.store.SetPosition(pos) || c.mirror == nil {
		return
	}
	if err := c.mirror.Put(ctx, pos); err != nil {
		c.logger.Warn("Failed to mirror position",
			zap.String("device_id", string(pos.DeviceID)),
			zap.Error(err),
		)
	}
}

// subscribe 订阅推送事件，返回注销函数
func (c *Controller) subscribe(ctx context.Context) func() {
	if c.events == nil {
		return func() {}
	}

	locationID := c.events.Subscribe(push.EventLocation, func(data json.RawMessage) error {
		if ctx.Err() != nil {
			return nil
		}
		pos, err := push.DecodePosition(data)
		if err != nil {
			return err
		}
		c.applyPosition(ctx, pos)
		metrics.SetCachedPositions(len(c.store.Positions()))
		return nil
	})
	statusID := c.events.Subscribe(push.EventDeviceStatus, func(data json.RawMessage) error {
		if ctx.Err() != nil {
			return nil
		}
		change, err := push.DecodeDeviceStatus(data)
		if err != nil {
			return err
		}
		if !c.store.SetDeviceStatus(change) {
			c.logger.Debug("Status change for unknown device", zap.String("device_id", string(change.DeviceID)))
		}
		return nil
	})
	alertID := c.events.Subscribe(push.EventAlert, func(data json.RawMessage) error {
		if ctx.Err() != nil {
			return nil
		}
		alert, err := push.DecodeAlert(data)
		if err != nil {
			return err
		}
		c.store.AddAlert(alert)
		return nil
	})

	return func() {
		c.events.Unsubscribe(push.EventLocation, locationID)
		c.events.Unsubscribe(push.EventDeviceStatus, statusID)
		c.events.Unsubscribe(push.EventAlert, alertID)
	}
}

func (c *Controller) refreshSettings() (bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoRefresh, c.interval
}

// pollLoop 自动刷新循环；设置变化时重建 ticker
func (c *Controller) pollLoop(ctx context.Context) {
	for {
		auto, interval := c.refreshSettings()
		if !auto {
			select {
			case <-ctx.Done():
				return
			case <-c.settings:
				continue
			}
		}
		if c.runTicker(ctx, interval) {
			return
		}
	}
}

// runTicker 返回 true 表示 ctx 已结束
func (c *Controller) runTicker(ctx context.Context, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-c.settings:
			return false
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if !loaded {
		if err := c.loadDevices(ctx); err != nil {
			c.logger.Warn("Device list still unavailable", zap.Error(err))
			return
		}
	}
	c.refreshPositions(ctx)
}
