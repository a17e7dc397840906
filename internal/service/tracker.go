package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"unit-tracker/internal/api"
	"unit-tracker/internal/cache"
	"unit-tracker/internal/config"
	"unit-tracker/internal/mapview"
	"unit-tracker/internal/metrics"
	"unit-tracker/internal/push"
	"unit-tracker/internal/state"
	"unit-tracker/internal/status"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TrackerService 控制台主服务：组装 API 客户端、推送通道、状态容器和地图控制器
type TrackerService struct {
	config *config.Config
	logger *zap.Logger

	Client *api.Client
	Store  *state.Store
	Push   *push.Client
	Map    *mapview.Controller

	Auth      AuthService
	Inventory InventoryService
	Missions  MissionService
	Alerts    AlertService
	Analytics AnalyticsService

	pushURL       string
	redisClient   *redis.Client
	metricsServer *http.Server
	logLevel      *zap.AtomicLevel
}

// NewTrackerService 创建主服务
func NewTrackerService(cfg *config.Config, logger *zap.Logger) (*TrackerService, error) {
	tokens, err := newTokenStore(cfg)
	if err != nil {
		return nil, err
	}

	store := state.New(state.WithStalePositionGuard(cfg.Map.StaleGuard))

	client := api.NewClient(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		RetryCount: cfg.API.RetryCount,
		RateLimit:  cfg.API.RateLimit,
		Tokens:     tokens,
	}, logger.Named("api"))
	client.OnSessionExpired(func() {
		logger.Warn("Session expired, login required")
		store.ClearUser()
	})

	transport, pushURL, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	pushClient := push.NewClient(push.Options{
		Transport:      transport,
		Tokens:         func() string { return tokens.Load().Access },
		ReconnectDelay: cfg.Push.ReconnectDelay,
	}, logger.Named("push"))

	s := &TrackerService{
		config:  cfg,
		logger:  logger,
		Client:  client,
		Store:   store,
		Push:    pushClient,
		pushURL: pushURL,
	}

	var mirror mapview.PositionMirror
	if cfg.Redis.Enabled {
		s.redisClient = cache.NewRedisClient(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := cache.Ping(ctx, s.redisClient)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, position mirror disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
			_ = s.redisClient.Close()
			s.redisClient = nil
		} else {
			mirror = cache.NewPositionMirror(cache.NewRedisKVStore(s.redisClient), cfg.Redis.PositionTTL, logger.Named("cache"))
		}
	}

	var ref *mapview.Point
	if cfg.Map.ReferenceLat != nil && cfg.Map.ReferenceLon != nil {
		ref = &mapview.Point{Lat: *cfg.Map.ReferenceLat, Lon: *cfg.Map.ReferenceLon}
	}
	s.Map = mapview.New(client, pushClient, store, mapview.Options{
		RefreshInterval:  cfg.Map.RefreshInterval,
		AutoRefresh:      cfg.Map.AutoRefresh,
		FetchConcurrency: cfg.Map.FetchConcurrency,
		Reference:        ref,
		Mirror:           mirror,
	}, logger.Named("map"))

	s.Auth = NewAuthService(client, store, logger)
	s.Inventory = NewInventoryService(client, store, logger)
	s.Missions = NewMissionService(client, logger)
	s.Alerts = NewAlertService(client, store, logger)
	s.Analytics = NewAnalyticsService(store)

	return s, nil
}

// Start 恢复会话、连接推送通道并运行地图控制器，直到 ctx 结束
func (s *TrackerService) Start(ctx context.Context) error {
	s.serveMetrics()

	if err := s.ensureSession(ctx); err != nil {
		return err
	}

	if _, err := s.Alerts.Load(ctx); err != nil {
		s.logger.Warn("Failed to load alerts", zap.Error(err))
	}

	if err := s.Push.Connect(ctx, s.pushURL); err != nil {
		// 推送不可用时仍然依靠轮询刷新
		s.logger.Warn("Push channel unavailable, relying on polling", zap.Error(err))
	}

	go s.reportLoop(ctx)
	return s.Map.Run(ctx)
}

// Stop 关闭推送通道、Redis 和指标服务
func (s *TrackerService) Stop(ctx context.Context) error {
	s.Push.Disconnect()

	var errs []error
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if s.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ExportOnce 登录、拉取一次位置并导出到 Export.Dir，返回文件路径
func (s *TrackerService) ExportOnce(ctx context.Context, format string) (string, error) {
	if err := s.ensureSession(ctx); err != nil {
		return "", err
	}
	if err := s.Map.RefreshNow(ctx); err != nil {
		return "", err
	}

	now := time.Now()
	if err := os.MkdirAll(s.config.Export.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(s.config.Export.Dir, s.Map.ExportFileName(format, now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if err := s.Map.Export(f, format, now); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}
	return path, nil
}

// ensureSession 优先沿用已保存的令牌，失败时用配置的账号登录
func (s *TrackerService) ensureSession(ctx context.Context) error {
	user, err := s.Auth.Restore(ctx)
	if err == nil {
		s.logger.Info("Session restored", zap.String("username", user.Username))
		return nil
	}
	if s.config.Auth.Username == "" {
		return fmt.Errorf("no valid session and AUTH_USERNAME is not set: %w", err)
	}

	user, err = s.Auth.Login(ctx, s.config.Auth.Username, s.config.Auth.Password)
	if err != nil {
		return fmt.Errorf("failed to login as %s: %w", s.config.Auth.Username, err)
	}
	s.logger.Info("Session started", zap.String("username", user.Username))
	return nil
}

func (s *TrackerService) serveMetrics() {
	if s.config.Metrics.Addr == "" || s.metricsServer != nil {
		return
	}
	metrics.Init()

	s.metricsServer = &http.Server{
		Addr:              s.config.Metrics.Addr,
		Handler:           s.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.config.Metrics.Addr))
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// SetLogLevel 允许通过指标端口的 /log/level 运行时调整日志级别
func (s *TrackerService) SetLogLevel(level zap.AtomicLevel) {
	s.logLevel = &level
}

func (s *TrackerService) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if s.logLevel != nil {
		mux.Handle("/log/level", s.logLevel)
	}
	return mux
}

// reportLoop 按刷新间隔输出一次视图摘要
func (s *TrackerService) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Map.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.report(now)
		}
	}
}

func (s *TrackerService) report(now time.Time) {
	view := s.Map.View(now)
	counts := make(map[status.Status]int, len(view.Legend))
	for _, e := range view.Legend {
		counts[e.Status] = e.Count
	}
	sum := s.Analytics.Summary(now)
	s.logger.Info("Map view",
		zap.String("phase", string(view.Phase)),
		zap.Int("device_count", sum.TotalDevices),
		zap.Int("online", counts[status.Online]),
		zap.Int("offline", counts[status.Offline]),
		zap.Int("inactive", counts[status.Inactive]),
		zap.Int("position_count", sum.PositionsCached),
		zap.Int("low_battery", sum.LowBattery),
		zap.Int("unacknowledged_alerts", sum.Unacknowledged),
		zap.Bool("push_connected", s.Push.Connected()),
	)
}

func newTokenStore(cfg *config.Config) (api.TokenStore, error) {
	if cfg.Auth.TokenFile == "" {
		return api.NewMemoryTokenStore(), nil
	}
	store, err := api.NewFileTokenStore(cfg.Auth.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	return store, nil
}

// newTransport 按配置选择推送通道，返回 transport 和连接地址
func newTransport(cfg *config.Config) (push.Transport, string, error) {
	switch cfg.Push.Transport {
	case "websocket":
		return push.NewWebSocketTransport(), cfg.Push.URL, nil
	case "mqtt":
		return &push.MQTTTransport{
			ClientID:    cfg.Push.MQTT.ClientID,
			Username:    cfg.Push.MQTT.Username,
			TopicPrefix: cfg.Push.MQTT.TopicPrefix,
			QoS:         cfg.Push.MQTT.QoS,
		}, cfg.Push.MQTT.Broker, nil
	}
	return nil, "", fmt.Errorf("unsupported push transport: %s", cfg.Push.Transport)
}
