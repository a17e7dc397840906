package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config unit-tracker 控制台配置
type Config struct {
	API struct {
		BaseURL    string        `yaml:"base_url"`    // REST API 根地址，如 "http://localhost:8000/api"
		Timeout    time.Duration `yaml:"timeout"`     // 单次请求超时
		RetryCount int           `yaml:"retry_count"` // 网络错误重试次数（不含 401 刷新重试）
		RateLimit  float64       `yaml:"rate_limit"`  // 每秒请求上限，0 表示不限
	} `yaml:"api"`

	Push struct {
		URL            string        `yaml:"url"`             // 推送通道地址
		Transport      string        `yaml:"transport"`       // "websocket" 或 "mqtt"
		ReconnectDelay time.Duration `yaml:"reconnect_delay"` // 断线重连间隔，0 表示不重连
		MQTT           MQTTConfig    `yaml:"mqtt"`
	} `yaml:"push"`

	Map struct {
		RefreshInterval  time.Duration `yaml:"refresh_interval"`  // 自动刷新间隔，默认 30 秒
		AutoRefresh      bool          `yaml:"auto_refresh"`      // 是否启用自动刷新
		FetchConcurrency int           `yaml:"fetch_concurrency"` // 批量拉取位置的并发数
		ReferenceLat     *float64      `yaml:"reference_lat"`     // 参考点（可选）
		ReferenceLon     *float64      `yaml:"reference_lon"`
		StaleGuard       bool          `yaml:"stale_guard"` // 丢弃比缓存更旧的位置样本
	} `yaml:"map"`

	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Addr        string        `yaml:"addr"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		PositionTTL time.Duration `yaml:"position_ttl"` // 位置镜像 TTL
	} `yaml:"redis"`

	Auth struct {
		TokenFile string `yaml:"token_file"` // 令牌持久化文件，空则只保存在内存
		Username  string `yaml:"username"`   // 无人值守登录（可选）
		Password  string `yaml:"password"`
	} `yaml:"auth"`

	Metrics struct {
		Addr string `yaml:"addr"` // Prometheus 监听地址，空则不启动
	} `yaml:"metrics"`

	Export struct {
		Dir string `yaml:"dir"`
	} `yaml:"export"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// MQTTConfig MQTT 推送通道配置
type MQTTConfig struct {
	Broker      string `yaml:"broker"`       // 如 "tcp://localhost:1883"
	ClientID    string `yaml:"client_id"`    // 客户端 ID 前缀
	Username    string `yaml:"username"`     // 用户名（密码使用 access token）
	TopicPrefix string `yaml:"topic_prefix"` // 订阅前缀，如 "tracker/events"
	QoS         byte   `yaml:"qos"`
}

// Load 加载配置
// 顺序：.env（可选）→ 环境变量 → TRACKER_CONFIG 指定的 YAML 文件（覆盖）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.API.BaseURL = strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000/api"), "/")
	cfg.API.Timeout = getDuration("API_TIMEOUT", 15*time.Second)
	cfg.API.RetryCount = getInt("API_RETRY_COUNT", 2)
	cfg.API.RateLimit = getFloat("API_RATE_LIMIT", 0)

	cfg.Push.URL = getEnv("PUSH_URL", "ws://localhost:8000/ws/tracking/")
	cfg.Push.Transport = getEnv("PUSH_TRANSPORT", "websocket")
	cfg.Push.ReconnectDelay = getDuration("PUSH_RECONNECT_DELAY", 5*time.Second)
	cfg.Push.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.Push.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "unit-tracker")
	cfg.Push.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.Push.MQTT.TopicPrefix = strings.TrimRight(getEnv("MQTT_TOPIC_PREFIX", "tracker/events"), "/")
	cfg.Push.MQTT.QoS = byte(getInt("MQTT_QOS", 1))

	cfg.Map.RefreshInterval = getDuration("MAP_REFRESH_INTERVAL", 30*time.Second)
	cfg.Map.AutoRefresh = getEnv("MAP_AUTO_REFRESH", "true") == "true"
	cfg.Map.FetchConcurrency = getInt("MAP_FETCH_CONCURRENCY", 4)
	cfg.Map.ReferenceLat = getFloatPtr("MAP_REFERENCE_LAT")
	cfg.Map.ReferenceLon = getFloatPtr("MAP_REFERENCE_LON")
	cfg.Map.StaleGuard = getEnv("MAP_STALE_GUARD", "true") == "true"

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)
	cfg.Redis.PositionTTL = getDuration("REDIS_POSITION_TTL", 15*time.Minute)

	cfg.Auth.TokenFile = getEnv("AUTH_TOKEN_FILE", defaultTokenFile())
	cfg.Auth.Username = getEnv("AUTH_USERNAME", "")
	cfg.Auth.Password = getEnv("AUTH_PASSWORD", "")

	cfg.Metrics.Addr = getEnv("METRICS_ADDR", "")
	cfg.Export.Dir = getEnv("EXPORT_DIR", ".")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if path := os.Getenv("TRACKER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	switch c.Push.Transport {
	case "websocket", "mqtt":
	default:
		return fmt.Errorf("unsupported push transport: %s", c.Push.Transport)
	}
	if c.Map.RefreshInterval <= 0 {
		return fmt.Errorf("map refresh interval must be positive, got %s", c.Map.RefreshInterval)
	}
	if c.Map.FetchConcurrency <= 0 {
		c.Map.FetchConcurrency = 1
	}
	if (c.Map.ReferenceLat == nil) != (c.Map.ReferenceLon == nil) {
		return fmt.Errorf("MAP_REFERENCE_LAT and MAP_REFERENCE_LON must be set together")
	}
	return nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "unit-tracker", "tokens.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getFloatPtr(key string) *float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return nil
	}
	return &v
}

// getDuration 支持 "30s" 这种写法，也支持纯数字（秒）
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
