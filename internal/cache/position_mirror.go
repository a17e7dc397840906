package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"unit-tracker/internal/models"

	"go.uber.org/zap"
)

const positionKeyPrefix = "tracker:position:"

// PositionMirror 把最新位置镜像到 Redis，key 为 tracker:position:{device_id}
// 控制器启动时用 All 预热位置缓存
type PositionMirror struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewPositionMirror ttl <= 0 时 key 不过期
func NewPositionMirror(kv KVStore, ttl time.Duration, logger *zap.Logger) *PositionMirror {
	return &PositionMirror{kv: kv, ttl: ttl, logger: logger}
}

func positionKey(id models.ID) string {
	return positionKeyPrefix + string(id)
}

// Put 写入一个设备的最新位置
func (m *PositionMirror) Put(ctx context.Context, pos models.Position) error {
	if pos.DeviceID == "" {
		return errors.New("position has no device_id")
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := m.kv.Set(ctx, positionKey(pos.DeviceID), string(data), m.ttl); err != nil {
		return fmt.Errorf("failed to mirror position: %w", err)
	}
	return nil
}

// Get 读取一个设备的位置，不存在时返回 ErrCacheMiss
func (m *PositionMirror) Get(ctx context.Context, id models.ID) (models.Position, error) {
	val, err := m.kv.Get(ctx, positionKey(id))
	if err != nil {
		return models.Position{}, err
	}
	var pos models.Position
	if err := json.Unmarshal([]byte(val), &pos); err != nil {
		return models.Position{}, fmt.Errorf("failed to parse mirrored position: %w", err)
	}
	return pos, nil
}

// All 读取全部镜像位置；解析失败的条目跳过
func (m *PositionMirror) All(ctx context.Context) (map[models.ID]models.Position, error) {
	keys, err := m.kv.Keys(ctx, positionKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list mirrored positions: %w", err)
	}

	out := make(map[models.ID]models.Position, len(keys))
	for _, key := range keys {
		id := models.ID(strings.TrimPrefix(key, positionKeyPrefix))
		pos, err := m.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				m.logger.Warn("Skipping mirrored position",
					zap.String("device_id", string(id)),
					zap.Error(err),
				)
			}
			continue
		}
		out[id] = pos
	}
	return out, nil
}

// Remove 删除一个设备的镜像
func (m *PositionMirror) Remove(ctx context.Context, id models.ID) error {
	return m.kv.Delete(ctx, positionKey(id))
}
