package push

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrMalformedFrame 收到无法解析的帧（连接仍然可用）
var ErrMalformedFrame = errors.New("push: malformed frame")

// Frame 服务端推送的一条事件
// Type 为服务端事件名（如 "location_update"），Data 为事件内容
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Conn 一条已建立的推送连接
// ReadFrame 按到达顺序返回帧；连接断开后返回非 ErrMalformedFrame 的错误
type Conn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Transport 建立推送连接（WebSocket 或 MQTT）
type Transport interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}
