package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport 基于 gorilla/websocket 的推送通道
// 令牌同时放在 ?token= 和 Authorization 头里；帧格式 {"type": "...", "data": {...}}
type WebSocketTransport struct {
	HandshakeTimeout time.Duration
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{HandshakeTimeout: 10 * time.Second}
}

func (t *WebSocketTransport) Dial(ctx context.Context, rawURL, token string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid push url %q: %w", rawURL, err)
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial push channel: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial push channel: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		return Frame{}, fmt.Errorf("%w: %s", ErrMalformedFrame, truncate(data, 120))
	}
	return frame, nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
