package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"unit-tracker/internal/metrics"

	"go.uber.org/zap"
)

// 本地事件名
const (
	EventLocation     = "location"
	EventAlert        = "alert"
	EventDeviceStatus = "device_status"
)

// serverEvents 服务端事件名 → 本地事件名；不在表中的事件丢弃
var serverEvents = map[string]string{
	"location_update": EventLocation,
	"alert":           EventAlert,
	"device_status":   EventDeviceStatus,
}

// Handler 事件处理函数，返回的错误只记录日志
type Handler func(data json.RawMessage) error

// SubscriptionID Subscribe 返回的句柄，用于 Unsubscribe
type SubscriptionID uint64

// TokenSource 返回当前 access token（连接/重连时读取）
type TokenSource func() string

// Options 推送客户端配置
type Options struct {
	Transport      Transport
	Tokens         TokenSource
	ReconnectDelay time.Duration // 0 表示断线后不重连
}

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// session 一次 Connect 到 Disconnect 之间的连接状态
type session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn Conn
}

func (s *session) setConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Client 推送事件客户端
// 单个读协程按到达顺序分发事件，处理函数在读协程上依次执行
type Client struct {
	transport      Transport
	tokens         TokenSource
	reconnectDelay time.Duration
	logger         *zap.Logger

	mu       sync.Mutex
	handlers map[string][]subscription
	nextID   SubscriptionID
	session  *session

	connected atomic.Bool
}

// NewClient 创建推送客户端
func NewClient(opts Options, logger *zap.Logger) *Client {
	tokens := opts.Tokens
	if tokens == nil {
		tokens = func() string { return "" }
	}
	return &Client{
		transport:      opts.Transport,
		tokens:         tokens,
		reconnectDelay: opts.ReconnectDelay,
		logger:         logger,
		handlers:       make(map[string][]subscription),
	}
}

// Connect 建立连接并启动读协程；已连接时直接返回
// 连接保持到 Disconnect 或 ctx 结束
func (c *Client) Connect(ctx context.Context, url string) error {
	if c.transport == nil {
		return errors.New("push: no transport configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}

	conn, err := c.transport.Dial(ctx, url, c.tokens())
	if err != nil {
		return fmt.Errorf("failed to connect push channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{}), conn: conn}
	c.session = s
	c.connected.Store(true)

	c.logger.Info("Push channel connected", zap.String("url", url))
	go c.run(runCtx, s, url)
	return nil
}

// Disconnect 关闭连接并等待读协程退出；未连接时什么也不做
// 不能在事件处理函数里调用
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s == nil {
		return
	}

	s.cancel()
	s.closeConn()
	<-s.done
	c.connected.Store(false)
	c.logger.Info("Push channel disconnected")
}

// Connected 当前是否有可用连接
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Subscribe 注册本地事件处理函数
func (c *Client) Subscribe(event string, handler Handler) SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe 注销处理函数；id 不存在时什么也不做
func (c *Client) Unsubscribe(event string, id SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

func (c *Client) run(ctx context.Context, s *session, url string) {
	defer close(s.done)
	defer c.release(s)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	for {
		err := c.readLoop(ctx, conn)
		_ = conn.Close()
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Push channel lost", zap.Error(err))
		if c.reconnectDelay <= 0 {
			return
		}

		conn = c.redial(ctx, url)
		if conn == nil {
			return
		}
		s.setConn(conn)
		c.connected.Store(true)
	}
}

// release 读协程退出时清掉自己的 session，之后可以重新 Connect
func (c *Client) release(s *session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	s.cancel()
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				c.logger.Debug("Dropping malformed push frame", zap.Error(err))
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.dispatch(frame)
	}
}

// redial 按 reconnectDelay 间隔重连，重连时读取当前令牌；ctx 结束返回 nil
func (c *Client) redial(ctx context.Context, url string) Conn {
	timer := time.NewTimer(c.reconnectDelay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		conn, err := c.transport.Dial(ctx, url, c.tokens())
		if err == nil {
			c.logger.Info("Push channel reconnected", zap.Int("attempt", attempt))
			return conn
		}
		c.logger.Warn("Push reconnect failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		timer.Reset(c.reconnectDelay)
	}
}

func (c *Client) dispatch(frame Frame) {
	event, ok := serverEvents[frame.Type]
	if !ok {
		c.logger.Debug("Ignoring unknown push event", zap.String("event_type", frame.Type))
		return
	}
	metrics.IncPushEvent(event)

	c.mu.Lock()
	subs := append([]subscription(nil), c.handlers[event]...)
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.handler(frame.Data); err != nil {
			c.logger.Warn("Push event handler failed",
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
}
