package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"unit-tracker/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Options 客户端配置
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int     // 网络错误重试次数
	RateLimit  float64 // 每秒请求上限，0 不限
	Tokens     TokenStore

	// OnSessionExpired 刷新令牌失败、本地凭证被清除后调用（回到登录流程）
	OnSessionExpired func()
}

// Client 跟踪平台 REST API 客户端
// 401 时用刷新令牌刷新一次并重试原请求一次；并发的 401 共享同一次刷新
type Client struct {
	httpClient *resty.Client
	tokens     TokenStore
	limiter    *rate.Limiter
	logger     *zap.Logger

	refreshGroup     singleflight.Group
	onSessionExpired func()
	now              func() time.Time
}

// NewClient 创建 API 客户端
func NewClient(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	tokens := opts.Tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		httpClient:       client,
		tokens:           tokens,
		limiter:          limiter,
		logger:           logger,
		onSessionExpired: opts.OnSessionExpired,
		now:              time.Now,
	}
}

// Tokens 当前使用的令牌存储
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// OnSessionExpired 替换会话失效回调
func (c *Client) OnSessionExpired(fn func()) {
	c.onSessionExpired = fn
}

// request 一次 API 调用的描述
type request struct {
	endpoint string // 指标/日志用的短名，如 "devices.list"
	method   string
	path     string
	query    map[string]string
	body     any
	public   bool // 不带令牌，也不走 401 刷新（登录、刷新本身）
}

// do 发送请求并返回 2xx 响应体
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	token := ""
	if !req.public {
		var err error
		token, err = c.accessToken(ctx)
		if err != nil {
			metrics.ObserveAPIRequest(req.endpoint, metrics.ResultError)
			return nil, err
		}
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized && !req.public {
		c.logger.Info("Access token rejected, refreshing",
			zap.String("endpoint", req.endpoint),
		)
		if err := c.refreshAfter(ctx, token); err != nil {
			metrics.ObserveAPIRequest(req.endpoint, metrics.ResultError)
			return nil, err
		}
		resp, err = c.send(ctx, req, c.tokens.Load().Access)
		if err != nil {
			return nil, err
		}
	}

	return c.result(req, resp)
}

func (c *Client) send(ctx context.Context, req request, token string) (*resty.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	r := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
	if token != "" {
		r.SetAuthToken(token)
	}
	if len(req.query) > 0 {
		r.SetQueryParams(req.query)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}

	resp, err := r.Execute(req.method, req.path)
	if err != nil {
		c.logger.Error("API call failed",
			zap.String("endpoint", req.endpoint),
			zap.String("path", req.path),
			zap.Error(err),
		)
		metrics.ObserveAPIRequest(req.endpoint, metrics.ResultError)
		return nil, fmt.Errorf("failed to call %s: %w", req.endpoint, err)
	}
	return resp, nil
}

func (c *Client) result(req request, resp *resty.Response) ([]byte, error) {
	if resp.IsSuccess() {
		metrics.ObserveAPIRequest(req.endpoint, metrics.ResultSuccess)
		return resp.Body(), nil
	}

	metrics.ObserveAPIRequest(req.endpoint, metrics.ResultError)
	apiErr := &APIError{
		Endpoint:   req.endpoint,
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}
	if resp.StatusCode() != http.StatusNotFound {
		c.logger.Warn("API returned error",
			zap.String("endpoint", req.endpoint),
			zap.Int("status_code", resp.StatusCode()),
		)
	}
	return nil, apiErr
}
