package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"unit-tracker/internal/metrics"
	"unit-tracker/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// expirySkew 令牌剩余有效期小于该值时提前刷新
const expirySkew = 5 * time.Second

// Login 用户名密码换取令牌，并保存到 TokenStore
func (c *Client) Login(ctx context.Context, username, password string) (models.TokenPair, error) {
	body, err := c.do(ctx, request{
		endpoint: "auth.token",
		method:   http.MethodPost,
		path:     "/auth/token/",
		body:     map[string]string{"username": username, "password": password},
		public:   true,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusBadRequest) {
			return models.TokenPair{}, ErrInvalidCredentials
		}
		return models.TokenPair{}, err
	}

	var pair models.TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if pair.Access == "" {
		return models.TokenPair{}, errors.New("token response has no access token")
	}
	if err := c.tokens.Save(pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to store tokens: %w", err)
	}

	c.logger.Info("Logged in", zap.String("username", username))
	return pair, nil
}

// Logout 清除本地凭证（后端没有登出接口）
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// CurrentUser GET /auth/user/
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	body, err := c.do(ctx, request{
		endpoint: "auth.user",
		method:   http.MethodGet,
		path:     "/auth/user/",
	})
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	if err := json.Unmarshal(body, &user); err != nil {
		return models.User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	return user, nil
}

// Refresh 立即用刷新令牌换新的访问令牌
func (c *Client) Refresh(ctx context.Context) error {
	return c.refreshAfter(ctx, c.tokens.Load().Access)
}

// accessToken 取当前访问令牌；如果是已过期的 JWT 则先刷新
func (c *Client) accessToken(ctx context.Context) (string, error) {
	pair := c.tokens.Load()
	if pair.Access == "" || !tokenExpired(pair.Access, c.now()) {
		return pair.Access, nil
	}
	c.logger.Debug("Access token expired locally, refreshing before request")
	if err := c.refreshAfter(ctx, pair.Access); err != nil {
		return "", err
	}
	return c.tokens.Load().Access, nil
}

// refreshAfter 因 usedToken 被拒绝而刷新
// 同一个 usedToken 的并发调用只发一次刷新请求；如果令牌已经被别的调用换掉，直接返回
func (c *Client) refreshAfter(ctx context.Context, usedToken string) error {
	shared := context.WithoutCancel(ctx)
	_, err, _ := c.refreshGroup.Do("refresh:"+usedToken, func() (any, error) {
		if current := c.tokens.Load().Access; current != "" && current != usedToken {
			return nil, nil
		}
		return nil, c.refresh(shared)
	})
	return err
}

func (c *Client) refresh(ctx context.Context) error {
	pair := c.tokens.Load()
	if pair.Refresh == "" {
		c.expireSession()
		return ErrSessionExpired
	}

	body, err := c.do(ctx, request{
		endpoint: "auth.refresh",
		method:   http.MethodPost,
		path:     "/auth/token/refresh/",
		body:     map[string]string{"refresh": pair.Refresh},
		public:   true,
	})
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			// 网络错误：保留凭证，调用方下次再试
			metrics.IncTokenRefresh(metrics.ResultError)
			return fmt.Errorf("failed to refresh token: %w", err)
		}
		metrics.IncTokenRefresh(metrics.ResultError)
		c.logger.Warn("Token refresh rejected, clearing session",
			zap.Int("status_code", apiErr.StatusCode),
		)
		c.expireSession()
		return ErrSessionExpired
	}

	var refreshed models.TokenPair
	if err := json.Unmarshal(body, &refreshed); err != nil || refreshed.Access == "" {
		metrics.IncTokenRefresh(metrics.ResultError)
		c.expireSession()
		return ErrSessionExpired
	}
	if refreshed.Refresh == "" {
		refreshed.Refresh = pair.Refresh
	}
	if err := c.tokens.Save(refreshed); err != nil {
		metrics.IncTokenRefresh(metrics.ResultError)
		return fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	metrics.IncTokenRefresh(metrics.ResultSuccess)
	c.logger.Info("Access token refreshed")
	return nil
}

// expireSession 清除凭证并通知上层（只在确实有凭证时通知）
func (c *Client) expireSession() {
	had := c.tokens.Load() != (models.TokenPair{})
	if err := c.tokens.Clear(); err != nil {
		c.logger.Error("Failed to clear tokens", zap.Error(err))
	}
	if had && c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}

// tokenExpired 令牌是否为已过期的 JWT；不是 JWT 的令牌一律返回 false
func tokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Add(expirySkew).Before(claims.ExpiresAt.Time)
}
