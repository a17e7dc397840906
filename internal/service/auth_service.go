package service

import (
	"context"
	"fmt"

	"unit-tracker/internal/models"
	"unit-tracker/internal/state"

	"go.uber.org/zap"
)

// AuthAPI 认证相关的 REST 调用
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (models.TokenPair, error)
	CurrentUser(ctx context.Context) (models.User, error)
	Logout() error
}

// AuthService 登录/登出
type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.User, error)
	Logout() error
	// Restore 本地令牌仍然有效时加载当前用户
	Restore(ctx context.Context) (*models.User, error)
}

type authService struct {
	api    AuthAPI
	store  *state.Store
	logger *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(api AuthAPI, store *state.Store, logger *zap.Logger) AuthService {
	return &authService{api: api, store: store, logger: logger}
}

func (s *authService) Login(ctx context.Context, username, password string) (*models.User, error) {
	verrs := ValidationErrors{}
	if isBlank(username) {
		verrs.Add("username", "username is required")
	}
	if password == "" {
		verrs.Add("password", "password is required")
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	if _, err := s.api.Login(ctx, username, password); err != nil {
		s.logger.Warn("Login failed", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	return s.loadUser(ctx)
}

func (s *authService) Logout() error {
	s.store.ClearUser()
	if err := s.api.Logout(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

func (s *authService) Restore(ctx context.Context) (*models.User, error) {
	return s.loadUser(ctx)
}

func (s *authService) loadUser(ctx context.Context) (*models.User, error) {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current user: %w", err)
	}
	s.store.SetUser(user)
	return &user, nil
}
