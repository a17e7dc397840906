package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"unit-tracker/internal/models"
)

// TokenStore 访问令牌/刷新令牌的存储
type TokenStore interface {
	Load() models.TokenPair
	Save(pair models.TokenPair) error
	Clear() error
}

// MemoryTokenStore 进程内存储（重启即丢失）
type MemoryTokenStore struct {
	mu   sync.RWMutex
	pair models.TokenPair
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() models.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func (s *MemoryTokenStore) Save(pair models.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save(models.TokenPair{})
}

// FileTokenStore 将令牌保存到本地 JSON 文件（权限 0600），跨进程重启保留
type FileTokenStore struct {
	path string
	mem  MemoryTokenStore
}

// NewFileTokenStore 打开令牌文件，文件不存在时视为未登录
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		return nil, errors.New("token file path is empty")
	}
	s := &FileTokenStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var pair models.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	s.mem.pair = pair
	return s, nil
}

func (s *FileTokenStore) Load() models.TokenPair {
	return s.mem.Load()
}

func (s *FileTokenStore) Save(pair models.TokenPair) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if err := s.write(pair); err != nil {
		return err
	}
	s.mem.pair = pair
	return nil
}

func (s *FileTokenStore) Clear() error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	s.mem.pair = models.TokenPair{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// write 先写临时文件再 rename，文件内容总是完整的一份
func (s *FileTokenStore) write(pair models.TokenPair) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
