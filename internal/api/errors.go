package api

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

var (
	// ErrNotFound 资源不存在（404，或设备没有任何位置记录）
	ErrNotFound = errors.New("api: not found")
	// ErrUnauthorized 凭证无效（401，且刷新后重试仍被拒绝）
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrSessionExpired 刷新令牌失败，本地凭证已清除，需要重新登录
	ErrSessionExpired = errors.New("api: session expired")
	// ErrInvalidCredentials 登录用户名或密码错误
	ErrInvalidCredentials = errors.New("api: invalid credentials")
)

// maxErrorBody Error() 中保留的响应体字节数上限
const maxErrorBody = 200

// APIError 非 2xx 响应
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("api %s: status %d: %s", e.Endpoint, e.StatusCode, body)
}

// Is 让 errors.Is(err, ErrNotFound) 之类的判断对 APIError 生效
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}
