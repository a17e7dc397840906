package models

// User 当前登录用户
type User struct {
	ID        ID     `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// DisplayName 展示用名称
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// TokenPair 认证令牌
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
