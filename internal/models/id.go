package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID 后端对象标识（不透明）
// 后端可能返回字符串或数字，这里统一为字符串
type ID string

// UnmarshalJSON 同时接受 "12" 和 12
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// IDPtr 返回 id 的指针（便于 Select 之类的可空参数）
func IDPtr(id ID) *ID { return &id }
