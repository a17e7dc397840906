package marker

import (
	"fmt"
	"hash/fnv"

	"unit-tracker/internal/models"
)

// HSL 标记颜色
type HSL struct {
	H int `json:"h"` // 0..359
	S int `json:"s"` // 百分比
	L int `json:"l"` // 百分比
}

func (c HSL) String() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.H, c.S, c.L)
}

// ColorFor 由设备 ID 派生稳定颜色（同一 ID 跨会话颜色不变，允许碰撞）
func ColorFor(id models.ID) HSL {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	sum := h.Sum32()

	return HSL{
		H: int(sum % 360),
		S: 60 + int((sum>>9)%25),
		L: 40 + int((sum>>17)%20),
	}
}
