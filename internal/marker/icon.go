package marker

import (
	"strings"
	"unicode"

	"unit-tracker/internal/models"
)

// Icon 地图标记图标
type Icon struct {
	Category string `json:"category"`
	Glyph    string `json:"glyph"`
}

// DefaultIcon 无法归类时使用
var DefaultIcon = Icon{Category: "unknown", Glyph: "📍"}

// categories 设备类别 → 图标
var categories = map[string]Icon{
	"vehicle":   {Category: "vehicle", Glyph: "🚙"},
	"aircraft":  {Category: "aircraft", Glyph: "✈️"},
	"drone":     {Category: "drone", Glyph: "🛸"},
	"vessel":    {Category: "vessel", Glyph: "🚤"},
	"personnel": {Category: "personnel", Glyph: "🧍"},
	"sensor":    {Category: "sensor", Glyph: "📡"},
	"equipment": {Category: "equipment", Glyph: "🧰"},
}

// keywords 旧数据没有 category 字段时按代码/名称关键字匹配，按顺序优先
var keywords = []struct {
	category string
	words    []string
}{
	{"drone", []string{"drone", "uav"}},
	{"aircraft", []string{"heli", "plane", "aircraft", "air"}},
	{"vessel", []string{"boat", "ship", "vessel", "marine"}},
	{"vehicle", []string{"truck", "car", "vehicle", "veh", "apc", "jeep"}},
	{"personnel", []string{"soldier", "officer", "team", "squad", "person"}},
	{"sensor", []string{"sensor", "radar", "beacon", "cam"}},
	{"equipment", []string{"generator", "radio", "kit", "equip"}},
}

// IconFor 先按显式 category 查表，查不到再回退关键字匹配，最后使用默认图标
func IconFor(d models.Device) Icon {
	if icon, ok := categories[strings.ToLower(strings.TrimSpace(d.Category))]; ok {
		return icon
	}

	tokens := strings.FieldsFunc(strings.ToLower(d.Code+" "+d.Name), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, k := range keywords {
		for _, w := range k.words {
			for _, tok := range tokens {
				if matchesKeyword(tok, w) {
					return categories[k.category]
				}
			}
		}
	}
	return DefaultIcon
}

// matchesKeyword 按整词匹配；4 个字母以上的关键字也匹配以它开头的词（heli → helicopter）
func matchesKeyword(token, word string) bool {
	if token == word {
		return true
	}
	return len(word) >= 4 && strings.HasPrefix(token, word)
}

// Categories 已知类别列表
func Categories() []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, k.category)
	}
	return out
}
