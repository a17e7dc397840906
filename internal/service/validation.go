package service

import (
	"sort"
	"strings"
)

// ValidationErrors 表单字段错误（字段名 → 错误信息）
// 有任何字段错误时不发请求
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add 记录字段错误，同一字段只保留第一条
func (v ValidationErrors) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// Err 没有错误时返回 nil
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
