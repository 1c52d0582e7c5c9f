// Package repository 提供数据访问层
// 上月排班查询与生成结果持久化
package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// ListFilter 列表查询过滤器
type ListFilter struct {
	Ward   string `json:"ward,omitempty"`
	Status string `json:"status,omitempty"`
	Year   int    `json:"year,omitempty"`
	Month  int    `json:"month,omitempty"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// DefaultListFilter 返回默认过滤器
func DefaultListFilter() ListFilter {
	return ListFilter{
		Offset: 0,
		Limit:  20,
	}
}

// WithLimit 设置限制
func (f ListFilter) WithLimit(limit int) ListFilter {
	f.Limit = limit
	return f
}

// WithOffset 设置偏移
func (f ListFilter) WithOffset(offset int) ListFilter {
	f.Offset = offset
	return f
}

// WithWard 设置病区
func (f ListFilter) WithWard(ward string) ListFilter {
	f.Ward = ward
	return f
}

// WithStatus 设置状态过滤
func (f ListFilter) WithStatus(status string) ListFilter {
	f.Status = status
	return f
}

// WithMonth 设置年月
func (f ListFilter) WithMonth(year, month int) ListFilter {
	f.Year = year
	f.Month = month
	return f
}

// DB 数据库接口，SQL 使用 ? 占位符
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Scanner 行扫描接口
type Scanner interface {
	Scan(dest ...interface{}) error
}
