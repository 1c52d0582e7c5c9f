// Package builtin 提供内置约束实现
package builtin

import (
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// BaseConstraint 约束基类
type BaseConstraint struct {
	name     string
	typ      constraint.Type
	category constraint.Category
	weight   int
}

// NewBaseConstraint 创建基础约束
func NewBaseConstraint(name string, typ constraint.Type, cat constraint.Category, weight int) *BaseConstraint {
	return &BaseConstraint{
		name:     name,
		typ:      typ,
		category: cat,
		weight:   weight,
	}
}

// Name 返回约束名称
func (c *BaseConstraint) Name() string { return c.name }

// Type 返回约束类型
func (c *BaseConstraint) Type() constraint.Type { return c.typ }

// Category 返回约束类别
func (c *BaseConstraint) Category() constraint.Category { return c.category }

// Weight 返回约束权重
func (c *BaseConstraint) Weight() int { return c.weight }

// CreateViolation 创建违反详情
func (c *BaseConstraint) CreateViolation(nurse, day int, shift, message string, penalty int) constraint.Violation {
	severity := "warning"
	if c.category == constraint.CategoryHard {
		severity = "error"
	}

	return constraint.Violation{
		Type:     c.typ,
		Name:     c.name,
		Category: c.category,
		Day:      day,
		NurseIdx: nurse,
		Shift:    shift,
		Message:  message,
		Severity: severity,
		Penalty:  penalty,
	}
}

// Evaluate 默认评估实现（子类需覆盖）
func (c *BaseConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.Violation) {
	return true, 0, nil
}

// EvaluateCell 默认单元格评估实现（子类需覆盖）
func (c *BaseConstraint) EvaluateCell(ctx *constraint.Context, nurse, day int) (bool, int) {
	return true, 0
}
