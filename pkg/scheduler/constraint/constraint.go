// Package constraint 定义约束接口和管理器
package constraint

import (
	"github.com/paiban/nurseroster/pkg/model"
)

// Type 约束类型标识（同时作为违规记录的 type 标签）
type Type string

const (
	// 硬约束类型
	TypeShiftRequirement Type = "shift_requirement"
	TypeNightND          Type = "night_nd"
	TypeEveningED        Type = "evening_ed"
	TypeNightNE          Type = "night_ne"
	TypeConsecutiveWork  Type = "consecutive_work"
	TypeNightConsecutive Type = "night_consecutive"
	TypeNightMonthLimit  Type = "night_month_limit"
	TypeNightOnly        Type = "night_only"
	TypeRecoveryOff      Type = "recovery_off"

	// 软约束类型
	TypeWeeklyOff          Type = "weekly_off"
	TypePatternNOD         Type = "pattern_nod"
	TypePatternNOE         Type = "pattern_noe"
	TypeMinOff             Type = "min_off"
	TypeExperienceCoverage Type = "experience_coverage"
)

// Category 约束类别
type Category string

const (
	CategoryHard Category = "hard" // 硬约束（必须满足）
	CategorySoft Category = "soft" // 软约束（尽量满足）
)

// Constraint 约束接口
type Constraint interface {
	// Name 返回约束名称
	Name() string

	// Type 返回约束类型
	Type() Type

	// Category 返回约束类别
	Category() Category

	// Weight 返回约束权重 (1-100)
	Weight() int

	// Evaluate 评估整个排班方案
	// 返回：是否满足、惩罚值、违反详情
	Evaluate(ctx *Context) (valid bool, penalty int, violations []Violation)

	// EvaluateCell 评估单个单元格（只统计覆盖该单元格的违规）
	// 返回：是否满足、惩罚值
	EvaluateCell(ctx *Context, nurse, day int) (valid bool, penalty int)
}

// Violation 违规记录，按需从排班矩阵重新计算，不随排班保存
type Violation struct {
	Type     Type     `json:"type"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Day      int      `json:"day"`       // 0 起始，-1 表示整月
	NurseIdx int      `json:"nurse_idx"` // -1 表示按日统计
	Shift    string   `json:"shift,omitempty"`
	Required int      `json:"required,omitempty"`
	Actual   int      `json:"actual,omitempty"`
	Message  string   `json:"message"`
	Severity string   `json:"severity"` // error/warning
	Penalty  int      `json:"penalty"`
}

// Context 排班评估上下文
type Context struct {
	Config       *model.RosterConfig
	Month        model.Month
	Nurses       []*model.Nurse
	Roster       *model.Roster
	Requirements [][]int // [day][shift]

	windows []window
	scanner *RowScanner
}

type window struct {
	first, last int
	ok          bool
}

// NewContext 创建评估上下文
func NewContext(cfg *model.RosterConfig, month model.Month, nurses []*model.Nurse, roster *model.Roster) *Context {
	ctx := &Context{
		Config:       cfg,
		Month:        month,
		Nurses:       nurses,
		Roster:       roster,
		Requirements: cfg.RequirementMatrix(month),
		windows:      make([]window, len(nurses)),
		scanner:      NewRowScanner(cfg, month.Days()),
	}
	for i, n := range nurses {
		f, l, ok := n.ActiveWindow(month)
		ctx.windows[i] = window{first: f, last: l, ok: ok}
	}
	return ctx
}

// Days 当月天数
func (c *Context) Days() int {
	return c.Month.Days()
}

// Window 护士在职区间
func (c *Context) Window(n int) (first, last int, ok bool) {
	w := c.windows[n]
	return w.first, w.last, w.ok
}

// Scanner 返回行扫描器
func (c *Context) Scanner() *RowScanner {
	return c.scanner
}

// ScanNurse 遍历某护士所有正松弛实例
func (c *Context) ScanNurse(n int, fn func(Instance)) {
	w := c.windows[n]
	if !w.ok {
		return
	}
	c.scanner.Scan(c.Roster.Row(n), w.first, w.last, c.Nurses[n].IsNightNurse, func(in Instance) {
		in.Nurse = n
		fn(in)
	})
}

// Result 约束评估结果
type Result struct {
	IsValid        bool        `json:"is_valid"`
	TotalPenalty   int         `json:"total_penalty"`
	HardViolations []Violation `json:"hard_violations"`
	SoftViolations []Violation `json:"soft_violations"`
	Score          float64     `json:"score"` // 0-100
}

// All 返回全部违规（硬约束在前）
func (r *Result) All() []Violation {
	out := make([]Violation, 0, len(r.HardViolations)+len(r.SoftViolations))
	out = append(out, r.HardViolations...)
	return append(out, r.SoftViolations...)
}

// CountByType 按类型统计违规数量
func (r *Result) CountByType() map[Type]int {
	counts := make(map[Type]int)
	for _, v := range r.All() {
		counts[v.Type]++
	}
	return counts
}

// CalculateScore 计算约束满足度得分
func (r *Result) CalculateScore(maxPenalty int) {
	if maxPenalty == 0 {
		r.Score = 100.0
		return
	}
	r.Score = 100.0 * float64(maxPenalty-r.TotalPenalty) / float64(maxPenalty)
	if r.Score < 0 {
		r.Score = 0
	}
}
