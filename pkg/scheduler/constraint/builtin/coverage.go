package builtin

import (
	"fmt"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// CoverageConstraint 每日班次人数需求约束（硬约束，只统计缺员）
type CoverageConstraint struct {
	*BaseConstraint
}

// NewCoverageConstraint 创建班次需求约束
func NewCoverageConstraint(weight int) *CoverageConstraint {
	return &CoverageConstraint{
		BaseConstraint: NewBaseConstraint("每日班次人数", constraint.TypeShiftRequirement, constraint.CategoryHard, weight),
	}
}

// Evaluate 按 (日, 班次) 统计缺员
func (c *CoverageConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.Violation) {
	var violations []constraint.Violation
	totalPenalty := 0

	for d := 0; d < ctx.Days(); d++ {
		for s, req := range ctx.Requirements[d] {
			if req <= 0 {
				continue
			}
			actual := ctx.Roster.CountOn(d, s)
			if actual >= req {
				continue
			}
			code := string(ctx.Config.Code(s))
			penalty := c.weight * (req - actual)
			totalPenalty += penalty
			v := c.CreateViolation(-1, d, code,
				fmt.Sprintf("第%d天 %s 班需要%d人，实际%d人", d+1, code, req, actual), penalty)
			v.Required, v.Actual = req, actual
			violations = append(violations, v)
		}
	}

	return len(violations) == 0, totalPenalty, violations
}

// EvaluateCell 该单元格所在日存在缺员即视为不满足
func (c *CoverageConstraint) EvaluateCell(ctx *constraint.Context, nurse, day int) (bool, int) {
	penalty := 0
	for s, req := range ctx.Requirements[day] {
		if actual := ctx.Roster.CountOn(day, s); req > 0 && actual < req {
			penalty += c.weight * (req - actual)
		}
	}
	return penalty == 0, penalty
}

// ExperienceConstraint 每个有需求的 D/E/N 班次至少有指定数量的资深护士（软约束）
type ExperienceConstraint struct {
	*BaseConstraint
}

// NewExperienceConstraint 创建资深覆盖约束
func NewExperienceConstraint(weight int) *ExperienceConstraint {
	return &ExperienceConstraint{
		BaseConstraint: NewBaseConstraint("资深护士覆盖", constraint.TypeExperienceCoverage, constraint.CategorySoft, weight),
	}
}

// ExperienceNeed 某班次需要的资深护士数量，不超过该班次人数需求
func ExperienceNeed(cfg *model.RosterConfig, req int) int {
	need := cfg.RequiredExperiencedNurses
	if req < need {
		need = req
	}
	if need < 0 {
		return 0
	}
	return need
}

// ExperienceShortage 某天某班次资深护士缺口
func ExperienceShortage(ctx *constraint.Context, day, shift int) (need, actual int) {
	need = ExperienceNeed(ctx.Config, ctx.Requirements[day][shift])
	if need == 0 {
		return 0, 0
	}
	for n, nurse := range ctx.Nurses {
		if ctx.Roster.Get(n, day) == shift && nurse.IsExperienced(ctx.Config) {
			actual++
		}
	}
	return need, actual
}

// Evaluate 按 (日, D/E/N) 统计资深护士缺口
func (c *ExperienceConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.Violation) {
	var violations []constraint.Violation
	totalPenalty := 0

	shifts := experienceShifts(ctx.Config)
	for d := 0; d < ctx.Days(); d++ {
		for _, s := range shifts {
			need, actual := ExperienceShortage(ctx, d, s)
			if actual >= need {
				continue
			}
			code := string(ctx.Config.Code(s))
			penalty := c.weight * (need - actual)
			totalPenalty += penalty
			v := c.CreateViolation(-1, d, code,
				fmt.Sprintf("第%d天 %s 班资深护士需要%d人，实际%d人", d+1, code, need, actual), penalty)
			v.Required, v.Actual = need, actual
			violations = append(violations, v)
		}
	}

	return len(violations) == 0, totalPenalty, violations
}

// EvaluateCell 单元格所在班次的资深缺口
func (c *ExperienceConstraint) EvaluateCell(ctx *constraint.Context, nurse, day int) (bool, int) {
	s := ctx.Roster.Get(nurse, day)
	for _, x := range experienceShifts(ctx.Config) {
		if x != s {
			continue
		}
		need, actual := ExperienceShortage(ctx, day, s)
		if actual < need {
			return false, c.weight * (need - actual)
		}
	}
	return true, 0
}

func experienceShifts(cfg *model.RosterConfig) []int {
	return []int{
		cfg.MustIndex(model.ShiftDay),
		cfg.MustIndex(model.ShiftEvening),
		cfg.MustIndex(model.ShiftNight),
	}
}
