package builtin

import (
	"fmt"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// SlackConstraint 基于行扫描松弛族的安全/政策规则
// 一个约束可以覆盖多个松弛族（如恢复休息覆盖三连夜与两连夜）
type SlackConstraint struct {
	*BaseConstraint
	families []constraint.Family
}

// NewSlackConstraint 创建松弛族约束
func NewSlackConstraint(name string, typ constraint.Type, cat constraint.Category, weight int, families ...constraint.Family) *SlackConstraint {
	return &SlackConstraint{
		BaseConstraint: NewBaseConstraint(name, typ, cat, weight),
		families:       families,
	}
}

// Families 覆盖的松弛族
func (c *SlackConstraint) Families() []constraint.Family {
	return c.families
}

func (c *SlackConstraint) covers(f constraint.Family) bool {
	for _, x := range c.families {
		if x == f {
			return true
		}
	}
	return false
}

// Evaluate 评估整月排班，每个正松弛实例记一条违规
func (c *SlackConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.Violation) {
	var violations []constraint.Violation
	totalPenalty := 0

	for n := range ctx.Nurses {
		ctx.ScanNurse(n, func(in constraint.Instance) {
			if !c.covers(in.Family) {
				return
			}
			penalty := c.weight * in.Slack
			totalPenalty += penalty
			v := c.CreateViolation(n, in.Day, string(ctx.Config.Code(ctx.Roster.Get(n, in.Day))), describe(ctx, in), penalty)
			v.Required, v.Actual = requiredActual(ctx.Config, in)
			violations = append(violations, v)
		})
	}

	return len(violations) == 0, totalPenalty, violations
}

// EvaluateCell 只统计区间覆盖该单元格的实例
func (c *SlackConstraint) EvaluateCell(ctx *constraint.Context, nurse, day int) (bool, int) {
	penalty := 0
	ctx.ScanNurse(nurse, func(in constraint.Instance) {
		if c.covers(in.Family) && in.Start <= day && day <= in.End {
			penalty += c.weight * in.Slack
		}
	})
	return penalty == 0, penalty
}

// requiredActual 计数型松弛族的要求值与实际值
func requiredActual(cfg *model.RosterConfig, in constraint.Instance) (int, int) {
	switch in.Family {
	case constraint.FamCNightExcess:
		return cfg.MaxConsecutiveNights, cfg.MaxConsecutiveNights + in.Slack
	case constraint.FamMNightExcess:
		return cfg.MaxNightShiftsPerMonth, cfg.MaxNightShiftsPerMonth + in.Slack
	case constraint.FamWeekOffMissing, constraint.FamRec3N2O, constraint.FamRec2N2O:
		return 2, 2 - in.Slack
	case constraint.FamCWorkMissing:
		return 1, 0
	case constraint.FamMinOffMissing:
		need := cfg.MinOffDays()
		if span := in.End - in.Start + 1; span < need {
			need = span
		}
		return need, need - in.Slack
	}
	return 0, 0
}

func describe(ctx *constraint.Context, in constraint.Instance) string {
	who := ctx.Nurses[in.Nurse].DBID
	day := in.Day + 1
	switch in.Family {
	case constraint.FamTransND:
		return fmt.Sprintf("护士 %s 第%d天：夜班后直接接白班 (N→D)", who, day)
	case constraint.FamTransED:
		return fmt.Sprintf("护士 %s 第%d天：小夜班后直接接白班 (E→D)", who, day)
	case constraint.FamTransNE:
		return fmt.Sprintf("护士 %s 第%d天：夜班后直接接小夜班 (N→E)", who, day)
	case constraint.FamCWorkMissing:
		return fmt.Sprintf("护士 %s 第%d-%d天连续工作超过%d天", who, in.Start+1, in.End+1, ctx.Config.MaxConsecutiveWorkDays)
	case constraint.FamCNightExcess:
		return fmt.Sprintf("护士 %s 第%d-%d天连续夜班超过%d天", who, in.Start+1, in.End+1, ctx.Config.MaxConsecutiveNights)
	case constraint.FamMNightExcess:
		return fmt.Sprintf("护士 %s 本月夜班超出上限%d个", who, in.Slack)
	case constraint.FamNightOnlyDE:
		return fmt.Sprintf("夜班专职护士 %s 第%d天被安排了非夜班", who, day)
	case constraint.FamWeekOffMissing:
		return fmt.Sprintf("护士 %s 第%d-%d天周休息不足，缺少%d天", who, in.Start+1, in.End+1, in.Slack)
	case constraint.FamRec3N2O:
		return fmt.Sprintf("护士 %s 第%d天三连夜后休息不足，缺少%d天", who, day, in.Slack)
	case constraint.FamRec2N2O:
		return fmt.Sprintf("护士 %s 第%d天两连夜后休息不足，缺少%d天", who, day, in.Slack)
	case constraint.FamPatternNOD:
		return fmt.Sprintf("护士 %s 第%d天起出现 N-O-D", who, day)
	case constraint.FamPatternNOE:
		return fmt.Sprintf("护士 %s 第%d天起出现 N-O-E", who, day)
	case constraint.FamMinOffMissing:
		return fmt.Sprintf("护士 %s 本月休息天数不足，缺少%d天", who, in.Slack)
	}
	return fmt.Sprintf("护士 %s 第%d天违反 %s", who, day, in.Family)
}
