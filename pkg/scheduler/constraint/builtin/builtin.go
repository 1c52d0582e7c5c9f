package builtin

import (
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// 默认权重
const (
	WeightCoverage   = 100
	WeightSafety     = 90
	WeightRecovery   = 80
	WeightPolicy     = 60
	WeightExperience = 50
)

// RegisterRosterRules 按配置开关注册排班规则
func RegisterRosterRules(manager *constraint.Manager, cfg *model.RosterConfig) {
	soft := constraint.CategorySoft

	// 硬约束
	manager.Register(NewCoverageConstraint(WeightCoverage))
	RegisterSafetyRules(manager, cfg)

	// 软约束
	if cfg.EnforceTwoOffsPerWeek {
		manager.Register(NewSlackConstraint("每周两天休息", constraint.TypeWeeklyOff, soft, WeightPolicy, constraint.FamWeekOffMissing))
	}
	if cfg.ForbidNODNOE {
		manager.Register(NewSlackConstraint("禁止 N-O-D", constraint.TypePatternNOD, soft, WeightPolicy, constraint.FamPatternNOD))
		manager.Register(NewSlackConstraint("禁止 N-O-E", constraint.TypePatternNOE, soft, WeightPolicy, constraint.FamPatternNOE))
	}
	if cfg.MinOffDays() > 0 {
		manager.Register(NewSlackConstraint("最少休息天数", constraint.TypeMinOff, soft, WeightPolicy, constraint.FamMinOffMissing))
	}
	if cfg.RequiredExperiencedNurses > 0 {
		manager.Register(NewExperienceConstraint(WeightExperience))
	}
}

// RegisterSafetyRules 注册硬安全规则（不含人数覆盖）
func RegisterSafetyRules(manager *constraint.Manager, cfg *model.RosterConfig) {
	hard := constraint.CategoryHard
	manager.Register(NewSlackConstraint("禁止夜班接白班", constraint.TypeNightND, hard, WeightSafety, constraint.FamTransND))
	if cfg.BannedDayAfterEve {
		manager.Register(NewSlackConstraint("禁止小夜班接白班", constraint.TypeEveningED, hard, WeightSafety, constraint.FamTransED))
		manager.Register(NewSlackConstraint("禁止夜班接小夜班", constraint.TypeNightNE, hard, WeightSafety, constraint.FamTransNE))
	}
	manager.Register(NewSlackConstraint("最大连续工作天数", constraint.TypeConsecutiveWork, hard, WeightSafety, constraint.FamCWorkMissing))
	manager.Register(NewSlackConstraint("最大连续夜班", constraint.TypeNightConsecutive, hard, WeightSafety, constraint.FamCNightExcess))
	manager.Register(NewSlackConstraint("月夜班上限", constraint.TypeNightMonthLimit, hard, WeightSafety, constraint.FamMNightExcess))
	manager.Register(NewSlackConstraint("夜班专职", constraint.TypeNightOnly, hard, WeightSafety, constraint.FamNightOnlyDE))

	var recovery []constraint.Family
	if cfg.TwoOffsAfterThreeNig {
		recovery = append(recovery, constraint.FamRec3N2O)
	}
	if cfg.TwoOffsAfterTwoNig {
		recovery = append(recovery, constraint.FamRec2N2O)
	}
	if len(recovery) > 0 {
		manager.Register(NewSlackConstraint("夜班后恢复休息", constraint.TypeRecoveryOff, hard, WeightRecovery, recovery...))
	}
}

// NewSafetyManager 只含硬安全规则的管理器，供逐日构造排班时检查单元格
func NewSafetyManager(cfg *model.RosterConfig) *constraint.Manager {
	m := constraint.NewManager()
	RegisterSafetyRules(m, cfg)
	return m
}

// NewRosterManager 创建已注册排班规则的约束管理器
func NewRosterManager(cfg *model.RosterConfig) *constraint.Manager {
	m := constraint.NewManager()
	RegisterRosterRules(m, cfg)
	return m
}

// FindViolations 从排班矩阵重新计算全部违规
func FindViolations(ctx *constraint.Context) *constraint.Result {
	return NewRosterManager(ctx.Config).Evaluate(ctx)
}
