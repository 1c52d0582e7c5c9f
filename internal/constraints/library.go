// Package constraints 排班规则目录
// 列出全部规则族、对应的配置开关与当前取值，供 /api/v1/rules 展示
package constraints

import (
	"strconv"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint/builtin"
)

// ConstraintParam 规则参数
type ConstraintParam struct {
	Name        string `json:"name"` // 对应配置键
	Type        string `json:"type"` // int, float, bool
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
	Value       string `json:"value,omitempty"` // 当前配置取值
	Min         string `json:"min,omitempty"`
	Max         string `json:"max,omitempty"`
}

// ConstraintDefinition 规则定义
type ConstraintDefinition struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Type        string            `json:"type"`     // hard 硬约束, soft 软约束
	Category    string            `json:"category"` // 分类
	Description string            `json:"description"`
	Weight      int               `json:"weight"`
	Enabled     bool              `json:"enabled"`
	Switch      string            `json:"switch,omitempty"` // 控制启用的配置键
	Params      []ConstraintParam `json:"params"`
}

// LibraryResponse 规则目录响应
type LibraryResponse struct {
	Library []ConstraintDefinition `json:"library"`
}

// GetLibrary 按配置生成规则目录；cfg 为 nil 时使用默认配置
func GetLibrary(cfg *model.RosterConfig) []ConstraintDefinition {
	def := model.DefaultRosterConfig()
	if cfg == nil {
		cfg = def
	}

	// 以实际注册结果判断启用状态
	registered := builtin.NewRosterManager(cfg).Types()

	intParam := func(name, desc string, dv, v int, min, max string) ConstraintParam {
		return ConstraintParam{Name: name, Type: "int", Description: desc,
			Default: strconv.Itoa(dv), Value: strconv.Itoa(v), Min: min, Max: max}
	}
	boolParam := func(name, desc string, dv, v bool) ConstraintParam {
		return ConstraintParam{Name: name, Type: "bool", Description: desc,
			Default: strconv.FormatBool(dv), Value: strconv.FormatBool(v)}
	}

	lib := []ConstraintDefinition{
		// =====================================================
		// 硬约束
		// =====================================================
		{
			Name:        string(constraint.TypeShiftRequirement),
			DisplayName: "每日班次人数",
			Type:        "hard",
			Category:    "人力覆盖",
			Description: "每天每个工作班次的在岗人数不少于需求，周末、节假日及按日配置可覆盖默认需求。",
			Weight:      builtin.WeightCoverage,
			Params: []ConstraintParam{
				{Name: "shift_requirement_priority", Type: "float", Description: "缺员惩罚系数",
					Default: strconv.FormatFloat(def.ShiftRequirementPriority, 'g', -1, 64),
					Value:   strconv.FormatFloat(cfg.ShiftRequirementPriority, 'g', -1, 64), Min: "0", Max: "1"},
			},
		},
		{
			Name:        string(constraint.TypeNightND),
			DisplayName: "禁止夜班接白班",
			Type:        "hard",
			Category:    "班次衔接",
			Description: "大夜班次日不得安排白班。",
			Weight:      builtin.WeightSafety,
			Params:      []ConstraintParam{},
		},
		{
			Name:        string(constraint.TypeEveningED),
			DisplayName: "禁止小夜班接白班",
			Type:        "hard",
			Category:    "班次衔接",
			Description: "小夜班次日不得安排白班。",
			Weight:      builtin.WeightSafety,
			Switch:      "banned_day_after_eve",
			Params:      []ConstraintParam{boolParam("banned_day_after_eve", "启用 E-D 与 N-E 禁止", def.BannedDayAfterEve, cfg.BannedDayAfterEve)},
		},
		{
			Name:        string(constraint.TypeNightNE),
			DisplayName: "禁止夜班接小夜班",
			Type:        "hard",
			Category:    "班次衔接",
			Description: "大夜班次日不得安排小夜班。",
			Weight:      builtin.WeightSafety,
			Switch:      "banned_day_after_eve",
			Params:      []ConstraintParam{},
		},
		{
			Name:        string(constraint.TypeConsecutiveWork),
			DisplayName: "最大连续工作天数",
			Type:        "hard",
			Category:    "休息保障",
			Description: "任意连续 K+1 天内至少休息一天，跨月时计入上月末尾的连续工作天数。",
			Weight:      builtin.WeightSafety,
			Params: []ConstraintParam{intParam("max_consecutive_work_days", "最大连续工作天数",
				def.MaxConsecutiveWorkDays, cfg.MaxConsecutiveWorkDays, "1", "14")},
		},
		{
			Name:        string(constraint.TypeNightConsecutive),
			DisplayName: "最大连续夜班",
			Type:        "hard",
			Category:    "夜班管理",
			Description: "连续大夜班不得超过上限。",
			Weight:      builtin.WeightSafety,
			Params: []ConstraintParam{
				intParam("max_consecutive_nights", "最大连续夜班数", def.MaxConsecutiveNights, cfg.MaxConsecutiveNights, "1", "7"),
				boolParam("three_seq_nig", "允许连续三个夜班", def.ThreeSeqNig, cfg.ThreeSeqNig),
			},
		},
		{
			Name:        string(constraint.TypeNightMonthLimit),
			DisplayName: "月夜班上限",
			Type:        "hard",
			Category:    "夜班管理",
			Description: "每名护士当月大夜班总数不超过上限。",
			Weight:      builtin.WeightSafety,
			Params: []ConstraintParam{intParam("max_night_shifts_per_month", "月夜班上限",
				def.MaxNightShiftsPerMonth, cfg.MaxNightShiftsPerMonth, "0", "31")},
		},
		{
			Name:        string(constraint.TypeNightOnly),
			DisplayName: "夜班专职",
			Type:        "hard",
			Category:    "夜班管理",
			Description: "专职夜班护士只能安排大夜班或休息。",
			Weight:      builtin.WeightSafety,
			Params:      []ConstraintParam{},
		},
		{
			Name:        string(constraint.TypeRecoveryOff),
			DisplayName: "夜班后恢复休息",
			Type:        "hard",
			Category:    "休息保障",
			Description: "连续夜班结束后必须连休两天。",
			Weight:      builtin.WeightRecovery,
			Switch:      "two_offs_after_three_nig",
			Params: []ConstraintParam{
				boolParam("two_offs_after_three_nig", "三个夜班后连休两天", def.TwoOffsAfterThreeNig, cfg.TwoOffsAfterThreeNig),
				boolParam("two_offs_after_two_nig", "两个夜班后连休两天", def.TwoOffsAfterTwoNig, cfg.TwoOffsAfterTwoNig),
			},
		},

		// =====================================================
		// 软约束
		// =====================================================
		{
			Name:        string(constraint.TypeWeeklyOff),
			DisplayName: "每周两天休息",
			Type:        "soft",
			Category:    "休息保障",
			Description: "每个完整周（周一至周日）至少休息两天。",
			Weight:      builtin.WeightPolicy,
			Switch:      "enforce_two_offs_per_week",
			Params:      []ConstraintParam{boolParam("enforce_two_offs_per_week", "启用每周两休", def.EnforceTwoOffsPerWeek, cfg.EnforceTwoOffsPerWeek)},
		},
		{
			Name:        string(constraint.TypePatternNOD),
			DisplayName: "禁止 N-O-D",
			Type:        "soft",
			Category:    "班次衔接",
			Description: "夜班后仅休一天即上白班。",
			Weight:      builtin.WeightPolicy,
			Switch:      "nod_noe",
			Params:      []ConstraintParam{boolParam("nod_noe", "启用 N-O-D 与 N-O-E 限制", def.ForbidNODNOE, cfg.ForbidNODNOE)},
		},
		{
			Name:        string(constraint.TypePatternNOE),
			DisplayName: "禁止 N-O-E",
			Type:        "soft",
			Category:    "班次衔接",
			Description: "夜班后仅休一天即上小夜班。",
			Weight:      builtin.WeightPolicy,
			Switch:      "nod_noe",
			Params:      []ConstraintParam{},
		},
		{
			Name:        string(constraint.TypeMinOff),
			DisplayName: "最少休息天数",
			Type:        "soft",
			Category:    "休息保障",
			Description: "当月休息天数不少于公共休息日与个人休息日之和，按在职天数折算。",
			Weight:      builtin.WeightPolicy,
			Params: []ConstraintParam{
				intParam("global_monthly_off_days", "公共休息日", def.GlobalMonthlyOffDays, cfg.GlobalMonthlyOffDays, "0", "15"),
				intParam("standard_personal_off_days", "个人休息日", def.StandardPersonalOffDays, cfg.StandardPersonalOffDays, "0", "15"),
			},
		},
		{
			Name:        string(constraint.TypeExperienceCoverage),
			DisplayName: "资深护士覆盖",
			Type:        "soft",
			Category:    "资质要求",
			Description: "每个工作班次至少有指定数量的资深护士在岗。",
			Weight:      builtin.WeightExperience,
			Params: []ConstraintParam{
				intParam("min_experience_per_shift", "资深年限", def.MinExperiencePerShift, cfg.MinExperiencePerShift, "0", "40"),
				intParam("required_experienced_nurses", "每班资深人数", def.RequiredExperiencedNurses, cfg.RequiredExperiencedNurses, "0", "10"),
			},
		},
	}

	for i := range lib {
		_, lib[i].Enabled = registered[constraint.Type(lib[i].Name)]
	}
	return lib
}

// GetByCategory 按类别过滤
func GetByCategory(lib []ConstraintDefinition, typ string) []ConstraintDefinition {
	var out []ConstraintDefinition
	for _, c := range lib {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}
