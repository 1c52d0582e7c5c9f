package model

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
)

// RosterConfig 病房排班规则配置
type RosterConfig struct {
	ShiftTypes             []ShiftCode               `json:"shift_types" yaml:"shift_types"`
	ShiftAliases           map[string]ShiftCode      `json:"shift_aliases,omitempty" yaml:"shift_aliases,omitempty"` // 子代码 -> 主代码
	DailyShiftRequirements map[ShiftCode]int         `json:"daily_shift_requirements" yaml:"daily_shift_requirements"`
	RequirementsByDay      map[int]map[ShiftCode]int `json:"daily_shift_requirements_by_day,omitempty" yaml:"daily_shift_requirements_by_day,omitempty"`
	WeekendRequirements    map[ShiftCode]int         `json:"weekend_shift_requirements,omitempty" yaml:"weekend_shift_requirements,omitempty"`
	Holidays               []string                  `json:"holidays,omitempty" yaml:"holidays,omitempty"` // YYYY-MM-DD

	MinExperiencePerShift     int `json:"min_experience_per_shift" yaml:"min_experience_per_shift"`
	RequiredExperiencedNurses int `json:"required_experienced_nurses" yaml:"required_experienced_nurses"`
	MaxConsecutiveWorkDays    int `json:"max_consecutive_work_days" yaml:"max_consecutive_work_days"`
	MaxConsecutiveNights      int `json:"max_consecutive_nights" yaml:"max_consecutive_nights"`
	MaxNightShiftsPerMonth    int `json:"max_night_shifts_per_month" yaml:"max_night_shifts_per_month"`

	EnforceTwoOffsPerWeek bool `json:"enforce_two_offs_per_week" yaml:"enforce_two_offs_per_week"`
	BannedDayAfterEve     bool `json:"banned_day_after_eve" yaml:"banned_day_after_eve"`
	TwoOffsAfterThreeNig  bool `json:"two_offs_after_three_nig" yaml:"two_offs_after_three_nig"`
	TwoOffsAfterTwoNig    bool `json:"two_offs_after_two_nig" yaml:"two_offs_after_two_nig"`
	ForbidNODNOE          bool `json:"nod_noe" yaml:"nod_noe"`
	ThreeSeqNig           bool `json:"three_seq_nig" yaml:"three_seq_nig"`
	SequentialOffs        bool `json:"sequential_offs" yaml:"sequential_offs"`
	EvenNights            bool `json:"even_nights" yaml:"even_nights"`

	GlobalMonthlyOffDays    int `json:"global_monthly_off_days" yaml:"global_monthly_off_days"`
	StandardPersonalOffDays int `json:"standard_personal_off_days" yaml:"standard_personal_off_days"`

	ShiftPreferenceWeights   map[ShiftCode]float64 `json:"shift_preference_weights" yaml:"shift_preference_weights"`
	PairPreferenceWeight     float64               `json:"pair_preference_weight" yaml:"pair_preference_weight"`
	ShiftRequirementPriority float64               `json:"shift_requirement_priority" yaml:"shift_requirement_priority"`
	PreceptorGauge           *int                  `json:"preceptor_gauge,omitempty" yaml:"preceptor_gauge,omitempty"`

	FixedCells         []FixedCell         `json:"fixed_cells,omitempty" yaml:"fixed_cells,omitempty"`
	InitialConstraints *InitialConstraints `json:"initial_constraints,omitempty" yaml:"initial_constraints,omitempty"`
	AllowOverrideByLaw bool                `json:"allow_override_by_law" yaml:"allow_override_by_law"`

	index    map[ShiftCode]int
	holidays map[string]bool
}

// DefaultRosterConfig 返回默认规则配置
func DefaultRosterConfig() *RosterConfig {
	return &RosterConfig{
		ShiftTypes: DefaultShiftTypes(),
		DailyShiftRequirements: map[ShiftCode]int{
			ShiftDay:     3,
			ShiftEvening: 3,
			ShiftNight:   2,
		},
		MinExperiencePerShift:     3,
		RequiredExperiencedNurses: 1,
		MaxConsecutiveWorkDays:    5,
		MaxConsecutiveNights:      3,
		MaxNightShiftsPerMonth:    15,
		EnforceTwoOffsPerWeek:     true,
		BannedDayAfterEve:         true,
		TwoOffsAfterThreeNig:      true,
		TwoOffsAfterTwoNig:        false,
		ForbidNODNOE:              true,
		ThreeSeqNig:               true,
		GlobalMonthlyOffDays:      3,
		StandardPersonalOffDays:   8,
		ShiftPreferenceWeights: map[ShiftCode]float64{
			ShiftDay:     5.0,
			ShiftEvening: 5.0,
			ShiftNight:   5.0,
			ShiftOff:     10.0,
		},
		PairPreferenceWeight:     3.0,
		ShiftRequirementPriority: 0.8,
	}
}

// FixedCell 管理者固定的单元格
type FixedCell struct {
	NurseIndex int    `json:"nurse_index" yaml:"nurse_index"`
	DayIndex   int    `json:"day_index" yaml:"day_index"`
	Shift      string `json:"shift" yaml:"shift"`
}

// InitialConstraints 跨月边界约束
type InitialConstraints struct {
	ForcedOff map[string][]int               `json:"forced_off,omitempty" yaml:"forced_off,omitempty"` // nurse_id -> 日索引
	Forbidden map[string]map[int][]ShiftCode `json:"forbidden,omitempty" yaml:"forbidden,omitempty"`   // nurse_id -> 日索引 -> 禁止班次
}

// IsEmpty 是否没有任何约束
func (ic *InitialConstraints) IsEmpty() bool {
	return ic == nil || (len(ic.ForcedOff) == 0 && len(ic.Forbidden) == 0)
}

// Normalize 校验配置并建立班次索引
func (c *RosterConfig) Normalize() error {
	var ve apperrors.ValidationErrors
	if len(c.ShiftTypes) == 0 {
		c.ShiftTypes = DefaultShiftTypes()
	}
	c.index = make(map[ShiftCode]int, len(c.ShiftTypes))
	for i, code := range c.ShiftTypes {
		code = NormalizeShiftCode(string(code))
		c.ShiftTypes[i] = code
		if _, dup := c.index[code]; dup {
			ve.Add("shift_types", fmt.Sprintf("班次代码重复: %s", code))
			continue
		}
		c.index[code] = i
	}
	for _, required := range []ShiftCode{ShiftDay, ShiftEvening, ShiftNight, ShiftOff} {
		if _, ok := c.index[required]; !ok {
			ve.Add("shift_types", fmt.Sprintf("班次类型必须包含 %s", required))
		}
	}

	for code := range c.DailyShiftRequirements {
		if _, ok := c.index[code]; !ok {
			ve.Add("daily_shift_requirements", fmt.Sprintf("存在未知班次: %s", code))
		}
	}

	if c.MaxConsecutiveWorkDays <= 0 {
		ve.Add("max_consecutive_work_days", "必须大于0")
	}
	if c.MaxConsecutiveNights <= 0 {
		ve.Add("max_consecutive_nights", "必须大于0")
	}
	if !c.ThreeSeqNig && c.MaxConsecutiveNights > 2 {
		c.MaxConsecutiveNights = 2
	}
	if c.MaxNightShiftsPerMonth < 0 {
		c.MaxNightShiftsPerMonth = 0
	}

	if c.ShiftPreferenceWeights == nil {
		c.ShiftPreferenceWeights = make(map[ShiftCode]float64)
	}
	defaults := DefaultRosterConfig().ShiftPreferenceWeights
	for code, w := range defaults {
		if _, ok := c.ShiftPreferenceWeights[code]; !ok {
			c.ShiftPreferenceWeights[code] = w
		}
	}
	if c.PairPreferenceWeight <= 0 {
		c.PairPreferenceWeight = 3.0
	}
	c.ShiftRequirementPriority = math.Min(1, math.Max(0.05, c.ShiftRequirementPriority))

	c.holidays = make(map[string]bool, len(c.Holidays))
	for _, h := range c.Holidays {
		if _, err := time.Parse(DateLayout, h); err != nil {
			ve.Add("holidays", fmt.Sprintf("无效的日期 %q", h))
			continue
		}
		c.holidays[h] = true
	}

	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// NumShifts 班次类型数量
func (c *RosterConfig) NumShifts() int {
	return len(c.ShiftTypes)
}

// Index 返回班次索引（支持别名）
func (c *RosterConfig) Index(code ShiftCode) (int, bool) {
	if c.index == nil {
		if err := c.Normalize(); err != nil {
			return 0, false
		}
	}
	if i, ok := c.index[code]; ok {
		return i, true
	}
	if main, ok := c.ShiftAliases[string(code)]; ok {
		i, ok := c.index[NormalizeShiftCode(string(main))]
		return i, ok
	}
	i, ok := c.index[NormalizeShiftCode(string(code))]
	return i, ok
}

// MustIndex 返回班次索引，未知代码 panic（仅用于 D/E/N/O）
func (c *RosterConfig) MustIndex(code ShiftCode) int {
	i, ok := c.Index(code)
	if !ok {
		panic(fmt.Sprintf("未知班次代码: %s", code))
	}
	return i
}

// OffIndex 休息班次索引
func (c *RosterConfig) OffIndex() int {
	return c.MustIndex(ShiftOff)
}

// Code 返回索引对应的班次代码
func (c *RosterConfig) Code(idx int) ShiftCode {
	if idx < 0 || idx >= len(c.ShiftTypes) {
		return ShiftCode(UnassignedCode)
	}
	return c.ShiftTypes[idx]
}

// WorkShifts 返回工作班次索引
func (c *RosterConfig) WorkShifts() []int {
	off := c.OffIndex()
	out := make([]int, 0, len(c.ShiftTypes)-1)
	for i := range c.ShiftTypes {
		if i != off {
			out = append(out, i)
		}
	}
	return out
}

// RequirementsFor 返回某天的人力需求：按日覆盖 > 周末/节假日 > 默认
func (c *RosterConfig) RequirementsFor(m Month, day int) map[ShiftCode]int {
	if req, ok := c.RequirementsByDay[day]; ok {
		return req
	}
	if len(c.WeekendRequirements) > 0 && (m.IsWeekend(day) || c.IsHoliday(m, day)) {
		return c.WeekendRequirements
	}
	return c.DailyShiftRequirements
}

// RequirementMatrix 展开为 [day][shift] 需求矩阵
func (c *RosterConfig) RequirementMatrix(m Month) [][]int {
	days := m.Days()
	out := make([][]int, days)
	for d := 0; d < days; d++ {
		out[d] = make([]int, c.NumShifts())
		for code, n := range c.RequirementsFor(m, d) {
			if s, ok := c.Index(code); ok && n > 0 {
				out[d][s] = n
			}
		}
	}
	return out
}

// IsHoliday 是否为配置的节假日
func (c *RosterConfig) IsHoliday(m Month, day int) bool {
	if len(c.holidays) == 0 {
		return false
	}
	return c.holidays[m.Date(day).Format(DateLayout)]
}

// BaseWeight 班次的基础偏好权重
func (c *RosterConfig) BaseWeight(code ShiftCode) float64 {
	if w, ok := c.ShiftPreferenceWeights[code]; ok {
		return w
	}
	if code == ShiftOff {
		return 10.0
	}
	return 5.0
}

// MinOffDays 每月最少休息天数
func (c *RosterConfig) MinOffDays() int {
	return c.GlobalMonthlyOffDays + c.StandardPersonalOffDays
}

// PreceptorParams 带教奖励参数
type PreceptorParams struct {
	Enabled   bool    `json:"enabled"`
	Strength  float64 `json:"strength"`   // 奖励系数倍率
	TopDays   int     `json:"top_days"`   // 每对最多奖励天数
	MinWeight float64 `json:"min_weight"` // 参与奖励的最低配对权重
}

// Preceptor 带教奖励参数；未设置档位时使用默认值，档位(0-10)线性映射
func (c *RosterConfig) Preceptor() PreceptorParams {
	if c.PreceptorGauge == nil {
		return PreceptorParams{Enabled: true, Strength: 1.0, TopDays: 12, MinWeight: 5.0}
	}
	g := *c.PreceptorGauge
	if g < 0 {
		g = 0
	}
	if g > 10 {
		g = 10
	}
	return PreceptorParams{
		Enabled:   g > 0,
		Strength:  0.2 + 0.18*float64(g),
		TopDays:   4 + 26*g/10,
		MinWeight: 10 - 0.5*float64(g),
	}
}
