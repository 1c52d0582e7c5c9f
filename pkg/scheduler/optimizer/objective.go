package optimizer

import (
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// Stage 求解阶段
type Stage int

const (
	StageCoverage   Stage = iota + 1 // 覆盖：最小化 1000·缺员 + 超员
	StageSafety                      // 安全：在覆盖不退化的前提下最小化松弛和（硬安全族加权）
	StagePreference                  // 偏好：覆盖与安全不退化，最大化偏好得分
	StageLegacy                      // 单次加权求解
	StageRepair                      // 修复：先减少硬违规，其余上界不退化，再最大化偏好得分
)

// String 阶段名称
func (s Stage) String() string {
	switch s {
	case StageCoverage:
		return "coverage"
	case StageSafety:
		return "safety"
	case StagePreference:
		return "preference"
	case StageLegacy:
		return "legacy"
	case StageRepair:
		return "repair"
	}
	return "unknown"
}

// big 字典序优先级之间的系数
const big int64 = 1 << 32

// hardFamilyWeight 安全阶段中硬安全族相对软安全族的权重
const hardFamilyWeight int64 = 20

// Pins 上一阶段固定下来的上界
type Pins struct {
	Short     int64                       `json:"short"`
	Over      int64                       `json:"over"`
	Families  *constraint.Totals          `json:"families,omitempty"`
	Instances map[constraint.Key]struct{} `json:"-"`
}

// Objective 搜索目标，能量越低越好
type Objective struct {
	Stage Stage
	Pins  Pins
}

func (o Objective) coverageExcess(st *state) int64 {
	return max(0, st.short-o.Pins.Short) + max(0, st.over-o.Pins.Over)
}

func (o Objective) familyExcess(st *state) int64 {
	if o.Pins.Families == nil {
		return 0
	}
	var ex int64
	for f, v := range st.fam {
		if d := v - o.Pins.Families[f]; d > 0 {
			ex += int64(d)
		}
	}
	return ex
}

// softExcess 软安全族超出上界的部分
func (o Objective) softExcess(st *state) int64 {
	if o.Pins.Families == nil {
		return 0
	}
	var ex int64
	for f, v := range st.fam {
		if IsHardFamily(constraint.Family(f)) {
			continue
		}
		if d := v - o.Pins.Families[f]; d > 0 {
			ex += int64(d)
		}
	}
	return ex
}

// pinnedHard 上界对应的硬违规数
func (o Objective) pinnedHard() int64 {
	h := o.Pins.Short
	if o.Pins.Families != nil {
		h += hardSlack(o.Pins.Families)
	}
	return h
}

// Energy 计算状态能量
func (o Objective) Energy(st *state) int64 {
	switch o.Stage {
	case StageCoverage:
		return shortWeight*st.short + st.over
	case StageSafety:
		h := hardSlack(&st.fam)
		return big*o.coverageExcess(st) + hardFamilyWeight*h + int64(st.fam.Sum()) - h
	case StagePreference:
		return big*(o.coverageExcess(st)+o.familyExcess(st)+st.newTot) - st.score()
	case StageLegacy:
		var e int64
		for s, v := range st.shortBy {
			e += v * st.m.shortCost[s]
		}
		return e + st.m.safety*int64(st.fam.Sum()) - st.score()
	case StageRepair:
		// 缺员与硬安全松弛直接计入，超员与软安全族只以上界约束
		return big*(st.hard()+max(0, st.over-o.Pins.Over)+o.softExcess(st)) - st.score()
	}
	return 0
}

// Feasible 是否满足全部上界
func (o Objective) Feasible(st *state) bool {
	switch o.Stage {
	case StageSafety:
		return o.coverageExcess(st) == 0
	case StagePreference:
		return o.coverageExcess(st) == 0 && o.familyExcess(st) == 0 && st.newTot == 0
	case StageRepair:
		return st.hard() <= o.pinnedHard() && st.over <= o.Pins.Over && o.softExcess(st) == 0
	}
	return true
}

// LowerBound 能量下界
func (o Objective) LowerBound(m *Model) int64 {
	switch o.Stage {
	case StagePreference, StageLegacy, StageRepair:
		return -m.maxScore
	}
	return 0
}

// needsBaseline 是否需要跟踪新增实例
func (o Objective) needsBaseline() bool {
	return o.Stage == StagePreference && o.Pins.Instances != nil
}

// Evaluation 排班在某模型下的各项指标
type Evaluation struct {
	Short     int64             `json:"short"`
	Over      int64             `json:"over"`
	ExpShort  int64             `json:"exp_short"`
	Families  constraint.Totals `json:"-"`
	SafetySum int               `json:"safety_sum"`
	Hard      int64             `json:"hard"`
	Score     int64             `json:"score"`
	Pref      int64             `json:"pref"`
	Pair      int64             `json:"pair"`
}

// Evaluate 计算排班的覆盖、安全、偏好指标
func (m *Model) Evaluate(r *model.Roster) Evaluation {
	return evaluationOf(newState(m, r, nil))
}

func evaluationOf(st *state) Evaluation {
	return Evaluation{
		Short:     st.short,
		Over:      st.over,
		ExpShort:  st.expShort,
		Families:  st.fam,
		SafetySum: st.fam.Sum(),
		Hard:      st.hard(),
		Score:     st.score(),
		Pref:      st.pref,
		Pair:      st.pair,
	}
}

// PinsFrom 以排班当前水平作为上界（覆盖、各族松弛、已有实例）
func (m *Model) PinsFrom(r *model.Roster) Pins {
	st := newState(m, r, nil)
	fam := st.fam
	return Pins{
		Short:     st.short,
		Over:      st.over,
		Families:  &fam,
		Instances: st.instances(),
	}
}
