// Package boundary 根据上月排班尾部生成本月初的强制休息与禁止班次
package boundary

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
)

// DefaultLookback 默认回看天数
const DefaultLookback = 6

// TailMetrics 上月尾部连续性指标
type TailMetrics struct {
	ConsecutiveWorkTail  int             `json:"consecutive_work_tail"`
	ConsecutiveNightTail int             `json:"consecutive_night_tail"`
	LastDayShift         model.ShiftCode `json:"last_day_shift,omitempty"`
	OffsAfterTailNights  int             `json:"offs_after_tail_nights"`
}

// Metrics 计算尾部序列（主代码，"-" 表示无排班）的连续性指标
func Metrics(seq []model.ShiftCode) TailMetrics {
	var m TailMetrics
	if len(seq) == 0 {
		return m
	}
	m.LastDayShift = seq[len(seq)-1]

	// 末尾连续工作天数
	for i := len(seq) - 1; i >= 0 && seq[i].IsWork(); i-- {
		m.ConsecutiveWorkTail++
	}

	// 末尾休息天数，再往前的连续夜班
	i := len(seq) - 1
	offs := 0
	for ; i >= 0 && seq[i] == model.ShiftOff; i-- {
		offs++
	}
	for ; i >= 0 && seq[i] == model.ShiftNight; i-- {
		m.ConsecutiveNightTail++
	}
	if offs > 2 {
		offs = 2
	}
	m.OffsAfterTailNights = offs
	return m
}

// Builder 跨月边界约束构建器
type Builder struct {
	cfg      *model.RosterConfig
	lookback int
	log      zerolog.Logger
}

// NewBuilder 创建构建器，lookback<=0 时使用默认回看天数
func NewBuilder(cfg *model.RosterConfig, lookback int) *Builder {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Builder{
		cfg:      cfg,
		lookback: lookback,
		log:      logger.Get().With().Str("component", "boundary").Logger(),
	}
}

// Tail 取上月最后 lookback 天并规范为主代码
// 别名映射到主代码，无法识别的代码视为无排班
func (b *Builder) Tail(codes []string) []model.ShiftCode {
	start := len(codes) - b.lookback
	if start < 0 {
		start = 0
	}
	out := make([]model.ShiftCode, 0, len(codes)-start)
	for _, c := range codes[start:] {
		if s, ok := b.cfg.Index(model.ShiftCode(c)); ok {
			out = append(out, b.cfg.Code(s))
			continue
		}
		out = append(out, model.UnassignedCode)
	}
	return out
}

// Result 边界构建结果
type Result struct {
	Constraints *model.InitialConstraints `json:"initial_constraints"`
	Metrics     map[string]TailMetrics    `json:"metrics"`
}

// Build 根据上月每位护士的逐日代码生成 initial_constraints
// previous 的键为护士 db id；nurseIDs 为本月参与排班的护士
func (b *Builder) Build(previous map[string][]string, nurseIDs []string) *Result {
	ic := &model.InitialConstraints{
		ForcedOff: make(map[string][]int),
		Forbidden: make(map[string]map[int][]model.ShiftCode),
	}
	res := &Result{Constraints: ic, Metrics: make(map[string]TailMetrics)}

	k := b.cfg.MaxConsecutiveWorkDays
	l := b.cfg.MaxConsecutiveNights

	ids := append([]string(nil), nurseIDs...)
	sort.Strings(ids)

	for _, id := range ids {
		codes, ok := previous[id]
		if !ok || len(codes) == 0 {
			continue
		}
		m := Metrics(b.Tail(codes))
		res.Metrics[id] = m

		offDays := map[int]bool{}
		forbid := map[int]map[model.ShiftCode]bool{}
		addForbid := func(d int, code model.ShiftCode) {
			if forbid[d] == nil {
				forbid[d] = map[model.ShiftCode]bool{}
			}
			forbid[d][code] = true
		}

		// (a) 连续工作已达上限，本月第1天休息
		if k > 0 && m.ConsecutiveWorkTail >= k {
			offDays[0] = true
		}

		// (b) 连续夜班后的恢复休息
		required := 0
		if b.cfg.TwoOffsAfterThreeNig && m.ConsecutiveNightTail >= 3 {
			required = 2
		} else if b.cfg.TwoOffsAfterTwoNig && m.ConsecutiveNightTail >= 2 {
			required = 2
		}
		if rem := required - m.OffsAfterTailNights; rem > 0 {
			for d := 0; d < rem && d < 2; d++ {
				offDays[d] = true
			}
		}

		// (c) 班次转换
		switch m.LastDayShift {
		case model.ShiftEvening:
			if b.cfg.BannedDayAfterEve {
				addForbid(0, model.ShiftDay)
			}
		case model.ShiftNight:
			addForbid(0, model.ShiftDay)
			if b.cfg.BannedDayAfterEve {
				addForbid(0, model.ShiftEvening)
			}
		}

		// (d) 连续夜班已达上限且延续到月末
		if l > 0 && m.LastDayShift == model.ShiftNight && m.ConsecutiveNightTail >= l {
			addForbid(0, model.ShiftNight)
		}

		if len(offDays) > 0 {
			days := make([]int, 0, len(offDays))
			for d := range offDays {
				days = append(days, d)
			}
			sort.Ints(days)
			ic.ForcedOff[id] = days
		}
		if len(forbid) > 0 {
			dm := make(map[int][]model.ShiftCode, len(forbid))
			for d, set := range forbid {
				codes := make([]model.ShiftCode, 0, len(set))
				for c := range set {
					codes = append(codes, c)
				}
				sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
				dm[d] = codes
			}
			ic.Forbidden[id] = dm
		}

		if len(offDays) > 0 || len(forbid) > 0 {
			b.log.Debug().
				Str("nurse_id", id).
				Int("work_tail", m.ConsecutiveWorkTail).
				Int("night_tail", m.ConsecutiveNightTail).
				Str("last", string(m.LastDayShift)).
				Int("forced_off", len(offDays)).
				Msg("生成跨月边界约束")
		}
	}

	offCount, forbidCount := 0, 0
	for _, v := range ic.ForcedOff {
		offCount += len(v)
	}
	for _, v := range ic.Forbidden {
		for _, codes := range v {
			forbidCount += len(codes)
		}
	}
	b.log.Info().Int("forced_off", offCount).Int("forbidden", forbidCount).Msg("跨月边界约束生成完成")

	return res
}

// Merge 把边界约束并入配置已有的 initial_constraints
func Merge(dst *model.InitialConstraints, src *model.InitialConstraints) *model.InitialConstraints {
	if dst == nil {
		dst = &model.InitialConstraints{}
	}
	if src == nil {
		return dst
	}
	if dst.ForcedOff == nil {
		dst.ForcedOff = make(map[string][]int)
	}
	if dst.Forbidden == nil {
		dst.Forbidden = make(map[string]map[int][]model.ShiftCode)
	}
	for id, days := range src.ForcedOff {
		seen := make(map[int]bool)
		merged := make([]int, 0, len(dst.ForcedOff[id])+len(days))
		for _, d := range append(append([]int(nil), dst.ForcedOff[id]...), days...) {
			if !seen[d] {
				seen[d] = true
				merged = append(merged, d)
			}
		}
		sort.Ints(merged)
		dst.ForcedOff[id] = merged
	}
	for id, dm := range src.Forbidden {
		if dst.Forbidden[id] == nil {
			dst.Forbidden[id] = make(map[int][]model.ShiftCode)
		}
		for d, codes := range dm {
			seen := make(map[model.ShiftCode]bool)
			var merged []model.ShiftCode
			for _, c := range append(append([]model.ShiftCode(nil), dst.Forbidden[id][d]...), codes...) {
				if !seen[c] {
					seen[c] = true
					merged = append(merged, c)
				}
			}
			dst.Forbidden[id][d] = merged
		}
	}
	return dst
}
