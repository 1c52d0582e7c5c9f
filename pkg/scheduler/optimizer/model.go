// Package optimizer 提供排班优化算法
package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/validator"
)

// Mode 目标函数系数体系
type Mode int

const (
	ModeStaged Mode = iota // 三阶段字典序，偏好系数为 int(P·100)
	ModeLegacy             // 单次求解，按 shift_requirement_priority 缩放
)

// 三阶段目标的固定系数
const (
	shortWeight      = 1000
	expShortWeight   = 100
	legacySafety     = 5000
	preferenceScale  = 100
	pairSumThreshold = 1.2
)

// Input 构建搜索模型所需的输入
type Input struct {
	Config *model.RosterConfig
	Month  model.Month
	Nurses []*model.Nurse
	Prefs  *preference.Matrix
	Pairs  *preference.PairSet
	Locks  *validator.Locks
	Mode   Mode
}

type pairTerm struct {
	a, b     int
	together int64 // 同班每天得分
	apart    int64 // 错开每天得分
}

type bonusTerm struct {
	a, b, day, shift int
	weight           int64
}

// Model 搜索模型：决策域、人力需求、偏好系数与配对项
// 构建后只读，可被多个搜索协程共享
type Model struct {
	cfg    *model.RosterConfig
	month  model.Month
	nurses []*model.Nurse
	locks  *validator.Locks
	mode   Mode

	numNurses, numDays, numShifts int
	off, dayIdx, eveIdx, nightIdx int

	first, last []int
	active      []bool
	nightOnly   []bool
	experienced []bool

	req     [][]int // [day][shift]
	fixed   [][]int // 固定单元格人数
	need    [][]int // req - fixed
	expNeed [][]int // D/E/N 资深人数需求

	domain [][][]int   // [nurse][day] 可选班次，非在职为 nil
	coef   [][][]int64 // [nurse][day][shift]

	pairs    []pairTerm
	pairsOf  [][]int
	bonus    []bonusTerm
	bonusOf  [][][]int // [nurse][day] -> bonus 下标
	scanner  *constraint.RowScanner
	maxScore int64

	shortCost []int64 // 每班次缺员单价
	expCost   int64
	safety    int64
}

// EmptyDomainError 在职单元格没有任何可选班次
type EmptyDomainError struct {
	Nurse string
	Day   int
}

func (e *EmptyDomainError) Error() string {
	return fmt.Sprintf("护士 %s 第%d天没有可选班次", e.Nurse, e.Day+1)
}

// NewModel 构建搜索模型
func NewModel(in Input) (*Model, error) {
	cfg := in.Config
	days := in.Month.Days()
	m := &Model{
		cfg:       cfg,
		month:     in.Month,
		nurses:    in.Nurses,
		locks:     in.Locks,
		mode:      in.Mode,
		numNurses: len(in.Nurses),
		numDays:   days,
		numShifts: cfg.NumShifts(),
		off:       cfg.OffIndex(),
		dayIdx:    cfg.MustIndex(model.ShiftDay),
		eveIdx:    cfg.MustIndex(model.ShiftEvening),
		nightIdx:  cfg.MustIndex(model.ShiftNight),
		scanner:   constraint.NewRowScanner(cfg, days),
	}
	if m.locks == nil {
		m.locks = validator.NewLocks(m.numNurses, days)
	}

	m.first = make([]int, m.numNurses)
	m.last = make([]int, m.numNurses)
	m.active = make([]bool, m.numNurses)
	m.nightOnly = make([]bool, m.numNurses)
	m.experienced = make([]bool, m.numNurses)
	for i, n := range in.Nurses {
		m.first[i], m.last[i], m.active[i] = n.ActiveWindow(in.Month)
		m.nightOnly[i] = n.IsNightNurse
		m.experienced[i] = n.IsExperienced(cfg)
	}

	m.req = cfg.RequirementMatrix(in.Month)
	m.fixed = make([][]int, days)
	m.need = make([][]int, days)
	m.expNeed = make([][]int, days)
	for d := 0; d < days; d++ {
		m.fixed[d] = make([]int, m.numShifts)
		m.need[d] = make([]int, m.numShifts)
		m.expNeed[d] = make([]int, m.numShifts)
		for s := 0; s < m.numShifts; s++ {
			m.fixed[d][s] = m.locks.FixedCount(d, s)
			m.need[d][s] = m.req[d][s] - m.fixed[d][s]
		}
		for _, s := range []int{m.dayIdx, m.eveIdx, m.nightIdx} {
			if m.req[d][s] > 0 {
				need := cfg.RequiredExperiencedNurses
				if m.req[d][s] < need {
					need = m.req[d][s]
				}
				if need > 0 {
					m.expNeed[d][s] = need
				}
			}
		}
	}

	if err := m.buildDomains(); err != nil {
		return nil, err
	}
	m.buildWeights()
	m.buildCoefficients(in.Prefs)
	m.buildPairs(in.Pairs, in.Prefs)
	m.maxScore = m.scoreUpperBound()
	return m, nil
}

func (m *Model) buildDomains() error {
	m.domain = make([][][]int, m.numNurses)
	for n := 0; n < m.numNurses; n++ {
		m.domain[n] = make([][]int, m.numDays)
		if !m.active[n] {
			continue
		}
		nurse := m.nurses[n]
		for d := m.first[n]; d <= m.last[n]; d++ {
			if s, ok := m.locks.Fixed(n, d); ok {
				m.domain[n][d] = []int{s}
				continue
			}
			var dom []int
			for s := 0; s < m.numShifts; s++ {
				if m.locks.IsForbidden(n, d, s) || !nurse.CanWork(m.cfg.Code(s)) {
					continue
				}
				dom = append(dom, s)
			}
			if len(dom) == 0 {
				return &EmptyDomainError{Nurse: nurse.DBID, Day: d}
			}
			m.domain[n][d] = dom
		}
	}
	return nil
}

// legacyFactors 返回 (缺员惩罚基数, 偏好放大系数)
func legacyFactors(priority float64) (float64, float64) {
	p := math.Max(0.05, math.Min(1, priority))
	if p > 0.95 {
		return 10000, 0.5
	}
	return 2000 * p * p, 0.8 + 1.7*math.Pow(1-p, 1.5)
}

func (m *Model) buildWeights() {
	m.shortCost = make([]int64, m.numShifts)
	if m.mode == ModeStaged {
		for s := range m.shortCost {
			m.shortCost[s] = shortWeight
		}
		m.expCost = expShortWeight
		return
	}
	p := math.Max(0.05, math.Min(1, m.cfg.ShiftRequirementPriority))
	staffing, _ := legacyFactors(p)
	for s := range m.shortCost {
		factor := 1.0
		if s == m.nightIdx {
			factor = 1.2
		}
		m.shortCost[s] = int64(staffing * factor)
	}
	m.expCost = int64(500 * p)
	m.safety = legacySafety
}

// scaled 截断取整 v·factor，避免 4.1·100 之类的浮点误差
func scaled(v, factor float64) int64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromFloat(factor)).IntPart()
}

func (m *Model) buildCoefficients(prefs *preference.Matrix) {
	_, boost := legacyFactors(m.cfg.ShiftRequirementPriority)
	offMult := float64(int(800 * boost))
	baseMult := float64(int(400 * boost))
	nightBonus := int64(500 * boost)

	m.coef = make([][][]int64, m.numNurses)
	for n := 0; n < m.numNurses; n++ {
		m.coef[n] = make([][]int64, m.numDays)
		for d := 0; d < m.numDays; d++ {
			m.coef[n][d] = make([]int64, m.numShifts)
			for s := 0; s < m.numShifts; s++ {
				p := 0.0
				if prefs != nil {
					p = prefs.Get(n, d, s)
				}
				if m.mode == ModeStaged {
					m.coef[n][d][s] = scaled(p, preferenceScale)
					continue
				}
				switch {
				case p <= 0:
					m.coef[n][d][s] = scaled(p, baseMult)
				case s == m.off:
					m.coef[n][d][s] = scaled(math.Pow(p, 1.5), offMult)
				default:
					m.coef[n][d][s] = scaled(math.Pow(p, 1.3), baseMult)
				}
			}
			if m.mode == ModeLegacy && m.nightOnly[n] {
				m.coef[n][d][m.nightIdx] += nightBonus
			}
		}
	}
}

func (m *Model) buildPairs(ps *preference.PairSet, prefs *preference.Matrix) {
	m.pairsOf = make([][]int, m.numNurses)
	m.bonusOf = make([][][]int, m.numNurses)
	for n := range m.bonusOf {
		m.bonusOf[n] = make([][]int, m.numDays)
	}
	if ps == nil {
		return
	}

	mult := float64(preferenceScale)
	if m.mode == ModeLegacy {
		_, boost := legacyFactors(m.cfg.ShiftRequirementPriority)
		mult = float64(int(300 * boost))
	}

	index := make(map[[2]int]int)
	term := func(a, b int) *pairTerm {
		key := [2]int{a, b}
		if i, ok := index[key]; ok {
			return &m.pairs[i]
		}
		index[key] = len(m.pairs)
		m.pairs = append(m.pairs, pairTerm{a: a, b: b})
		return &m.pairs[len(m.pairs)-1]
	}
	for _, p := range ps.TogetherPairs() {
		term(p.A, p.B).together = scaled(p.Weight, mult)
	}
	for _, p := range ps.ApartPairs() {
		term(p.A, p.B).apart = scaled(p.Weight, mult)
	}
	for i, p := range m.pairs {
		m.pairsOf[p.a] = append(m.pairsOf[p.a], i)
		m.pairsOf[p.b] = append(m.pairsOf[p.b], i)
	}

	if m.mode == ModeStaged && prefs != nil {
		m.buildPreceptorBonus(ps, prefs)
	}
}

// buildPreceptorBonus 带教配对：联合在职期内偏好和最高的 top_days 天同班奖励
func (m *Model) buildPreceptorBonus(ps *preference.PairSet, prefs *preference.Matrix) {
	params := m.cfg.Preceptor()
	if !params.Enabled || params.TopDays <= 0 {
		return
	}
	var focus []int
	for _, s := range []int{m.dayIdx, m.eveIdx, m.nightIdx} {
		if m.cfg.DailyShiftRequirements[m.cfg.Code(s)] > 0 {
			focus = append(focus, s)
		}
	}

	seen := make(map[[2]int]bool)
	for _, r := range ps.PreceptorPairs() {
		a, b := r.Requester, r.Target
		if a > b {
			a, b = b, a
		}
		if seen[[2]int{a, b}] || !m.active[a] || !m.active[b] {
			continue
		}
		seen[[2]int{a, b}] = true
		w := ps.Together[a][b]
		if w < params.MinWeight {
			continue
		}
		weight := scaled(w, preferenceScale*params.Strength)

		type scored struct {
			sum        float64
			day, shift int
		}
		var days []scored
		d0, d1 := max(m.first[a], m.first[b]), min(m.last[a], m.last[b])
		for d := d0; d <= d1; d++ {
			best, bestS := 0.0, -1
			for _, s := range focus {
				sum := prefs.Get(a, d, s) + prefs.Get(b, d, s)
				if sum < pairSumThreshold {
					continue
				}
				if bestS < 0 || sum > best {
					best, bestS = sum, s
				}
			}
			if bestS >= 0 {
				days = append(days, scored{sum: best, day: d, shift: bestS})
			}
		}
		sort.Slice(days, func(i, j int) bool {
			if days[i].sum != days[j].sum {
				return days[i].sum > days[j].sum
			}
			return days[i].day > days[j].day
		})
		if len(days) > params.TopDays {
			days = days[:params.TopDays]
		}
		for _, sd := range days {
			idx := len(m.bonus)
			m.bonus = append(m.bonus, bonusTerm{a: a, b: b, day: sd.day, shift: sd.shift, weight: weight})
			m.bonusOf[a][sd.day] = append(m.bonusOf[a][sd.day], idx)
			m.bonusOf[b][sd.day] = append(m.bonusOf[b][sd.day], idx)
		}
	}
}

// scoreUpperBound 偏好得分上界，用于计算第三阶段相对间隙
func (m *Model) scoreUpperBound() int64 {
	var ub int64
	for n := 0; n < m.numNurses; n++ {
		for d := 0; d < m.numDays; d++ {
			dom := m.domain[n][d]
			if len(dom) == 0 {
				continue
			}
			best := m.coef[n][d][dom[0]]
			for _, s := range dom[1:] {
				if c := m.coef[n][d][s]; c > best {
					best = c
				}
			}
			ub += best
		}
	}
	for _, p := range m.pairs {
		if !m.active[p.a] || !m.active[p.b] {
			continue
		}
		d0, d1 := max(m.first[p.a], m.first[p.b]), min(m.last[p.a], m.last[p.b])
		if d1 >= d0 {
			ub += int64(d1-d0+1) * max(p.together, p.apart, 0)
		}
	}
	for _, b := range m.bonus {
		ub += b.weight
	}
	return ub
}

// NumNurses 护士数
func (m *Model) NumNurses() int { return m.numNurses }

// NumDays 天数
func (m *Model) NumDays() int { return m.numDays }

// Config 规则配置
func (m *Model) Config() *model.RosterConfig { return m.cfg }

// Locks 锁定
func (m *Model) Locks() *validator.Locks { return m.locks }

// MaxScore 偏好得分上界
func (m *Model) MaxScore() int64 { return m.maxScore }

// Domain 单元格可选班次
func (m *Model) Domain(n, d int) []int { return m.domain[n][d] }

// Movable 单元格是否可由搜索修改
func (m *Model) Movable(n, d int) bool { return len(m.domain[n][d]) > 1 }

// Allows 单元格是否可以取某班次
func (m *Model) Allows(n, d, s int) bool {
	for _, v := range m.domain[n][d] {
		if v == s {
			return true
		}
	}
	return false
}

// Window 护士在职区间
func (m *Model) Window(n int) (first, last int, ok bool) {
	return m.first[n], m.last[n], m.active[n]
}

// Need 某天某班次扣除固定后的需求
func (m *Model) Need(d, s int) int { return m.need[d][s] }

// Requirement 某天某班次需求
func (m *Model) Requirement(d, s int) int { return m.req[d][s] }

// NewRoster 创建已写入固定单元格的空排班
func (m *Model) NewRoster() *model.Roster {
	r := model.NewRoster(m.numNurses, m.numDays, m.numShifts)
	m.locks.Apply(r)
	return r
}

// IsHardFamily 是否为硬安全规则松弛族
func IsHardFamily(f constraint.Family) bool {
	switch f {
	case constraint.FamTransND, constraint.FamTransED, constraint.FamTransNE,
		constraint.FamCWorkMissing, constraint.FamCNightExcess, constraint.FamMNightExcess,
		constraint.FamNightOnlyDE, constraint.FamRec3N2O, constraint.FamRec2N2O:
		return true
	}
	return false
}
