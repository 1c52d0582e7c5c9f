package optimizer

import (
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// state 增量维护的搜索状态
// 每次 set 只重算受影响的 (日, 班次) 覆盖项、该护士整行的安全松弛与当天的配对项
type state struct {
	m    *Model
	grid *model.Roster

	count [][]int // [day][shift] 总人数（含固定）
	exp   [][]int // 资深人数

	short, over int64
	shortBy     []int64
	expShort    int64
	pref        int64
	pair        int64

	rows   []constraint.Totals
	fam    constraint.Totals
	rowNew []int64
	newTot int64

	baseline map[constraint.Key]struct{}
}

// newState 从排班构建状态；在职单元格的非法取值被替换为域内的值
func newState(m *Model, r *model.Roster, baseline map[constraint.Key]struct{}) *state {
	st := &state{
		m:        m,
		grid:     r.Clone(),
		count:    make([][]int, m.numDays),
		exp:      make([][]int, m.numDays),
		shortBy:  make([]int64, m.numShifts),
		rows:     make([]constraint.Totals, m.numNurses),
		rowNew:   make([]int64, m.numNurses),
		baseline: baseline,
	}
	for d := range st.count {
		st.count[d] = make([]int, m.numShifts)
		st.exp[d] = make([]int, m.numShifts)
	}

	for n := 0; n < m.numNurses; n++ {
		for d := 0; d < m.numDays; d++ {
			dom := m.domain[n][d]
			if len(dom) == 0 {
				st.grid.Set(n, d, model.Unassigned)
				continue
			}
			v := st.grid.Get(n, d)
			if !m.Allows(n, d, v) {
				v = dom[0]
				if m.Allows(n, d, m.off) {
					v = m.off
				}
				st.grid.Set(n, d, v)
			}
			st.count[d][v]++
			if m.experienced[n] {
				st.exp[d][v]++
			}
			st.pref += m.coef[n][d][v]
		}
	}

	for d := 0; d < m.numDays; d++ {
		for s := 0; s < m.numShifts; s++ {
			st.addCell(d, s, 1)
		}
	}
	for i := range m.pairs {
		for d := 0; d < m.numDays; d++ {
			st.pair += st.pairTermScore(&m.pairs[i], d)
		}
	}
	for _, b := range m.bonus {
		st.pair += st.bonusScore(b)
	}
	for n := 0; n < m.numNurses; n++ {
		st.rescan(n)
	}
	return st
}

// coverageAt 某天某班次的缺员与超员
func (st *state) coverageAt(d, s int) (short, over int) {
	m := st.m
	need := m.need[d][s]
	if m.req[d][s] <= 0 || need <= 0 {
		return 0, 0
	}
	free := st.count[d][s] - m.fixed[d][s]
	if free < need {
		return need - free, 0
	}
	return 0, free - need
}

func (st *state) expShortAt(d, s int) int {
	need := st.m.expNeed[d][s]
	if need == 0 || st.exp[d][s] >= need {
		return 0
	}
	return need - st.exp[d][s]
}

// addCell 以 sign 累加某 (日, 班次) 的覆盖与资深缺口
func (st *state) addCell(d, s, sign int) {
	short, over := st.coverageAt(d, s)
	st.short += int64(sign * short)
	st.shortBy[s] += int64(sign * short)
	st.over += int64(sign * over)
	st.expShort += int64(sign * st.expShortAt(d, s))
}

func (st *state) pairTermScore(p *pairTerm, d int) int64 {
	a, b := st.grid.Get(p.a, d), st.grid.Get(p.b, d)
	off := st.m.off
	if a < 0 || b < 0 || a == off || b == off {
		return 0
	}
	if a == b {
		return p.together
	}
	return p.apart
}

func (st *state) bonusScore(b bonusTerm) int64 {
	if st.grid.Get(b.a, b.day) == b.shift && st.grid.Get(b.b, b.day) == b.shift {
		return b.weight
	}
	return 0
}

// pairScoreOf 与护士 n 相关的第 d 天配对得分
func (st *state) pairScoreOf(n, d int) int64 {
	var total int64
	for _, i := range st.m.pairsOf[n] {
		total += st.pairTermScore(&st.m.pairs[i], d)
	}
	for _, i := range st.m.bonusOf[n][d] {
		total += st.bonusScore(st.m.bonus[i])
	}
	return total
}

// set 修改单元格并增量更新
func (st *state) set(n, d, v int) {
	m := st.m
	old := st.grid.Get(n, d)
	if old == v {
		return
	}
	st.addCell(d, old, -1)
	st.addCell(d, v, -1)
	pairBefore := st.pairScoreOf(n, d)

	st.grid.Set(n, d, v)
	st.count[d][old]--
	st.count[d][v]++
	if m.experienced[n] {
		st.exp[d][old]--
		st.exp[d][v]++
	}
	st.pref += m.coef[n][d][v] - m.coef[n][d][old]

	st.addCell(d, old, 1)
	st.addCell(d, v, 1)
	st.pair += st.pairScoreOf(n, d) - pairBefore
	st.rescan(n)
}

// rescan 重新扫描护士整行的安全松弛
func (st *state) rescan(n int) {
	m := st.m
	if !m.active[n] {
		return
	}
	var t constraint.Totals
	var fresh int64
	m.scanner.Scan(st.grid.Row(n), m.first[n], m.last[n], m.nightOnly[n], func(in constraint.Instance) {
		t[in.Family] += in.Slack
		if st.baseline != nil {
			in.Nurse = n
			if _, ok := st.baseline[in.Key()]; !ok {
				fresh += int64(in.Slack)
			}
		}
	})
	st.fam.Sub(st.rows[n])
	st.fam.Add(t)
	st.rows[n] = t
	st.newTot += fresh - st.rowNew[n]
	st.rowNew[n] = fresh
}

// score 偏好得分：偏好系数 + 配对 - 资深缺口
func (st *state) score() int64 {
	return st.pref + st.pair - st.m.expCost*st.expShort
}

// hard 硬违规数：缺员人次 + 硬安全松弛
func (st *state) hard() int64 {
	return st.short + hardSlack(&st.fam)
}

// hardSlack 硬安全族的松弛和
func hardSlack(t *constraint.Totals) int64 {
	var h int64
	for f, v := range t {
		if IsHardFamily(constraint.Family(f)) {
			h += int64(v)
		}
	}
	return h
}

// instances 当前全部正松弛实例的标识
func (st *state) instances() map[constraint.Key]struct{} {
	out := make(map[constraint.Key]struct{})
	m := st.m
	for n := 0; n < m.numNurses; n++ {
		if !m.active[n] || st.rows[n].Sum() == 0 {
			continue
		}
		m.scanner.Scan(st.grid.Row(n), m.first[n], m.last[n], m.nightOnly[n], func(in constraint.Instance) {
			in.Nurse = n
			out[in.Key()] = struct{}{}
		})
	}
	return out
}

// nurseInstances 护士 n 的正松弛实例
func (st *state) nurseInstances(n int) []constraint.Instance {
	m := st.m
	var out []constraint.Instance
	m.scanner.Scan(st.grid.Row(n), m.first[n], m.last[n], m.nightOnly[n], func(in constraint.Instance) {
		in.Nurse = n
		out = append(out, in)
	})
	return out
}
