package optimizer

import (
	"math/rand"
)

// MoveType 邻域移动类型
type MoveType int

const (
	MoveChange    MoveType = iota // 单元格改为另一班次
	MoveSwap                      // 同一天两名护士交换班次（覆盖不变）
	MoveDaySwap                   // 同一护士两天交换班次
	MoveBlockSwap                 // 两名护士交换连续两天的班次（覆盖不变）
)

// String 移动名称
func (t MoveType) String() string {
	switch t {
	case MoveChange:
		return "change"
	case MoveSwap:
		return "swap"
	case MoveDaySwap:
		return "day_swap"
	case MoveBlockSwap:
		return "block_swap"
	}
	return "unknown"
}

type cellChange struct {
	n, d     int
	from, to int
}

// Move 邻域移动操作，最多修改四个单元格
type Move struct {
	Type    MoveType
	changes [4]cellChange
	size    int
}

func (mv *Move) add(n, d, from, to int) {
	mv.changes[mv.size] = cellChange{n: n, d: d, from: from, to: to}
	mv.size++
}

func (mv *Move) apply(st *state) {
	for i := 0; i < mv.size; i++ {
		c := mv.changes[i]
		st.set(c.n, c.d, c.to)
	}
}

func (mv *Move) undo(st *state) {
	for i := mv.size - 1; i >= 0; i-- {
		c := mv.changes[i]
		st.set(c.n, c.d, c.from)
	}
}

type cell struct{ n, d int }

// MoveSpace 允许搜索修改的单元格集合
type MoveSpace struct {
	cells   []cell
	byDay   [][]int // day -> 可修改的护士
	byNurse [][]int // nurse -> 可修改的日期
	nurses  []int   // 至少有一个可修改单元格的护士
	days    int
	in      []bool
}

// NewMoveSpace 创建移动空间；filter 为 nil 时包含全部非固定单元格
func NewMoveSpace(m *Model, filter func(n, d int) bool) *MoveSpace {
	sp := &MoveSpace{
		byDay:   make([][]int, m.numDays),
		byNurse: make([][]int, m.numNurses),
		days:    m.numDays,
		in:      make([]bool, m.numNurses*m.numDays),
	}
	for n := 0; n < m.numNurses; n++ {
		for d := 0; d < m.numDays; d++ {
			if !m.Movable(n, d) || (filter != nil && !filter(n, d)) {
				continue
			}
			sp.cells = append(sp.cells, cell{n, d})
			sp.byDay[d] = append(sp.byDay[d], n)
			sp.byNurse[n] = append(sp.byNurse[n], d)
			sp.in[n*m.numDays+d] = true
		}
		if len(sp.byNurse[n]) > 0 {
			sp.nurses = append(sp.nurses, n)
		}
	}
	return sp
}

// Size 可修改单元格数
func (sp *MoveSpace) Size() int { return len(sp.cells) }

// Contains 单元格是否在空间内
func (sp *MoveSpace) Contains(n, d int) bool { return sp.in[n*sp.days+d] }

// NeighborhoodGenerator 邻域生成器
type NeighborhoodGenerator struct {
	rng         *rand.Rand
	space       *MoveSpace
	moveWeights []float64 // 按 MoveType 下标
	guided      float64   // 引导式移动概率
}

// NewNeighborhoodGenerator 创建邻域生成器
func NewNeighborhoodGenerator(space *MoveSpace, rng *rand.Rand) *NeighborhoodGenerator {
	return &NeighborhoodGenerator{
		rng:   rng,
		space: space,
		moveWeights: []float64{
			MoveChange:  0.45, // 45% 改班
			MoveSwap:    0.40, // 40% 同日交换
			MoveDaySwap: 0.15, // 15% 跨日交换
		},
		guided: 0.5,
	}
}

// selectMoveType 按权重选择移动类型
func (g *NeighborhoodGenerator) selectMoveType() MoveType {
	r := g.rng.Float64()
	cumulative := 0.0
	for t, w := range g.moveWeights {
		cumulative += w
		if r < cumulative {
			return MoveType(t)
		}
	}
	return MoveChange
}

// Generate 生成一个可行移动（所有新值都在单元格的域内）
func (g *NeighborhoodGenerator) Generate(st *state, stage Stage) (Move, bool) {
	if len(g.space.cells) == 0 {
		return Move{}, false
	}
	if g.rng.Float64() < g.guided {
		if mv, ok := g.guidedMove(st, stage); ok {
			return mv, true
		}
	}
	switch g.selectMoveType() {
	case MoveSwap:
		if mv, ok := g.swapMove(st, -1, -1); ok {
			return mv, true
		}
	case MoveDaySwap:
		if mv, ok := g.daySwapMove(st, -1, -1); ok {
			return mv, true
		}
	}
	return g.changeMove(st, -1, -1, -1)
}

// guidedMove 针对当前阶段的残留问题生成移动
func (g *NeighborhoodGenerator) guidedMove(st *state, stage Stage) (Move, bool) {
	if st.short > 0 || st.over > 0 {
		if mv, ok := g.coverageMove(st); ok {
			return mv, true
		}
	}
	switch stage {
	case StageSafety, StageLegacy, StageRepair:
		return g.instanceMove(st)
	case StagePreference:
		if st.newTot > 0 || g.rng.Intn(3) == 0 {
			if mv, ok := g.instanceMove(st); ok {
				return mv, true
			}
		}
		return g.preferenceMove(st)
	}
	return Move{}, false
}

// coverageMove 补缺员或削减超员
func (g *NeighborhoodGenerator) coverageMove(st *state) (Move, bool) {
	m := st.m
	type slot struct{ d, s, short int }
	var slots []slot
	for d := 0; d < m.numDays; d++ {
		if len(g.space.byDay[d]) == 0 {
			continue
		}
		for s := 0; s < m.numShifts; s++ {
			short, over := st.coverageAt(d, s)
			if short > 0 {
				slots = append(slots, slot{d, s, short})
			} else if over > 0 {
				slots = append(slots, slot{d, s, -over})
			}
		}
	}
	if len(slots) == 0 {
		return Move{}, false
	}
	sl := slots[g.rng.Intn(len(slots))]
	nurses := g.space.byDay[sl.d]
	start := g.rng.Intn(len(nurses))
	for i := range nurses {
		n := nurses[(start+i)%len(nurses)]
		cur := st.grid.Get(n, sl.d)
		if sl.short > 0 {
			if cur != sl.s && m.Allows(n, sl.d, sl.s) {
				var mv Move
				mv.Type = MoveChange
				mv.add(n, sl.d, cur, sl.s)
				return mv, true
			}
		} else if cur == sl.s {
			return g.changeMove(st, n, sl.d, sl.s)
		}
	}
	return Move{}, false
}

// hardFocus 存在硬安全松弛时优先处理硬实例的概率
const hardFocus = 0.8

// instanceMove 在某个正松弛实例覆盖的日期上做改班、交换或连续两天互换
func (g *NeighborhoodGenerator) instanceMove(st *state) (Move, bool) {
	var hard, soft []int
	for _, n := range g.space.nurses {
		if hardSlack(&st.rows[n]) > 0 {
			hard = append(hard, n)
		} else if st.rows[n].Sum() > 0 {
			soft = append(soft, n)
		}
	}
	onlyHard := len(hard) > 0 && (len(soft) == 0 || g.rng.Float64() < hardFocus)
	candidates := hard
	if !onlyHard {
		candidates = append(soft, hard...)
	}
	if len(candidates) == 0 {
		return Move{}, false
	}
	n := candidates[g.rng.Intn(len(candidates))]
	ins := st.nurseInstances(n)
	if onlyHard {
		kept := ins[:0]
		for _, in := range ins {
			if IsHardFamily(in.Family) {
				kept = append(kept, in)
			}
		}
		ins = kept
	}
	if len(ins) == 0 {
		return Move{}, false
	}
	in := ins[g.rng.Intn(len(ins))]
	var days []int
	for d := in.Start; d <= in.End; d++ {
		if g.space.Contains(n, d) {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return Move{}, false
	}
	d := days[g.rng.Intn(len(days))]
	switch g.rng.Intn(4) {
	case 0:
		return g.changeMove(st, n, d, -1)
	case 1:
		if mv, ok := g.daySwapMove(st, n, d); ok {
			return mv, true
		}
	case 2:
		if mv, ok := g.blockSwapMove(st, n, d); ok {
			return mv, true
		}
	}
	if mv, ok := g.swapMove(st, n, d); ok {
		return mv, true
	}
	return g.changeMove(st, n, d, -1)
}

// preferenceMove 把某单元格换成偏好系数更高的班次，优先同日交换保持覆盖
func (g *NeighborhoodGenerator) preferenceMove(st *state) (Move, bool) {
	m := st.m
	for try := 0; try < 8; try++ {
		c := g.space.cells[g.rng.Intn(len(g.space.cells))]
		cur := st.grid.Get(c.n, c.d)
		best, bestS := m.coef[c.n][c.d][cur], -1
		for _, s := range m.domain[c.n][c.d] {
			if v := m.coef[c.n][c.d][s]; v > best {
				best, bestS = v, s
			}
		}
		if bestS < 0 {
			continue
		}
		nurses := g.space.byDay[c.d]
		start := g.rng.Intn(len(nurses))
		for i := range nurses {
			o := nurses[(start+i)%len(nurses)]
			if o != c.n && st.grid.Get(o, c.d) == bestS && m.Allows(o, c.d, cur) {
				var mv Move
				mv.Type = MoveSwap
				mv.add(c.n, c.d, cur, bestS)
				mv.add(o, c.d, bestS, cur)
				return mv, true
			}
		}
		var mv Move
		mv.Type = MoveChange
		mv.add(c.n, c.d, cur, bestS)
		return mv, true
	}
	return Move{}, false
}

// changeMove 把 (n, d) 改为域内另一个值；n<0 时随机选单元格，avoid>=0 时不选该值
func (g *NeighborhoodGenerator) changeMove(st *state, n, d, avoid int) (Move, bool) {
	if n < 0 {
		c := g.space.cells[g.rng.Intn(len(g.space.cells))]
		n, d = c.n, c.d
	}
	dom := st.m.domain[n][d]
	cur := st.grid.Get(n, d)
	start := g.rng.Intn(len(dom))
	for i := range dom {
		v := dom[(start+i)%len(dom)]
		if v != cur && v != avoid {
			var mv Move
			mv.Type = MoveChange
			mv.add(n, d, cur, v)
			return mv, true
		}
	}
	return Move{}, false
}

// swapMove 同一天两名护士交换班次；n<0 时随机选择
func (g *NeighborhoodGenerator) swapMove(st *state, n, d int) (Move, bool) {
	if n < 0 {
		c := g.space.cells[g.rng.Intn(len(g.space.cells))]
		n, d = c.n, c.d
	}
	nurses := g.space.byDay[d]
	if len(nurses) < 2 {
		return Move{}, false
	}
	m := st.m
	a := st.grid.Get(n, d)
	start := g.rng.Intn(len(nurses))
	for i := range nurses {
		o := nurses[(start+i)%len(nurses)]
		b := st.grid.Get(o, d)
		if o == n || a == b || !m.Allows(n, d, b) || !m.Allows(o, d, a) {
			continue
		}
		var mv Move
		mv.Type = MoveSwap
		mv.add(n, d, a, b)
		mv.add(o, d, b, a)
		return mv, true
	}
	return Move{}, false
}

// daySwapMove 同一护士两天交换班次；n<0 时随机选择
func (g *NeighborhoodGenerator) daySwapMove(st *state, n, d int) (Move, bool) {
	if n < 0 {
		c := g.space.cells[g.rng.Intn(len(g.space.cells))]
		n, d = c.n, c.d
	}
	days := g.space.byNurse[n]
	if len(days) < 2 {
		return Move{}, false
	}
	m := st.m
	a := st.grid.Get(n, d)
	for try := 0; try < 4; try++ {
		e := days[g.rng.Intn(len(days))]
		b := st.grid.Get(n, e)
		if e == d || a == b || !m.Allows(n, d, b) || !m.Allows(n, e, a) {
			continue
		}
		var mv Move
		mv.Type = MoveDaySwap
		mv.add(n, d, a, b)
		mv.add(n, e, b, a)
		return mv, true
	}
	return Move{}, false
}

// blockSwapMove 护士 n 与另一名护士交换 d 及相邻一天的班次
func (g *NeighborhoodGenerator) blockSwapMove(st *state, n, d int) (Move, bool) {
	e := d + 1
	if g.rng.Intn(2) == 0 {
		e = d - 1
	}
	if e < 0 || e >= g.space.days || !g.space.Contains(n, e) {
		return Move{}, false
	}
	nurses := g.space.byDay[d]
	if len(nurses) < 2 {
		return Move{}, false
	}
	m := st.m
	a1, a2 := st.grid.Get(n, d), st.grid.Get(n, e)
	start := g.rng.Intn(len(nurses))
	for i := range nurses {
		o := nurses[(start+i)%len(nurses)]
		if o == n || !g.space.Contains(o, e) {
			continue
		}
		b1, b2 := st.grid.Get(o, d), st.grid.Get(o, e)
		if a1 == b1 && a2 == b2 {
			continue
		}
		if !m.Allows(n, d, b1) || !m.Allows(n, e, b2) || !m.Allows(o, d, a1) || !m.Allows(o, e, a2) {
			continue
		}
		var mv Move
		mv.Type = MoveBlockSwap
		mv.add(n, d, a1, b1)
		mv.add(n, e, a2, b2)
		mv.add(o, d, b1, a1)
		mv.add(o, e, b2, a2)
		return mv, true
	}
	return Move{}, false
}
