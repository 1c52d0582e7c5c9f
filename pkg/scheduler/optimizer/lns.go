package optimizer

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// LNSConfig 大邻域搜索配置
type LNSConfig struct {
	MaxIterations  int           `json:"max_iterations" yaml:"max_iterations"`
	MaxTime        time.Duration `json:"max_time" yaml:"max_time"`
	IterationTime  time.Duration `json:"iteration_time" yaml:"iteration_time"` // 每次子问题的时间片
	WindowNurses   int           `json:"window_nurses" yaml:"window_nurses"`
	WindowDays     int           `json:"window_days" yaml:"window_days"`
	OffThreshold   float64       `json:"off_threshold" yaml:"off_threshold"` // 高价值休息偏好阈值
	StopOnFeasible bool          `json:"stop_on_feasible" yaml:"stop_on_feasible"`
	UsePolicy      bool          `json:"use_policy" yaml:"use_policy"`
	Policy         PolicyConfig  `json:"policy" yaml:"policy"`
	Seed           int64         `json:"seed" yaml:"seed"`
}

// DefaultLNSConfig 默认配置
func DefaultLNSConfig() LNSConfig {
	return LNSConfig{
		MaxIterations:  10,
		MaxTime:        30 * time.Second,
		IterationTime:  time.Second,
		WindowNurses:   5,
		WindowDays:     7,
		OffThreshold:   4,
		StopOnFeasible: true,
		Policy:         DefaultPolicyConfig(),
		Seed:           1,
	}
}

// 邻域选择策略
const (
	StrategyViolations = "violations" // 硬违规（缺员、硬安全实例）所在的护士与日期
	StrategyOffNurses  = "off_nurses" // 未满足高价值休息偏好最多的护士
	StrategyOffDays    = "off_days"   // 未满足休息偏好的护士最多的日期
	StrategyRandom     = "random"
	StrategyPolicy     = "policy"
)

// LNSResult 大邻域搜索结果
type LNSResult struct {
	Roster       *model.Roster `json:"-"`
	Iterations   int           `json:"iterations"`
	Accepted     int           `json:"accepted"`
	InitialHard  int64         `json:"initial_hard"`
	FinalHard    int64         `json:"final_hard"`
	InitialScore int64         `json:"initial_score"`
	FinalScore   int64         `json:"final_score"`
	Duration     time.Duration `json:"duration"`
}

// LNS 冻结窗口外的单元格，反复重解一个小窗口
// 迭代严格串行：每次的接受/回滚依赖上一次的结果
type LNS struct {
	cfg    LNSConfig
	m      *Model
	rng    *rand.Rand
	log    *logger.SchedulerLogger
	policy *Policy
	active []int
}

// NewLNS 创建大邻域搜索
func NewLNS(m *Model, cfg LNSConfig, log *logger.SchedulerLogger) *LNS {
	if log == nil {
		log = logger.NewSchedulerLogger()
	}
	l := &LNS{
		cfg: cfg,
		m:   m,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: log,
	}
	for n := 0; n < m.numNurses; n++ {
		if m.active[n] {
			l.active = append(l.active, n)
		}
	}
	if cfg.UsePolicy {
		l.policy = NewPolicy(cfg.Policy, l.active, m.numDays, l.rng)
	}
	return l
}

// Run 从 start 出发迭代改进，返回见过的最优排班
func (l *LNS) Run(ctx context.Context, start *model.Roster) (*LNSResult, error) {
	began := time.Now()
	current := newState(l.m, start, nil)
	curHard, curScore := current.hard(), current.score()
	best := current.grid.Clone()
	bestHard, bestScore := curHard, curScore

	res := &LNSResult{InitialHard: curHard, InitialScore: curScore}

	for iter := 0; iter < l.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			res.Roster, res.FinalHard, res.FinalScore = best, bestHard, bestScore
			res.Duration = time.Since(began)
			return res, err
		}
		if l.cfg.MaxTime > 0 && time.Since(began) >= l.cfg.MaxTime {
			break
		}
		if l.cfg.StopOnFeasible && curHard == 0 {
			break
		}
		res.Iterations++

		strategy, nurses, days := l.selectWindow(current, iter)
		inWindow := make(map[cell]bool, len(nurses)*len(days))
		for _, n := range nurses {
			for _, d := range days {
				inWindow[cell{n, d}] = true
			}
		}
		space := NewMoveSpace(l.m, func(n, d int) bool { return inWindow[cell{n, d}] })

		obj := Objective{Stage: StageRepair, Pins: l.m.PinsFrom(current.grid)}
		cfg := &OptimizationConfig{
			MaxTime:          l.cfg.IterationTime,
			TabuSize:         20,
			NeighborhoodSize: 3,
			StopOnPlateau:    true,
			PlateauThreshold: 2000,
			Seed:             l.cfg.Seed + int64(iter)*7919,
		}
		sub := NewLocalSearchOptimizer(cfg, 0).Optimize(ctx, l.m, current.grid, obj, space)

		accepted := false
		if sub.Feasible {
			newHard, newScore := sub.Evaluation.Hard, sub.Evaluation.Score
			if newHard < curHard || (newHard == curHard && newScore > curScore) {
				accepted = true
				current = newState(l.m, sub.Roster, nil)
				curHard, curScore = newHard, newScore
				res.Accepted++
			}
		}
		if l.policy != nil {
			l.policy.Update(accepted, nurses, days)
		}
		if curHard < bestHard || (curHard == bestHard && curScore > bestScore) {
			best.CopyFrom(current.grid)
			bestHard, bestScore = curHard, curScore
		}
		l.log.LNSIteration(iter, strategy, accepted, int(curHard), curScore)
	}

	res.Roster, res.FinalHard, res.FinalScore = best, bestHard, bestScore
	res.Duration = time.Since(began)
	return res, nil
}

// selectWindow 选择本次迭代的护士与日期
// 存在硬违规时偶数次迭代固定取违规窗口
func (l *LNS) selectWindow(st *state, iter int) (string, []int, []int) {
	if st.hard() > 0 && iter%2 == 0 {
		if nurses, days := l.violationWindow(st); len(nurses) > 0 {
			return StrategyViolations, nurses, days
		}
	}
	if l.policy != nil {
		nurses, days := l.policy.Select()
		return StrategyPolicy, nurses, days
	}
	kn := min(l.cfg.WindowNurses, len(l.active))
	kd := min(l.cfg.WindowDays, l.m.numDays)
	unmet, wanted := l.offRequests(st)

	switch iter % 3 {
	case 0:
		// 未满足高价值休息偏好最多的护士及其偏好日期
		ranked := append([]int(nil), l.active...)
		sort.SliceStable(ranked, func(i, j int) bool {
			return len(unmet[ranked[i]]) > len(unmet[ranked[j]])
		})
		var nurses []int
		for _, n := range ranked {
			if len(nurses) == kn || len(unmet[n]) == 0 {
				break
			}
			nurses = append(nurses, n)
		}
		nurses = l.padNurses(nurses, kn)
		daySet := make(map[int]bool)
		for _, n := range nurses {
			for _, d := range wanted[n] {
				daySet[d] = true
			}
		}
		return StrategyOffNurses, nurses, l.padDays(setKeys(daySet), kd)
	case 1:
		// 未满足休息偏好的护士最多的日期
		perDay := make(map[int]int)
		for _, n := range l.active {
			for _, d := range unmet[n] {
				perDay[d]++
			}
		}
		days := setKeys(boolSet(perDay))
		sort.SliceStable(days, func(i, j int) bool { return perDay[days[i]] > perDay[days[j]] })
		if len(days) > kd {
			days = days[:kd]
		}
		chosen := make(map[int]bool, len(days))
		for _, d := range days {
			chosen[d] = true
		}
		nurseSet := make(map[int]bool)
		for _, n := range l.active {
			for _, d := range unmet[n] {
				if chosen[d] {
					nurseSet[n] = true
				}
			}
		}
		return StrategyOffDays, l.padNurses(setKeys(nurseSet), kn), l.padDays(days, kd)
	}
	return StrategyRandom, l.padNurses(nil, kn), l.padDays(nil, kd)
}

// violationWindow 硬安全实例所在的护士及其覆盖日期，加上缺员日
func (l *LNS) violationWindow(st *state) ([]int, []int) {
	kn := min(l.cfg.WindowNurses, len(l.active))
	kd := min(l.cfg.WindowDays, l.m.numDays)
	m := l.m

	var shortDays []int
	for d := 0; d < m.numDays; d++ {
		for s := 0; s < m.numShifts; s++ {
			if short, _ := st.coverageAt(d, s); short > 0 {
				shortDays = append(shortDays, d)
				break
			}
		}
	}

	var ins []constraint.Instance
	for _, n := range l.active {
		if hardSlack(&st.rows[n]) == 0 {
			continue
		}
		for _, in := range st.nurseInstances(n) {
			if IsHardFamily(in.Family) {
				ins = append(ins, in)
			}
		}
	}
	if len(ins) == 0 && len(shortDays) == 0 {
		return nil, nil
	}

	// 以一个随机的违规为中心，窗口内的其余违规尽量一并纳入
	daySet := make(map[int]bool)
	nurseSet := make(map[int]bool)
	var nurses []int
	addNurse := func(n int) {
		if !nurseSet[n] && len(nurses) < kn {
			nurseSet[n] = true
			nurses = append(nurses, n)
		}
	}
	if len(ins) > 0 {
		l.rng.Shuffle(len(ins), func(i, j int) { ins[i], ins[j] = ins[j], ins[i] })
		for _, in := range ins {
			if len(daySet)+in.End-in.Start+1 > kd && len(daySet) > 0 {
				continue
			}
			addNurse(in.Nurse)
			if !nurseSet[in.Nurse] {
				continue
			}
			for d := in.Start; d <= in.End; d++ {
				daySet[d] = true
			}
		}
	}
	for _, d := range shortDays {
		if len(daySet) >= kd {
			break
		}
		daySet[d] = true
	}
	return l.padNurses(nurses, kn), l.padDays(setKeys(daySet), kd)
}

// offRequests 每位护士未满足的和全部的高价值休息偏好日
func (l *LNS) offRequests(st *state) (unmet, wanted map[int][]int) {
	unmet = make(map[int][]int)
	wanted = make(map[int][]int)
	m := l.m
	threshold := scaled(l.cfg.OffThreshold, preferenceScale)
	for _, n := range l.active {
		for d := m.first[n]; d <= m.last[n]; d++ {
			if m.coef[n][d][m.off] < threshold && m.mode == ModeStaged {
				continue
			}
			if m.mode == ModeLegacy && m.coef[n][d][m.off] <= 0 {
				continue
			}
			wanted[n] = append(wanted[n], d)
			if st.grid.Get(n, d) != m.off {
				unmet[n] = append(unmet[n], d)
			}
		}
	}
	return unmet, wanted
}

// padNurses 截断或随机补足到 k 名护士
func (l *LNS) padNurses(nurses []int, k int) []int {
	if len(nurses) > k {
		l.rng.Shuffle(len(nurses), func(i, j int) { nurses[i], nurses[j] = nurses[j], nurses[i] })
		return nurses[:k]
	}
	return padFrom(l.rng, nurses, l.active, k)
}

// padDays 截断或随机补足到 k 天
func (l *LNS) padDays(days []int, k int) []int {
	if len(days) > k {
		l.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
		return days[:k]
	}
	all := make([]int, l.m.numDays)
	for d := range all {
		all[d] = d
	}
	return padFrom(l.rng, days, all, k)
}

func padFrom(rng *rand.Rand, chosen, pool []int, k int) []int {
	in := make(map[int]bool, len(chosen))
	for _, v := range chosen {
		in[v] = true
	}
	var rest []int
	for _, v := range pool {
		if !in[v] {
			rest = append(rest, v)
		}
	}
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	for _, v := range rest {
		if len(chosen) >= k {
			break
		}
		chosen = append(chosen, v)
	}
	return chosen
}

func setKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func boolSet(counts map[int]int) map[int]bool {
	out := make(map[int]bool, len(counts))
	for k := range counts {
		out[k] = true
	}
	return out
}
