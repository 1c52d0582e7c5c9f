package optimizer

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/validator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	cfg    *model.RosterConfig
	month  model.Month
	nurses []*model.Nurse
	index  *model.NurseIndex
	prefs  *preference.Matrix
	pairs  *preference.PairSet
	locks  *validator.Locks
}

// newFixture 6 名护士、D1/E1/N1 的小病房
func newFixture(t *testing.T, mutate func(*model.RosterConfig)) *fixture {
	t.Helper()
	cfg := model.DefaultRosterConfig()
	cfg.DailyShiftRequirements = map[model.ShiftCode]int{
		model.ShiftDay:     1,
		model.ShiftEvening: 1,
		model.ShiftNight:   1,
	}
	cfg.GlobalMonthlyOffDays = 2
	cfg.StandardPersonalOffDays = 6
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())

	month, err := model.NewMonth(2025, 6)
	require.NoError(t, err)

	nurses, err := model.ParseNurses([]model.NurseRecord{
		{NurseID: "n0", Experience: 8, Sequence: 0},
		{NurseID: "n1", Experience: 6, Sequence: 1},
		{NurseID: "n2", Experience: 4, Sequence: 2},
		{NurseID: "n3", Experience: 2, Sequence: 3},
		{NurseID: "n4", Experience: 1, Sequence: 4},
		{NurseID: "n5", Experience: 5, Sequence: 5, IsNightNurse: true},
	})
	require.NoError(t, err)
	index := model.NewNurseIndex(nurses)

	b := preference.NewBuilder(cfg, index, month.Days())
	prefs, pairs := b.Build(&preference.Requests{
		Off: map[string]map[int]float64{
			"n0": {5: 0, 6: 0},
			"n3": {12: 0},
		},
		Shift: map[string]map[model.ShiftCode]map[int]float64{
			"n1": {model.ShiftDay: {3: 0, 4: 0}},
		},
		Pairs: []preference.PairInput{
			{NurseID: "n0", TargetID: "n1", Kind: preference.PairTogether},
			{NurseID: "n2", TargetID: "n3", Kind: preference.PairApart},
		},
	})

	return &fixture{
		cfg:    cfg,
		month:  month,
		nurses: nurses,
		index:  index,
		prefs:  prefs,
		pairs:  pairs,
		locks:  validator.NewLocks(len(nurses), month.Days()),
	}
}

func (f *fixture) model(t *testing.T, mode Mode) *Model {
	t.Helper()
	m, err := NewModel(Input{
		Config: f.cfg,
		Month:  f.month,
		Nurses: f.nurses,
		Prefs:  f.prefs,
		Pairs:  f.pairs,
		Locks:  f.locks,
		Mode:   mode,
	})
	require.NoError(t, err)
	return m
}

func TestScaled(t *testing.T) {
	tests := []struct {
		v, factor float64
		want      int64
	}{
		{4.1, 100, 410},
		{0.29, 100, 29},
		{-1.5, 100, -150},
		{3, 2.5 * 100, 750},
		{1.999, 100, 199},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scaled(tt.v, tt.factor), "scaled(%v, %v)", tt.v, tt.factor)
	}
}

func TestLegacyFactors(t *testing.T) {
	staffing, boost := legacyFactors(0.8)
	assert.InDelta(t, 1280, staffing, 1e-9)
	assert.InDelta(t, 0.8+1.7*0.0894427191, boost, 1e-6)

	staffing, boost = legacyFactors(0.99)
	assert.Equal(t, 10000.0, staffing)
	assert.Equal(t, 0.5, boost)

	// 下限 0.05
	low, _ := legacyFactors(0)
	assert.InDelta(t, 2000*0.05*0.05, low, 1e-9)
}

func TestNewModel_Domains(t *testing.T) {
	f := newFixture(t, nil)
	d := f.cfg.MustIndex(model.ShiftDay)
	n := f.cfg.MustIndex(model.ShiftNight)
	off := f.cfg.OffIndex()

	f.locks.Pin(0, 0, d)
	f.locks.Forbid(1, 2, n)
	m := f.model(t, ModeStaged)

	assert.Equal(t, []int{d}, m.Domain(0, 0))
	assert.False(t, m.Movable(0, 0))
	assert.False(t, m.Allows(1, 2, n))
	assert.True(t, m.Allows(1, 2, off))

	// 夜班专职只能上 N 或休息
	assert.ElementsMatch(t, []int{n, off}, m.Domain(5, 10))
	assert.Equal(t, 0, m.Need(0, d), "固定单元格计入需求")
	assert.Equal(t, 1, m.Requirement(0, d))
}

func TestNewModel_EmptyDomain(t *testing.T) {
	f := newFixture(t, nil)
	f.locks.Forbid(5, 3, f.cfg.MustIndex(model.ShiftNight))
	f.locks.Forbid(5, 3, f.cfg.OffIndex())

	_, err := NewModel(Input{Config: f.cfg, Month: f.month, Nurses: f.nurses, Locks: f.locks})
	require.Error(t, err)
	var empty *EmptyDomainError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "n5", empty.Nurse)
	assert.Equal(t, 3, empty.Day)
}

func TestNewModel_Coefficients(t *testing.T) {
	f := newFixture(t, nil)
	off := f.cfg.OffIndex()
	d := f.cfg.MustIndex(model.ShiftDay)
	n := f.cfg.MustIndex(model.ShiftNight)

	staged := f.model(t, ModeStaged)
	assert.Equal(t, int64(1000), staged.coef[0][4][off], "OFF 基础权重 10")
	assert.Equal(t, int64(500), staged.coef[1][2][d])
	assert.Equal(t, int64(0), staged.coef[2][2][d])
	require.Len(t, staged.pairs, 2)

	legacy := f.model(t, ModeLegacy)
	_, boost := legacyFactors(0.8)
	assert.Greater(t, legacy.coef[0][4][off], staged.coef[0][4][off])
	assert.Equal(t, int64(500*boost), legacy.coef[5][0][n], "夜班专职的 N 奖励")
	assert.Equal(t, int64(1280*1.2), legacy.shortCost[n])
	assert.Equal(t, int64(400), legacy.expCost)

	assert.Greater(t, staged.MaxScore(), int64(0))
}

func TestNewModel_PreceptorBonus(t *testing.T) {
	f := newFixture(t, nil)
	b := preference.NewBuilder(f.cfg, f.index, f.month.Days())
	b.AddPairs(f.pairs, []preference.PairInput{{
		NurseID:  "n2",
		TargetID: "n4",
		Weight:   f.cfg.PairPreferenceWeight * 2.5,
		Kind:     preference.PairTogether,
		Source:   preference.SourcePreceptor,
	}})
	d := f.cfg.MustIndex(model.ShiftDay)
	for day := 0; day < 20; day++ {
		f.prefs.Set(2, day, d, 1)
		f.prefs.Set(4, day, d, 1)
	}

	m := f.model(t, ModeStaged)
	params := f.cfg.Preceptor()
	require.Len(t, m.bonus, params.TopDays)
	for i, bt := range m.bonus {
		assert.Equal(t, d, bt.shift)
		assert.Equal(t, scaled(7.5, preferenceScale*params.Strength), bt.weight)
		if i > 0 {
			assert.Less(t, bt.day, m.bonus[i-1].day, "同分时按日期倒序")
		}
	}
}

// 随机修改后增量状态与重新构建的状态一致
func TestState_IncrementalMatchesFresh(t *testing.T) {
	f := newFixture(t, nil)
	for _, mode := range []Mode{ModeStaged, ModeLegacy} {
		m := f.model(t, mode)
		baseline := m.PinsFrom(m.NewRoster()).Instances
		st := newState(m, m.NewRoster(), baseline)
		space := NewMoveSpace(m, nil)
		gen := NewNeighborhoodGenerator(space, rand.New(rand.NewSource(7)))

		for i := 0; i < 2000; i++ {
			mv, ok := gen.Generate(st, StagePreference)
			require.True(t, ok)
			mv.apply(st)
			if i%3 == 0 {
				mv.undo(st)
			}
		}

		fresh := newState(m, st.grid, baseline)
		assert.Equal(t, fresh.short, st.short)
		assert.Equal(t, fresh.over, st.over)
		assert.Equal(t, fresh.shortBy, st.shortBy)
		assert.Equal(t, fresh.expShort, st.expShort)
		assert.Equal(t, fresh.pref, st.pref)
		assert.Equal(t, fresh.pair, st.pair)
		assert.Equal(t, fresh.fam, st.fam)
		assert.Equal(t, fresh.newTot, st.newTot)
		assert.True(t, fresh.grid.Equal(st.grid))
	}
}

func TestMove_ApplyUndo(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	st := newState(m, m.NewRoster(), nil)
	before := st.grid.Clone()
	energy := Objective{Stage: StageCoverage}.Energy(st)

	var mv Move
	mv.Type = MoveDaySwap
	d := f.cfg.MustIndex(model.ShiftDay)
	mv.add(0, 1, st.grid.Get(0, 1), d)
	mv.add(0, 2, st.grid.Get(0, 2), d)
	mv.apply(st)
	assert.Equal(t, d, st.grid.Get(0, 1))
	assert.Less(t, Objective{Stage: StageCoverage}.Energy(st), energy)

	mv.undo(st)
	assert.True(t, before.Equal(st.grid))
	assert.Equal(t, energy, Objective{Stage: StageCoverage}.Energy(st))
}

func TestMoveSpace_Filter(t *testing.T) {
	f := newFixture(t, nil)
	f.locks.Pin(1, 1, f.cfg.OffIndex())
	m := f.model(t, ModeStaged)

	sp := NewMoveSpace(m, func(n, d int) bool { return n < 2 && d < 3 })
	assert.Equal(t, 5, sp.Size())
	assert.True(t, sp.Contains(0, 2))
	assert.False(t, sp.Contains(1, 1), "固定单元格不可移动")
	assert.False(t, sp.Contains(2, 0))
}

func TestObjective(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	st := newState(m, m.NewRoster(), nil)

	// 全部休息：每天 3 个缺口
	days := int64(f.month.Days())
	cov := Objective{Stage: StageCoverage}
	assert.Equal(t, 3*days*shortWeight, cov.Energy(st))
	assert.Equal(t, 3*days, st.short)
	assert.Equal(t, 3*days, st.hard())

	pins := m.PinsFrom(st.grid)
	safety := Objective{Stage: StageSafety, Pins: pins}
	weighted := (hardFamilyWeight-1)*hardSlack(&st.fam) + int64(st.fam.Sum())
	assert.True(t, safety.Feasible(st))
	assert.Equal(t, weighted, safety.Energy(st))

	pref := Objective{Stage: StagePreference, Pins: pins}
	assert.True(t, pref.Feasible(st))
	assert.Equal(t, -st.score(), pref.Energy(st))
	assert.Equal(t, -m.MaxScore(), pref.LowerBound(m))

	// 新增缺员违反第二阶段上界
	tight := pins
	tight.Short = pins.Short - 1
	assert.False(t, Objective{Stage: StageSafety, Pins: tight}.Feasible(st))
	assert.Equal(t, big+weighted, Objective{Stage: StageSafety, Pins: tight}.Energy(st))
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t, func(c *model.RosterConfig) {
		c.GlobalMonthlyOffDays = 0
		c.StandardPersonalOffDays = 0
	})
	m := f.model(t, ModeStaged)
	rows := [][]string{
		codes("DDDDOODDDDOODDDDOODDDDOODDDDOO"),
		codes("EEEEOOEEEEOOEEEEOOEEEEOOEEEEOO"),
		codes("OONNNOOONNNOOONNNOOONNNOOONNNO"),
		codes("OOOOOOOOOOOOOOOOOOOOOOOOOOOOOO"),
		codes("OOOOOOOOOOOOOOOOOOOOOOOOOOOOOO"),
		codes("NNOOOONNOOOONNOOOONNOOOONNOOOO"),
	}
	r, err := model.RosterFromCodes(f.cfg, rows, f.month.Days())
	require.NoError(t, err)

	ev := m.Evaluate(r)
	assert.Positive(t, ev.Short)
	assert.Equal(t, ev.Short+int64(hardSum(ev)), ev.Hard)
	assert.Equal(t, ev.Pref+ev.Pair-expShortWeight*ev.ExpShort, ev.Score)
}

func hardSum(ev Evaluation) int {
	total := 0
	for f, v := range ev.Families {
		if IsHardFamily(constraint.Family(f)) {
			total += v
		}
	}
	return total
}

func TestTabuList(t *testing.T) {
	tl := NewTabuList(3)
	for i := uint64(1); i <= 3; i++ {
		tl.Add(i)
	}
	assert.Equal(t, 3, tl.Len())
	tl.Add(2)
	assert.Equal(t, 3, tl.Len(), "重复添加不占位")

	tl.Add(4)
	assert.False(t, tl.Contains(1), "最旧的条目被淘汰")
	assert.True(t, tl.Contains(4))

	tl.Clear()
	assert.Equal(t, 0, tl.Len())
	assert.False(t, tl.Contains(4))
}

func TestMoveKey(t *testing.T) {
	assert.Equal(t, moveKey(1, 2, 3), moveKey(1, 2, 3))
	assert.NotEqual(t, moveKey(1, 2, 3), moveKey(2, 1, 3))
	assert.NotEqual(t, moveKey(1, 2, 3), moveKey(1, 2, 0))
}

func TestBoltzmannProbability(t *testing.T) {
	assert.Equal(t, 1.0, boltzmannProbability(-5, 10))
	assert.Equal(t, 0.0, boltzmannProbability(5, 0))
	assert.InDelta(t, 0.3679, boltzmannProbability(10, 10), 1e-4)
}

func TestRelativeGap(t *testing.T) {
	tests := []struct {
		name          string
		energy, bound int64
		want          float64
	}{
		{"零能量零下界", 0, 0, 0},
		{"按能量绝对值归一", 5, 0, 1},
		{"能量绝对值小于 1 时按 1", 1, 0, 1},
		{"负能量", -900, -1000, 100.0 / 900},
		{"达到下界", -1000, -1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, relativeGap(tt.energy, tt.bound), 1e-9)
		})
	}
}

func TestLocalSearch_Coverage(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)

	cfg := &OptimizationConfig{
		MaxTime:          5 * time.Second,
		InitialTemp:      2,
		FinalTemp:        0.05,
		TabuSize:         20,
		NeighborhoodSize: 3,
		Seed:             3,
	}
	obj := Objective{Stage: StageCoverage}
	sol := NewLocalSearchOptimizer(cfg, 0).Optimize(context.Background(), m, m.NewRoster(), obj, NewMoveSpace(m, nil))

	assert.Equal(t, int64(0), sol.Evaluation.Short)
	assert.Equal(t, int64(0), sol.Energy)
	assert.Equal(t, "gap", sol.StopReason)
	assert.True(t, sol.Feasible)
}

func TestLocalSearch_EmptySpace(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	sp := NewMoveSpace(m, func(int, int) bool { return false })

	sol := NewLocalSearchOptimizer(DefaultOptConfig(), 0).Optimize(context.Background(), m, m.NewRoster(), Objective{Stage: StageCoverage}, sp)
	assert.Equal(t, "empty", sol.StopReason)
	assert.Equal(t, 0, sol.Iterations)
}

func TestLocalSearch_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol := NewLocalSearchOptimizer(DefaultOptConfig(), 0).Optimize(ctx, m, m.NewRoster(), Objective{Stage: StageCoverage}, NewMoveSpace(m, nil))
	assert.Equal(t, "cancelled", sol.StopReason)
	require.NotNil(t, sol.Roster)
}

// 平台期：有时间上限时扰动重启并一直搜索到时间用完，只按迭代数运行时才停止
func TestLocalSearch_Plateau(t *testing.T) {
	// 需求超过人数，缺员永远不为 0，间隙停不下来
	f := newFixture(t, func(c *model.RosterConfig) {
		c.DailyShiftRequirements = map[model.ShiftCode]int{
			model.ShiftDay:     3,
			model.ShiftEvening: 3,
			model.ShiftNight:   3,
		}
	})
	m := f.model(t, ModeStaged)

	tests := []struct {
		name         string
		maxTime      time.Duration
		maxIter      int
		wantStop     string
		wantRestarts bool
	}{
		{"有时间上限", 400 * time.Millisecond, 0, "time", true},
		{"只按迭代数", 0, 200000, "plateau", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &OptimizationConfig{
				MaxIterations:    tt.maxIter,
				MaxTime:          tt.maxTime,
				TabuSize:         20,
				NeighborhoodSize: 3,
				StopOnPlateau:    true,
				PlateauThreshold: 300,
				Seed:             7,
			}
			began := time.Now()
			sol := NewLocalSearchOptimizer(cfg, 0).Optimize(context.Background(), m, m.NewRoster(), Objective{Stage: StageCoverage}, NewMoveSpace(m, nil))

			assert.Equal(t, tt.wantStop, sol.StopReason)
			assert.Equal(t, tt.wantRestarts, sol.Restarts > 0)
			assert.Positive(t, sol.Evaluation.Short)
			if tt.maxTime > 0 {
				assert.GreaterOrEqual(t, time.Since(began), tt.maxTime)
			}
		})
	}
}

// 更长的时间上限不应得到更差的安全阶段结果
func TestLocalSearch_LongerBudgetNotWorse(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	space := NewMoveSpace(m, nil)

	covCfg := &OptimizationConfig{MaxTime: 2 * time.Second, TabuSize: 20, NeighborhoodSize: 3, Seed: 5}
	cov := NewLocalSearchOptimizer(covCfg, 0).Optimize(context.Background(), m, m.NewRoster(), Objective{Stage: StageCoverage}, space)
	obj := Objective{Stage: StageSafety, Pins: m.PinsFrom(cov.Roster)}

	run := func(limit time.Duration) *Solution {
		cfg := &OptimizationConfig{MaxTime: limit, TabuSize: 20, NeighborhoodSize: 3, StopOnPlateau: true, PlateauThreshold: 2000, Seed: 9}
		return NewLocalSearchOptimizer(cfg, 0).Optimize(context.Background(), m, cov.Roster, obj, space)
	}
	short, long := run(300*time.Millisecond), run(1500*time.Millisecond)
	require.True(t, long.Feasible)
	if long.StopReason != "gap" {
		assert.Equal(t, "time", long.StopReason)
	}
	assert.LessOrEqual(t, long.Evaluation.Hard, short.Evaluation.Hard)
}

// 安全阶段不得让覆盖退化
func TestLocalSearch_SafetyKeepsCoverage(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	space := NewMoveSpace(m, nil)

	cfg := &OptimizationConfig{MaxTime: 2 * time.Second, InitialTemp: 2, FinalTemp: 0.05, TabuSize: 20, NeighborhoodSize: 3, Seed: 5}
	cov := NewLocalSearchOptimizer(cfg, 0).Optimize(context.Background(), m, m.NewRoster(), Objective{Stage: StageCoverage}, space)

	pins := m.PinsFrom(cov.Roster)
	cfg.MaxIterations = 20000
	cfg.GapLimit = 0
	safe := NewLocalSearchOptimizer(cfg, 0).Optimize(context.Background(), m, cov.Roster, Objective{Stage: StageSafety, Pins: pins}, space)

	require.True(t, safe.Feasible)
	assert.LessOrEqual(t, safe.Evaluation.Short, pins.Short)
	assert.LessOrEqual(t, safe.Evaluation.Over, pins.Over)
	start := Objective{Stage: StageSafety, Pins: pins}.Energy(newState(m, cov.Roster, nil))
	assert.LessOrEqual(t, safe.Energy, start)
}

func TestParallelOptimizer(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)

	cfg := &OptimizationConfig{
		MaxIterations:    3000,
		TabuSize:         20,
		NeighborhoodSize: 2,
		ParallelWorkers:  3,
		Seed:             11,
	}
	run := func() *Solution {
		sol, err := NewParallelOptimizer(cfg).Optimize(context.Background(), m, m.NewRoster(), Objective{Stage: StageCoverage}, NewMoveSpace(m, nil))
		require.NoError(t, err)
		return sol
	}
	a, b := run(), run()
	assert.Equal(t, a.Energy, b.Energy)
	assert.Equal(t, a.Worker, b.Worker)
	assert.True(t, a.Roster.Equal(b.Roster), "同种子结果可复现")
}

func TestBetter(t *testing.T) {
	feasible := &Solution{Feasible: true, Energy: 10, Worker: 2}
	infeasible := &Solution{Feasible: false, Energy: 1, Worker: 0}
	assert.True(t, better(feasible, infeasible))
	assert.True(t, better(&Solution{Feasible: true, Energy: 10, Worker: 1}, feasible))
	assert.False(t, better(&Solution{Feasible: true, Energy: 11, Worker: 0}, feasible))
}

func TestWeightedSample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		out := weightedSample(rng, []float64{0, 1, 0, 5, 2}, 3)
		assert.ElementsMatch(t, []int{1, 3, 4}, out)
	}
	assert.Len(t, weightedSample(rng, []float64{0, 1}, 2), 1, "零权重不会被抽中")
}

func TestPolicy(t *testing.T) {
	cfg := DefaultPolicyConfig()
	p := NewPolicy(cfg, []int{0, 2, 4, 6, 8}, 10, rand.New(rand.NewSource(2)))

	nurses, days := p.Select()
	assert.Len(t, nurses, cfg.WindowNurses)
	assert.Len(t, days, cfg.WindowDays)
	for _, n := range nurses {
		assert.Equal(t, 0, n%2, "只选候选护士")
	}
	assert.InDelta(t, 0.3*0.995, p.Epsilon(), 1e-12)

	p.Update(true, []int{2}, []int{3})
	assert.Equal(t, 3.0, p.nurseW[1])
	assert.Equal(t, 3.0, p.dayW[3])
	for i := 0; i < 5; i++ {
		p.Update(false, []int{4}, []int{5})
	}
	assert.Equal(t, cfg.MinWeight, p.nurseW[2])
	assert.Equal(t, cfg.MinWeight, p.dayW[5])

	for i := 0; i < 2000; i++ {
		p.Select()
	}
	assert.Equal(t, cfg.EpsilonEnd, p.Epsilon())
}

func TestLNS_NeverWorse(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)

	cfg := DefaultLNSConfig()
	cfg.MaxIterations = 6
	cfg.IterationTime = 200 * time.Millisecond
	cfg.StopOnFeasible = false

	for _, usePolicy := range []bool{false, true} {
		cfg.UsePolicy = usePolicy
		start := m.NewRoster()
		res, err := NewLNS(m, cfg, nil).Run(context.Background(), start)
		require.NoError(t, err)

		assert.Equal(t, cfg.MaxIterations, res.Iterations)
		assert.LessOrEqual(t, res.FinalHard, res.InitialHard)
		if res.FinalHard == res.InitialHard {
			assert.GreaterOrEqual(t, res.FinalScore, res.InitialScore)
		}
		ev := m.Evaluate(res.Roster)
		assert.Equal(t, res.FinalHard, ev.Hard)
		assert.Equal(t, res.FinalScore, ev.Score)
	}
}

func TestLNS_StopsWhenFeasible(t *testing.T) {
	f := newFixture(t, func(c *model.RosterConfig) {
		c.DailyShiftRequirements = map[model.ShiftCode]int{}
		c.RequiredExperiencedNurses = 0
		c.GlobalMonthlyOffDays = 0
		c.StandardPersonalOffDays = 0
	})
	m := f.model(t, ModeStaged)

	res, err := NewLNS(m, DefaultLNSConfig(), nil).Run(context.Background(), m.NewRoster())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.InitialHard)
	assert.Equal(t, 0, res.Iterations)
}

func TestLNS_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewLNS(m, DefaultLNSConfig(), nil).Run(ctx, m.NewRoster())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res.Roster)
}

func TestLNS_SelectWindow(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	l := NewLNS(m, DefaultLNSConfig(), nil)
	st := newState(m, m.NewRoster(), nil)

	// 全部休息时没有未满足的休息请求，窗口由随机补足
	for iter := 0; iter < 3; iter++ {
		_, nurses, days := l.selectWindow(st, iter)
		assert.Len(t, nurses, 5)
		assert.Len(t, days, 7)
	}

	// 缺员存在时偶数次迭代取违规窗口
	strategy, _, days := l.selectWindow(st, 0)
	assert.Equal(t, StrategyViolations, strategy)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, days)

	d := f.cfg.MustIndex(model.ShiftDay)
	st.set(0, 4, d)
	strategy, nurses, days := l.selectWindow(st, 3)
	assert.Equal(t, StrategyOffNurses, strategy)
	assert.Contains(t, nurses, 0)
	assert.Contains(t, days, 4)
	assert.Contains(t, days, 5)

	strategy, nurses, days = l.selectWindow(st, 1)
	assert.Equal(t, StrategyOffDays, strategy)
	assert.Contains(t, nurses, 0)
	assert.Contains(t, days, 4)
}

func TestLNS_ViolationWindow(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	l := NewLNS(m, DefaultLNSConfig(), nil)
	st := newState(m, m.NewRoster(), nil)

	// 护士 1 第 10 天夜班、第 11 天白班
	st.set(1, 9, f.cfg.MustIndex(model.ShiftNight))
	st.set(1, 10, f.cfg.MustIndex(model.ShiftDay))
	require.Positive(t, hardSlack(&st.rows[1]))

	nurses, days := l.violationWindow(st)
	assert.Contains(t, nurses, 1)
	assert.Contains(t, days, 9)
	assert.Contains(t, days, 10)
	assert.Len(t, nurses, 5)
	assert.Len(t, days, 7)
}

// 覆盖已满但存在夜班接白班与长连班：修复窗口必须减少硬违规
func TestLNS_ReducesHardViolations(t *testing.T) {
	tests := []struct {
		name  string
		rows  func() [][]string
		limit time.Duration
	}{
		{
			name:  "全部休息",
			rows:  func() [][]string { return nil },
			limit: 200 * time.Millisecond,
		},
		{
			name: "三人轮转",
			rows: func() [][]string {
				return [][]string{
					codes(strings.Repeat("NDE", 10)),
					codes(strings.Repeat("DEN", 10)),
					codes(strings.Repeat("END", 10)),
					codes(strings.Repeat("O", 30)),
					codes(strings.Repeat("O", 30)),
					codes(strings.Repeat("O", 30)),
				}
			},
			limit: 300 * time.Millisecond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			m := f.model(t, ModeStaged)
			start := m.NewRoster()
			if rows := tt.rows(); rows != nil {
				r, err := model.RosterFromCodes(f.cfg, rows, f.month.Days())
				require.NoError(t, err)
				start = r
			}

			cfg := DefaultLNSConfig()
			cfg.MaxIterations = 6
			cfg.IterationTime = tt.limit
			cfg.StopOnFeasible = false
			res, err := NewLNS(m, cfg, nil).Run(context.Background(), start)
			require.NoError(t, err)

			require.Positive(t, res.InitialHard)
			assert.Less(t, res.FinalHard, res.InitialHard)
			assert.Positive(t, res.Accepted)
			assert.Equal(t, res.FinalHard, m.Evaluate(res.Roster).Hard)
		})
	}
}

// 修复目标：硬违规直接计入能量，其余项只受上界约束
func TestObjective_Repair(t *testing.T) {
	f := newFixture(t, nil)
	m := f.model(t, ModeStaged)
	st := newState(m, m.NewRoster(), nil)

	obj := Objective{Stage: StageRepair, Pins: m.PinsFrom(st.grid)}
	assert.True(t, obj.Feasible(st))
	assert.Equal(t, big*st.hard()-st.score(), obj.Energy(st))
	before := obj.Energy(st)

	// 补上一个缺口，能量下降一个 big 量级
	st.set(3, 0, f.cfg.MustIndex(model.ShiftDay))
	assert.Less(t, obj.Energy(st), before-big/2)
	assert.True(t, obj.Feasible(st))

	// 全休时缺员使间隙远离 0，子搜索不会在第 0 次迭代停止
	assert.Greater(t, relativeGap(before, obj.LowerBound(m)), 0.5)
}

func codes(s string) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}
