package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint/builtin"
	"github.com/paiban/nurseroster/pkg/validator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newProblem 7 名护士、D1/E1/N1 的小病房，n1 在 6 月 20 日离职
func newProblem(t *testing.T, mutate func(*model.RosterConfig)) *Problem {
	t.Helper()
	cfg := model.DefaultRosterConfig()
	cfg.DailyShiftRequirements = map[model.ShiftCode]int{
		model.ShiftDay:     1,
		model.ShiftEvening: 1,
		model.ShiftNight:   1,
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())

	month, err := model.NewMonth(2025, 6)
	require.NoError(t, err)
	nurses, err := model.ParseNurses([]model.NurseRecord{
		{NurseID: "n0", Experience: 10, Sequence: 0},
		{NurseID: "n1", Experience: 7, Sequence: 1, ResignationDate: "2025-06-20"},
		{NurseID: "n2", Experience: 5, Sequence: 2},
		{NurseID: "n3", Experience: 3, Sequence: 3},
		{NurseID: "n4", Experience: 2, Sequence: 4},
		{NurseID: "n5", Experience: 1, Sequence: 5},
		{NurseID: "n6", Experience: 4, Sequence: 6, IsNightNurse: true},
	})
	require.NoError(t, err)
	index := model.NewNurseIndex(nurses)

	prefs, pairs := preference.NewBuilder(cfg, index, month.Days()).Build(&preference.Requests{
		Off: map[string]map[int]float64{"n2": {10: 0}},
	})
	locks, err := validator.BuildLocks(cfg, month, nurses, index)
	require.NoError(t, err)

	return &Problem{
		RunID:  "test",
		Config: cfg,
		Month:  month,
		Nurses: nurses,
		Prefs:  prefs,
		Pairs:  pairs,
		Locks:  locks,
	}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.TimeLimit = 3 * time.Second
	opts.MinStageTime = 200 * time.Millisecond
	opts.Workers = 2
	return opts
}

func hardSafety(t *testing.T, p *Problem, r *model.Roster) int {
	t.Helper()
	ctx := constraint.NewContext(p.Config, p.Month, p.Nurses, r)
	return builtin.NewSafetyManager(p.Config).HardCount(ctx)
}

// 在职期外为 Unassigned，在职期内恰好一个班次
func assertWellFormed(t *testing.T, p *Problem, r *model.Roster) {
	t.Helper()
	for n, nurse := range p.Nurses {
		first, last, ok := nurse.ActiveWindow(p.Month)
		for d := 0; d < p.Month.Days(); d++ {
			v := r.Get(n, d)
			if !ok || d < first || d > last {
				assert.Equal(t, model.Unassigned, v, "nurse %d day %d", n, d)
				continue
			}
			assert.True(t, v >= 0 && v < p.Config.NumShifts(), "nurse %d day %d", n, d)
			if nurse.IsNightNurse {
				code := p.Config.Code(v)
				assert.True(t, code == model.ShiftNight || code == model.ShiftOff, "夜班专职护士 %d 第%d天: %s", n, d, code)
			}
		}
	}
}

func TestStagedSolver_Solve(t *testing.T) {
	p := newProblem(t, func(c *model.RosterConfig) {
		c.FixedCells = []model.FixedCell{
			{NurseIndex: 0, DayIndex: 0, Shift: "N"},
			{NurseIndex: 3, DayIndex: 15, Shift: "O"},
		}
	})
	locks, err := validator.BuildLocks(p.Config, p.Month, p.Nurses, model.NewNurseIndex(p.Nurses))
	require.NoError(t, err)
	p.Locks = locks

	res, err := NewStagedSolver(fastOptions()).Solve(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, res.Roster)

	assert.Equal(t, model.StatusSuccess, res.Status, res.Message)
	assert.Equal(t, int64(0), res.Evaluation.Short)
	assert.Equal(t, 0, hardSafety(t, p, res.Roster))
	assertWellFormed(t, p, res.Roster)

	n := p.Config.MustIndex(model.ShiftNight)
	assert.Equal(t, n, res.Roster.Get(0, 0), "固定单元格不被修改")
	assert.Equal(t, p.Config.OffIndex(), res.Roster.Get(3, 15))

	require.Len(t, res.Stages, 3)
	assert.Equal(t, "coverage", res.Stages[0].Stage)
	assert.Equal(t, "safety", res.Stages[1].Stage)
	assert.Equal(t, "preference", res.Stages[2].Stage)
	assert.Equal(t, 100.0, res.Statistics.FillRate)
	assert.True(t, res.Success())
}

func TestStagedSolver_NonRegression(t *testing.T) {
	p := newProblem(t, nil)
	res, err := NewStagedSolver(fastOptions()).Solve(context.Background(), p)
	require.NoError(t, err)

	// 偏好阶段从安全阶段的结果出发，安全松弛总和不会增加
	if !res.Stages[2].Fallback && !res.Stages[1].Fallback {
		assert.LessOrEqual(t, int64(res.Evaluation.SafetySum), res.Stages[1].Objective)
	}
	assert.Equal(t, int64(0), res.Evaluation.Short)
}

func TestStagedSolver_EmptyDomain(t *testing.T) {
	p := newProblem(t, nil)
	p.Locks.Forbid(6, 4, p.Config.MustIndex(model.ShiftNight))
	p.Locks.Forbid(6, 4, p.Config.OffIndex())

	res, err := NewStagedSolver(fastOptions()).Solve(context.Background(), p)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNoFeasibleSolution))
	assert.Equal(t, model.StatusFailure, res.Status)
	assert.Empty(t, res.Stages)
}

func TestStagedSolver_NoActiveNurses(t *testing.T) {
	p := newProblem(t, nil)
	left, _ := time.Parse(model.DateLayout, "2025-05-01")
	for _, n := range p.Nurses {
		n.ResignationDate = &left
	}

	res, err := NewStagedSolver(fastOptions()).Solve(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoFeasibleSolution, apperrors.GetCode(err))
	assert.Equal(t, model.StatusFailure, res.Status)
}

func TestStagedSolver_Cancelled(t *testing.T) {
	p := newProblem(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewStagedSolver(fastOptions()).Solve(ctx, p)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StatusFailure, res.Status)
}

func TestStagedSolver_Hint(t *testing.T) {
	p := newProblem(t, nil)
	greedy, err := NewGreedySolver().Solve(context.Background(), p)
	require.NoError(t, err)

	p.Hint = greedy.Roster
	res, err := NewStagedSolver(fastOptions()).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Evaluation.Hard, greedy.Evaluation.Hard)
}

func TestLegacySolver_Solve(t *testing.T) {
	p := newProblem(t, nil)
	opts := fastOptions()
	opts.TimeLimit = 2 * time.Second

	res, err := NewLegacySolver(opts).Solve(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, res.Stages, 1)
	assert.Equal(t, "legacy", res.Stages[0].Stage)
	assert.NotEqual(t, model.StatusFailure, res.Status)
	assertWellFormed(t, p, res.Roster)
}

func TestGreedySolver_Solve(t *testing.T) {
	p := newProblem(t, nil)
	res, err := NewGreedySolver().Solve(context.Background(), p)
	require.NoError(t, err)

	assertWellFormed(t, p, res.Roster)
	assert.Equal(t, 0, hardSafety(t, p, res.Roster), "每次分配都经过硬安全规则检查")
	assert.Equal(t, 0, res.Statistics.Iterations)
	assert.Positive(t, res.Statistics.TotalAssignments)
	// 每天每班次最多补足需求
	for d := 0; d < p.Month.Days(); d++ {
		for s := 0; s < p.Config.NumShifts(); s++ {
			if req := p.Config.RequirementMatrix(p.Month)[d][s]; req > 0 {
				assert.LessOrEqual(t, res.Roster.CountOn(d, s), req)
			}
		}
	}
}

func TestGreedyCandidates_Order(t *testing.T) {
	p := newProblem(t, nil)
	d := p.Config.MustIndex(model.ShiftDay)
	p.Prefs.Set(4, 2, d, 9)
	m, err := buildModel(p, 0)
	require.NoError(t, err)

	r := m.NewRoster()
	for n := range p.Nurses {
		for day := 0; day < p.Month.Days(); day++ {
			if m.Allows(n, day, p.Config.OffIndex()) {
				r.Set(n, day, p.Config.OffIndex())
			}
		}
	}
	assigned := make([]int, len(p.Nurses))
	assigned[0] = 5

	got := greedyCandidates(p, m, r, 2, d, assigned)
	require.NotEmpty(t, got)
	assert.Equal(t, 4, got[0], "偏好高者优先")
	assert.Equal(t, 0, got[len(got)-1], "分配多者靠后")
	assert.NotContains(t, got, 6, "夜班专职不能上白班")
}

func TestNew(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, "staged", New("", opts).Name())
	assert.Equal(t, "legacy", New("legacy", opts).Name())
	assert.Equal(t, "greedy", New("greedy", opts).Name())
}

func TestOptions_StageBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.TimeLimit = 10 * time.Second
	assert.InDelta(t, float64(4500*time.Millisecond), float64(opts.stageBudget(0)), 1)
	assert.InDelta(t, float64(3500*time.Millisecond), float64(opts.stageBudget(1)), 1)
	assert.InDelta(t, float64(2*time.Second), float64(opts.stageBudget(2)), 1)

	opts.TimeLimit = time.Second
	assert.Equal(t, opts.MinStageTime, opts.stageBudget(2))
}
