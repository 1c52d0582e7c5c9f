package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/model"
)

func setup(t *testing.T, mutate func(*model.RosterConfig)) (*model.RosterConfig, model.Month, []*model.Nurse, *model.NurseIndex) {
	t.Helper()
	cfg := model.DefaultRosterConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())

	month, err := model.NewMonth(2025, 3)
	require.NoError(t, err)

	nurses, err := model.ParseNurses([]model.NurseRecord{
		{NurseID: "n0", Sequence: 0},
		{NurseID: "n1", Sequence: 1},
		{NurseID: "n2", Sequence: 2, IsNightNurse: true},
		{NurseID: "n3", Sequence: 3, ResignationDate: "2025-03-10"},
	})
	require.NoError(t, err)
	return cfg, month, nurses, model.NewNurseIndex(nurses)
}

func TestBuildLocks_FixedCells(t *testing.T) {
	cfg, month, nurses, idx := setup(t, func(c *model.RosterConfig) {
		c.FixedCells = []model.FixedCell{
			{NurseIndex: 0, DayIndex: 0, Shift: "D"},
			{NurseIndex: 1, DayIndex: 0, Shift: "D"},
			{NurseIndex: 1, DayIndex: 3, Shift: "OFF"},
		}
	})

	locks, err := BuildLocks(cfg, month, nurses, idx)
	require.NoError(t, err)

	d := cfg.MustIndex(model.ShiftDay)
	assert.Equal(t, 3, locks.NumFixed())
	assert.Equal(t, 2, locks.FixedCount(0, d))

	s, ok := locks.Fixed(1, 3)
	assert.True(t, ok)
	assert.Equal(t, cfg.OffIndex(), s)

	assert.True(t, locks.Allowed(0, 0, d))
	assert.False(t, locks.Allowed(0, 0, cfg.OffIndex()), "固定单元格只能取固定班次")
	assert.Empty(t, locks.Warnings)

	roster := model.NewRoster(len(nurses), month.Days(), cfg.NumShifts())
	locks.Apply(roster)
	assert.Equal(t, d, roster.Get(0, 0))
	assert.Equal(t, model.Unassigned, roster.Get(0, 1))
}

func TestBuildLocks_ForbiddenConflict(t *testing.T) {
	conflicting := func(override bool) func(*model.RosterConfig) {
		return func(c *model.RosterConfig) {
			c.FixedCells = []model.FixedCell{{NurseIndex: 0, DayIndex: 0, Shift: "N"}}
			c.InitialConstraints = &model.InitialConstraints{
				Forbidden: map[string]map[int][]model.ShiftCode{
					"n0": {0: {model.ShiftNight}},
				},
			}
			c.AllowOverrideByLaw = override
		}
	}

	t.Run("不允许覆盖时报锁定冲突", func(t *testing.T) {
		cfg, month, nurses, idx := setup(t, conflicting(false))
		locks, err := BuildLocks(cfg, month, nurses, idx)
		require.Error(t, err)
		assert.Nil(t, locks)
		assert.True(t, apperrors.Is(err, apperrors.CodeLockConflict))
	})

	t.Run("允许覆盖时法规优先", func(t *testing.T) {
		cfg, month, nurses, idx := setup(t, conflicting(true))
		locks, err := BuildLocks(cfg, month, nurses, idx)
		require.NoError(t, err)

		n := cfg.MustIndex(model.ShiftNight)
		assert.False(t, locks.IsFixed(0, 0), "冲突的固定应被丢弃")
		assert.True(t, locks.IsForbidden(0, 0, n))
		require.Len(t, locks.Warnings, 1)
		assert.Equal(t, ConflictForbidden, locks.Warnings[0].Type)
	})
}

func TestBuildLocks_ForcedOffConflict(t *testing.T) {
	conflicting := func(override bool) func(*model.RosterConfig) {
		return func(c *model.RosterConfig) {
			c.FixedCells = []model.FixedCell{{NurseIndex: 1, DayIndex: 1, Shift: "E"}}
			c.InitialConstraints = &model.InitialConstraints{
				ForcedOff: map[string][]int{"n1": {0, 1}},
			}
			c.AllowOverrideByLaw = override
		}
	}

	cfg, month, nurses, idx := setup(t, conflicting(false))
	_, err := BuildLocks(cfg, month, nurses, idx)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLockConflict, apperrors.GetCode(err))

	cfg, month, nurses, idx = setup(t, conflicting(true))
	locks, err := BuildLocks(cfg, month, nurses, idx)
	require.NoError(t, err)
	for _, d := range []int{0, 1} {
		s, ok := locks.Fixed(1, d)
		assert.True(t, ok)
		assert.Equal(t, cfg.OffIndex(), s, "第%d天应强制休息", d+1)
	}
}

func TestBuildLocks_ForcedOffBeatsForbiddenOff(t *testing.T) {
	cfg, month, nurses, idx := setup(t, func(c *model.RosterConfig) {
		c.InitialConstraints = &model.InitialConstraints{
			ForcedOff: map[string][]int{"n0": {0}},
			Forbidden: map[string]map[int][]model.ShiftCode{"n0": {0: {model.ShiftOff, model.ShiftDay}}},
		}
	})

	locks, err := BuildLocks(cfg, month, nurses, idx)
	require.NoError(t, err)
	s, ok := locks.Fixed(0, 0)
	assert.True(t, ok)
	assert.Equal(t, cfg.OffIndex(), s)
	assert.False(t, locks.IsForbidden(0, 0, cfg.OffIndex()))
	assert.True(t, locks.IsForbidden(0, 0, cfg.MustIndex(model.ShiftDay)))
}

func TestBuildLocks_Warnings(t *testing.T) {
	cfg, month, nurses, idx := setup(t, func(c *model.RosterConfig) {
		c.FixedCells = []model.FixedCell{
			{NurseIndex: 9, DayIndex: 0, Shift: "D"},  // 护士越界
			{NurseIndex: 0, DayIndex: 40, Shift: "D"}, // 日越界
			{NurseIndex: 0, DayIndex: 1, Shift: "X"},  // 代码无效
			{NurseIndex: 3, DayIndex: 20, Shift: "D"}, // 已离职
			{NurseIndex: 2, DayIndex: 2, Shift: "D"},  // 夜班专职，保留
		}
		c.InitialConstraints = &model.InitialConstraints{
			ForcedOff: map[string][]int{"ghost": {0}},
		}
	})

	locks, err := BuildLocks(cfg, month, nurses, idx)
	require.NoError(t, err)

	types := make(map[ConflictType]int)
	for _, w := range locks.Warnings {
		types[w.Type]++
		assert.Equal(t, "warning", w.Severity)
	}
	assert.Equal(t, 2, types[ConflictUnknownNurse])
	assert.Equal(t, 2, types[ConflictOutOfRange])
	assert.Equal(t, 1, types[ConflictInvalidShift])
	assert.Equal(t, 1, types[ConflictNightOnly])
	assert.True(t, locks.IsFixed(2, 2), "夜班专职护士的固定按护士长指定保留")
	assert.Equal(t, 1, locks.NumFixed())
}

func TestConflictDetector_DetectAll(t *testing.T) {
	cfg, month, nurses, _ := setup(t, nil)
	locks := NewLocks(len(nurses), month.Days())
	d, n := cfg.MustIndex(model.ShiftDay), cfg.MustIndex(model.ShiftNight)
	locks.Pin(0, 0, d)
	locks.Forbid(1, 0, n)

	roster := model.NewRoster(len(nurses), month.Days(), cfg.NumShifts())
	locks.Apply(roster)
	roster.Set(1, 0, d)

	detector := NewConflictDetector(cfg, locks)
	assert.Empty(t, detector.DetectAll(roster, nurses))

	roster.Set(0, 0, cfg.OffIndex())
	roster.Set(1, 0, n)
	conflicts := detector.DetectAll(roster, nurses)
	require.Len(t, conflicts, 2)
	assert.Equal(t, ConflictPinChanged, conflicts[0].Type)
	assert.Equal(t, ConflictForbidUsed, conflicts[1].Type)
	assert.Equal(t, "n1", conflicts[1].NurseID)
}

func TestLocks_Clone(t *testing.T) {
	locks := NewLocks(2, 3)
	locks.Pin(0, 1, 2)
	c := locks.Clone()
	c.Unpin(0, 1)

	assert.True(t, locks.IsFixed(0, 1))
	assert.False(t, c.IsFixed(0, 1))
}
