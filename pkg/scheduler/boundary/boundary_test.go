package boundary

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/nurseroster/pkg/model"
)

func codes(s string) []string { return strings.Split(s, "") }

func seq(s string) []model.ShiftCode {
	out := make([]model.ShiftCode, 0, len(s))
	for _, c := range s {
		out = append(out, model.ShiftCode(string(c)))
	}
	return out
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		name string
		tail string
		want TailMetrics
	}{
		{"空序列", "", TailMetrics{}},
		{"五连班", "ODDEEN", TailMetrics{ConsecutiveWorkTail: 5, ConsecutiveNightTail: 1, LastDayShift: "N"}},
		{"三连夜未休", "ODENNN", TailMetrics{ConsecutiveWorkTail: 5, ConsecutiveNightTail: 3, LastDayShift: "N"}},
		{"三连夜休一天", "DENNNO", TailMetrics{ConsecutiveNightTail: 3, LastDayShift: "O", OffsAfterTailNights: 1}},
		{"休息上限为2", "NNOOOO", TailMetrics{ConsecutiveNightTail: 2, LastDayShift: "O", OffsAfterTailNights: 2}},
		{"空单元格打断连续", "DD-DDE", TailMetrics{ConsecutiveWorkTail: 3, LastDayShift: "E"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Metrics(seq(tt.tail))); diff != "" {
				t.Errorf("Metrics(%q) mismatch (-want +got):\n%s", tt.tail, diff)
			}
		})
	}
}

func newBuilder(t *testing.T, mutate func(*model.RosterConfig)) *Builder {
	t.Helper()
	cfg := model.DefaultRosterConfig()
	cfg.ShiftAliases = map[string]model.ShiftCode{"D8": model.ShiftDay}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Normalize())
	return NewBuilder(cfg, 0)
}

func TestBuilder_Tail(t *testing.T) {
	b := newBuilder(t, nil)
	got := b.Tail([]string{"D", "D", "D8", "off", "X", "N", "E", "N"})
	assert.Equal(t, []model.ShiftCode{"D", "O", "-", "N", "E", "N"}, got)
}

func TestBuilder_Build(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*model.RosterConfig)
		prev      string
		forcedOff []int
		forbidden map[int][]model.ShiftCode
	}{
		{
			name:      "三连夜未休强制两天休息",
			prev:      "DOONNN",
			forcedOff: []int{0, 1},
			forbidden: map[int][]model.ShiftCode{0: {"D", "E", "N"}},
		},
		{
			name:      "三连夜已休两天",
			prev:      "ONNNOO",
			forcedOff: nil,
		},
		{
			name:      "三连夜休一天补一天",
			prev:      "DONNNO",
			forcedOff: []int{0},
		},
		{
			name:      "两连夜默认不要求恢复",
			prev:      "DDOONN",
			forbidden: map[int][]model.ShiftCode{0: {"D", "E"}},
		},
		{
			name:      "开启两连夜恢复",
			mutate:    func(c *model.RosterConfig) { c.TwoOffsAfterTwoNig = true },
			prev:      "DDOONN",
			forcedOff: []int{0, 1},
			forbidden: map[int][]model.ShiftCode{0: {"D", "E"}},
		},
		{
			name:      "连续工作达上限",
			prev:      "ODDDEE",
			forcedOff: []int{0},
			forbidden: map[int][]model.ShiftCode{0: {"D"}},
		},
		{
			name:   "小夜班结尾但未禁止 E→D",
			mutate: func(c *model.RosterConfig) { c.BannedDayAfterEve = false },
			prev:   "OODDEE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, tt.mutate)
			res := b.Build(map[string][]string{"x": codes("DDDDDDDDDDDDDDDDDDDDDDDD" + tt.prev)}, []string{"x", "y"})

			assert.Equal(t, tt.forcedOff, res.Constraints.ForcedOff["x"])
			if tt.forbidden == nil {
				assert.Nil(t, res.Constraints.Forbidden["x"])
			} else {
				assert.Equal(t, tt.forbidden, res.Constraints.Forbidden["x"])
			}
			_, hasY := res.Metrics["y"]
			assert.False(t, hasY, "没有上月数据的护士不生成指标")
		})
	}
}

func TestMerge(t *testing.T) {
	dst := &model.InitialConstraints{
		ForcedOff: map[string][]int{"a": {1}},
		Forbidden: map[string]map[int][]model.ShiftCode{"a": {0: {"D"}}},
	}
	src := &model.InitialConstraints{
		ForcedOff: map[string][]int{"a": {0, 1}, "b": {0}},
		Forbidden: map[string]map[int][]model.ShiftCode{"a": {0: {"D", "E"}}},
	}

	got := Merge(dst, src)
	assert.Equal(t, []int{0, 1}, got.ForcedOff["a"])
	assert.Equal(t, []int{0}, got.ForcedOff["b"])
	assert.Equal(t, []model.ShiftCode{"D", "E"}, got.Forbidden["a"][0])

	assert.NotNil(t, Merge(nil, nil))
}
