package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
)

func TestSatisfactionAnalyzer_Analyze(t *testing.T) {
	in := newInput(t, true)
	m := NewSatisfactionAnalyzer().Analyze(in)

	// 权重 2 的休息请求低于阈值，不计入
	assert.Equal(t, Ratio{Satisfied: 1, Total: 2, Rate: 50}, m.Off)
	assert.Equal(t, Ratio{Satisfied: 1, Total: 2, Rate: 50}, m.Shift)
	assert.Equal(t, Ratio{Satisfied: 0, Total: 30, Rate: 0}, m.Together)
	assert.Equal(t, Ratio{Satisfied: 30, Total: 30, Rate: 100}, m.Apart)
	assert.Equal(t, Ratio{Satisfied: 30, Total: 60, Rate: 50}, m.Pair)
	assert.Equal(t, Ratio{Satisfied: 32, Total: 64, Rate: 50}, m.Overall)
	assert.Equal(t, MeaningfulWeight, m.Threshold)

	require.Len(t, m.Nurses, 3)
	n0, n1, n2 := m.Nurses[0], m.Nurses[1], m.Nurses[2]
	assert.Equal(t, "n0", n0.NurseID)
	assert.Equal(t, 0.0, n0.Overall.Rate)
	assert.Equal(t, 32, n0.Overall.Total)

	// 带教注入的配对不计入 n1 的配对请求
	assert.Equal(t, 30, n1.Pair.Total)
	assert.Equal(t, 100.0, n1.Overall.Rate)

	// n2 没有发起配对请求，n1 的请求不会记到 n2 名下
	assert.Equal(t, 0, n2.Pair.Total)
	assert.Equal(t, 100.0, n2.Pair.Rate)
	assert.Equal(t, 1, n2.Off.Satisfied)

	assert.Equal(t, 66.67, m.AverageOverall)
}

func TestSatisfactionAnalyzer_Vacuous(t *testing.T) {
	in := newInput(t, false)
	m := NewSatisfactionAnalyzer().Analyze(in)

	for _, r := range []Ratio{m.Off, m.Shift, m.Pair, m.Overall} {
		assert.Equal(t, 0, r.Total)
		assert.Equal(t, 100.0, r.Rate)
	}
	for _, ns := range m.Nurses {
		assert.Equal(t, 100.0, ns.Overall.Rate, ns.NurseID)
	}
	assert.Equal(t, 100.0, m.AverageOverall)
}

func TestSatisfactionAnalyzer_SkipsUnassigned(t *testing.T) {
	in := newInput(t, true)
	// n0 第 1 天不在排班内时，其休息请求无法满足也不计入
	in.Roster.Set(0, 0, -1)
	m := NewSatisfactionAnalyzer().Analyze(in)
	assert.Equal(t, 0, m.Nurses[0].Off.Total)
}

func TestSatisfactionAnalyzer_PreceptorOverlap(t *testing.T) {
	in := newInput(t, true)
	a := NewSatisfactionAnalyzer()

	got := a.PreceptorOverlap(in)
	require.Len(t, got, 1)
	assert.Equal(t, PreceptorOverlap{MenteeID: "n1", PreceptorID: "n0", BothWorking: 30, SameShift: 0, Rate: 0}, got[0])

	// 让两人前 10 天同上 D
	d := in.Config.MustIndex("D")
	for day := 0; day < 10; day++ {
		in.Roster.Set(1, day, d)
	}
	got = a.PreceptorOverlap(in)
	assert.Equal(t, 10, got[0].SameShift)
	assert.Equal(t, 33.33, got[0].Rate)

	in.Pairs = nil
	assert.Empty(t, a.PreceptorOverlap(in))
}

// 载荷中的低权重休息请求叠加基础权重后仍计为一条请求
func TestSatisfactionAnalyzer_LowWeightPayloadOff(t *testing.T) {
	in := newInput(t, false)
	var payloads map[string]preference.Payload
	require.NoError(t, json.Unmarshal([]byte(`{"n2": {"shift": {"O": {"2": 3}}}}`), &payloads))

	b := preference.NewBuilder(in.Config, model.NewNurseIndex(in.Nurses), in.Month.Days())
	in.Prefs, in.Pairs = b.Build(preference.ParsePayloads(in.Config, payloads))
	require.GreaterOrEqual(t, in.Prefs.Get(2, 1, in.Config.OffIndex()), MeaningfulWeight)

	m := NewSatisfactionAnalyzer().Analyze(in)
	assert.Equal(t, Ratio{Satisfied: 1, Total: 1, Rate: 100}, m.Off)
	assert.Equal(t, Ratio{Satisfied: 1, Total: 1, Rate: 100}, m.Nurses[2].Off)
}

// 同班配对按整月计：两人同为休息的日子也算满足
func TestSatisfactionAnalyzer_TogetherCountsSharedOff(t *testing.T) {
	in := newInput(t, true)
	off := in.Config.OffIndex()
	in.Roster.Set(0, 10, off)
	in.Roster.Set(1, 10, off)

	m := NewSatisfactionAnalyzer().Analyze(in)
	assert.Equal(t, Ratio{Satisfied: 1, Total: 30, Rate: 3.33}, m.Together)
	assert.Equal(t, 1, m.Nurses[0].Pair.Satisfied)
}
