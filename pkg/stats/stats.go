// Package stats 提供排班统计分析功能
// 满意度、覆盖、公平性与班次模式均从完成的排班矩阵计算，不修改排班
package stats

import (
	"github.com/shopspring/decimal"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
)

// Input 分析所需的排班与偏好
// Prefs、Pairs 可以为空，此时满意度按无请求处理
type Input struct {
	Config *model.RosterConfig
	Month  model.Month
	Nurses []*model.Nurse
	Roster *model.Roster
	Prefs  *preference.Matrix
	Pairs  *preference.PairSet
}

// Report 排班分析报告
type Report struct {
	Month        string               `json:"month"`
	Status       model.Status         `json:"status,omitempty"`
	Satisfaction *SatisfactionMetrics `json:"satisfaction"`
	Preceptors   []PreceptorOverlap   `json:"preceptors"`
	Coverage     *CoverageMetrics     `json:"coverage"`
	Fairness     *FairnessMetrics     `json:"fairness"`
	Patterns     *PatternMetrics      `json:"patterns"`
}

// Analyze 计算完整报告
func Analyze(in *Input) *Report {
	if in == nil || in.Config == nil || in.Roster == nil {
		return &Report{}
	}
	sat := NewSatisfactionAnalyzer()
	return &Report{
		Month:        in.Month.String(),
		Satisfaction: sat.Analyze(in),
		Preceptors:   sat.PreceptorOverlap(in),
		Coverage:     NewCoverageAnalyzer().Analyze(in),
		Fairness:     NewFairnessAnalyzer().Analyze(in),
		Patterns:     NewPatternAnalyzer().Analyze(in),
	}
}

var hundred = decimal.NewFromInt(100)

// percent 百分比，保留两位小数；分母为0时视为 100%
func percent(part, total int) float64 {
	if total == 0 {
		return 100
	}
	return decimal.NewFromInt(int64(part)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// activeDays 护士在本月在职的日索引集合，超出排班天数的部分截断
func activeDays(in *Input, n int) (first, last int, ok bool) {
	if n >= len(in.Nurses) {
		return 0, -1, false
	}
	first, last, ok = in.Nurses[n].ActiveWindow(in.Month)
	if !ok {
		return
	}
	last = min(last, in.Roster.NumDays()-1)
	return first, last, first <= last
}

func isWork(in *Input, v int) bool {
	return v >= 0 && v != in.Config.OffIndex()
}

// SameShift 两名护士当天是否排在同一班次，同为休息也算
// 未分配的单元格不算
func SameShift(r *model.Roster, a, b, d int) bool {
	va := r.Get(a, d)
	return va >= 0 && va == r.Get(b, d)
}
