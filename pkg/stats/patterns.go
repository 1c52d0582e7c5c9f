package stats

import (
	"fmt"
	"math"

	"github.com/paiban/nurseroster/pkg/model"
)

// RunStats 各护士某班次最长连续天数的分布
type RunStats struct {
	Max    int     `json:"max"`
	Avg    float64 `json:"avg"`
	StdDev float64 `json:"std_dev"`
}

// PatternMetrics 班次模式
type PatternMetrics struct {
	Runs        map[string]RunStats `json:"runs"`          // 按班次代码
	MaxWorkRun  int                 `json:"max_work_run"`  // 最长连续上班天数
	AvgWorkRun  float64             `json:"avg_work_run"`  // 连续上班段的平均长度
	MaxNightRun int                 `json:"max_night_run"` // 最长连续夜班
	Transitions map[string]int      `json:"transitions"`   // "D->E" 形式的次日转换计数
}

// PatternAnalyzer 班次模式分析器
type PatternAnalyzer struct{}

// NewPatternAnalyzer 创建班次模式分析器
func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{}
}

// Analyze 统计连续班次与班次转换
func (p *PatternAnalyzer) Analyze(in *Input) *PatternMetrics {
	cfg := in.Config
	r := in.Roster
	metrics := &PatternMetrics{
		Runs:        make(map[string]RunStats),
		Transitions: make(map[string]int),
	}
	for _, a := range cfg.ShiftTypes {
		for _, b := range cfg.ShiftTypes {
			metrics.Transitions[TransitionKey(a, b)] = 0
		}
	}

	longest := make([][]float64, cfg.NumShifts())
	workRuns, workTotal := 0, 0
	for n := 0; n < r.NumNurses(); n++ {
		row := r.Row(n)
		for s := 0; s < cfg.NumShifts(); s++ {
			longest[s] = append(longest[s], float64(longestRun(row, func(v int) bool { return v == s })))
		}
		for _, run := range runs(row, func(v int) bool { return isWork(in, v) }) {
			workRuns++
			workTotal += run
			metrics.MaxWorkRun = max(metrics.MaxWorkRun, run)
		}
		for d := 0; d+1 < len(row); d++ {
			if row[d] < 0 || row[d+1] < 0 {
				continue
			}
			metrics.Transitions[TransitionKey(cfg.Code(row[d]), cfg.Code(row[d+1]))]++
		}
	}

	for s, values := range longest {
		metrics.Runs[string(cfg.Code(s))] = runStats(values)
	}
	if workRuns > 0 {
		metrics.AvgWorkRun = round(float64(workTotal)/float64(workRuns), 2)
	}
	if n, ok := cfg.Index(model.ShiftNight); ok {
		metrics.MaxNightRun = metrics.Runs[string(cfg.Code(n))].Max
	}
	return metrics
}

// TransitionKey 转换矩阵的键
func TransitionKey(from, to model.ShiftCode) string {
	return fmt.Sprintf("%s->%s", from, to)
}

// runs 满足 match 的连续段长度
func runs(row []int, match func(int) bool) []int {
	var out []int
	cur := 0
	for _, v := range row {
		if match(v) {
			cur++
			continue
		}
		if cur > 0 {
			out = append(out, cur)
		}
		cur = 0
	}
	if cur > 0 {
		out = append(out, cur)
	}
	return out
}

func longestRun(row []int, match func(int) bool) int {
	best := 0
	for _, r := range runs(row, match) {
		best = max(best, r)
	}
	return best
}

func runStats(values []float64) RunStats {
	if len(values) == 0 {
		return RunStats{}
	}
	sum, top := 0.0, 0.0
	for _, v := range values {
		sum += v
		top = math.Max(top, v)
	}
	mean := sum / float64(len(values))
	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return RunStats{
		Max:    int(top),
		Avg:    round(mean, 2),
		StdDev: round(math.Sqrt(sq/float64(len(values))), 2),
	}
}
