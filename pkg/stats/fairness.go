package stats

import (
	"math"
	"sort"

	"github.com/paiban/nurseroster/pkg/model"
)

// FairnessMetrics 公平性指标
type FairnessMetrics struct {
	// 工作量公平性（以工作班次数计）
	WorkloadGini      float64 `json:"workload_gini"`        // 工作量基尼系数 (0=完全公平, 1=完全不公平)
	WorkloadVariance  float64 `json:"workload_variance"`    // 工作量方差
	WorkloadStdDev    float64 `json:"workload_std_dev"`     // 工作量标准差
	AvgShiftsPerNurse float64 `json:"avg_shifts_per_nurse"` // 人均工作班次
	MaxShifts         float64 `json:"max_shifts"`
	MinShifts         float64 `json:"min_shifts"`
	ShiftsRange       float64 `json:"shifts_range"`

	// 班次类型公平性
	ShiftTypeDistribution map[string]float64 `json:"shift_type_distribution"` // 各班次类型占工作班次的比例 (%)
	ShiftGini             map[string]float64 `json:"shift_gini"`              // 各班次类型在护士间的基尼系数
	ShiftCV               map[string]float64 `json:"shift_cv"`                // 各班次类型的变异系数
	NightShiftGini        float64            `json:"night_shift_gini"`
	WeekendShiftGini      float64            `json:"weekend_shift_gini"`

	// 周末每天上班人数
	WeekendStaffing map[string]int `json:"weekend_staffing"`

	// 护士级别统计
	NurseStats []NurseStat `json:"nurse_stats"`

	// 综合评分
	OverallFairnessScore float64 `json:"overall_fairness_score"` // 综合公平性评分 (0-100)
}

// NurseStat 护士统计
type NurseStat struct {
	NurseID       string         `json:"nurse_id"`
	Name          string         `json:"name"`
	WorkShifts    int            `json:"work_shifts"`
	ShiftCounts   map[string]int `json:"shift_counts"`
	NightShifts   int            `json:"night_shifts"`
	WeekendShifts int            `json:"weekend_shifts"`
	OffDays       int            `json:"off_days"`
	Deviation     float64        `json:"deviation"` // 与平均值的偏差百分比
}

// FairnessAnalyzer 公平性分析器
type FairnessAnalyzer struct {
	nightCode model.ShiftCode
}

// NewFairnessAnalyzer 创建公平性分析器
func NewFairnessAnalyzer() *FairnessAnalyzer {
	return &FairnessAnalyzer{nightCode: model.ShiftNight}
}

// Analyze 分析排班公平性
// 只统计本月有在职日的护士
func (f *FairnessAnalyzer) Analyze(in *Input) *FairnessMetrics {
	cfg := in.Config
	nurseStats := f.calculateNurseStats(in)
	if len(nurseStats) == 0 {
		return &FairnessMetrics{
			ShiftTypeDistribution: make(map[string]float64),
			ShiftGini:             make(map[string]float64),
			ShiftCV:               make(map[string]float64),
			WeekendStaffing:       make(map[string]int),
			OverallFairnessScore:  100,
		}
	}

	workloads := make([]float64, len(nurseStats))
	weekendShifts := make([]float64, len(nurseStats))
	for i, stat := range nurseStats {
		workloads[i] = float64(stat.WorkShifts)
		weekendShifts[i] = float64(stat.WeekendShifts)
	}

	// 计算基本统计量
	avg := f.calculateMean(workloads)
	variance := f.calculateVariance(workloads, avg)
	stdDev := math.Sqrt(variance)
	maxShifts, minShifts := f.calculateRange(workloads)

	for i := range nurseStats {
		if avg > 0 {
			nurseStats[i].Deviation = round((float64(nurseStats[i].WorkShifts)-avg)/avg*100, 2)
		}
	}

	// 各班次类型的基尼系数与变异系数
	shiftGini := make(map[string]float64)
	shiftCV := make(map[string]float64)
	for _, s := range cfg.WorkShifts() {
		code := string(cfg.Code(s))
		counts := make([]float64, len(nurseStats))
		for i, stat := range nurseStats {
			counts[i] = float64(stat.ShiftCounts[code])
		}
		shiftGini[code] = round(f.calculateGini(counts), 4)
		if mean := f.calculateMean(counts); mean > 0 {
			shiftCV[code] = round(math.Sqrt(f.calculateVariance(counts, mean))/mean, 4)
		} else {
			shiftCV[code] = 0
		}
	}

	workloadGini := f.calculateGini(workloads)
	nightGini := shiftGini[string(f.nightCode)]
	weekendGini := f.calculateGini(weekendShifts)

	return &FairnessMetrics{
		WorkloadGini:          round(workloadGini, 4),
		WorkloadVariance:      round(variance, 4),
		WorkloadStdDev:        round(stdDev, 4),
		AvgShiftsPerNurse:     round(avg, 2),
		MaxShifts:             maxShifts,
		MinShifts:             minShifts,
		ShiftsRange:           maxShifts - minShifts,
		ShiftTypeDistribution: f.calculateShiftTypeDistribution(nurseStats),
		ShiftGini:             shiftGini,
		ShiftCV:               shiftCV,
		NightShiftGini:        nightGini,
		WeekendShiftGini:      round(weekendGini, 4),
		WeekendStaffing:       f.calculateWeekendStaffing(in),
		NurseStats:            nurseStats,
		OverallFairnessScore:  round(f.calculateOverallScore(workloadGini, nightGini, weekendGini, stdDev, avg), 2),
	}
}

// calculateNurseStats 计算护士统计数据
func (f *FairnessAnalyzer) calculateNurseStats(in *Input) []NurseStat {
	cfg := in.Config
	off := cfg.OffIndex()
	var result []NurseStat

	for n, nurse := range in.Nurses {
		if n >= in.Roster.NumNurses() {
			break
		}
		first, last, ok := activeDays(in, n)
		if !ok {
			continue
		}
		stat := NurseStat{NurseID: nurse.DBID, Name: nurse.Name, ShiftCounts: make(map[string]int)}
		for _, s := range cfg.WorkShifts() {
			stat.ShiftCounts[string(cfg.Code(s))] = 0
		}
		for d := first; d <= last; d++ {
			v := in.Roster.Get(n, d)
			switch {
			case v < 0:
				continue
			case v == off:
				stat.OffDays++
				continue
			}
			code := cfg.Code(v)
			stat.WorkShifts++
			stat.ShiftCounts[string(code)]++
			if code == f.nightCode {
				stat.NightShifts++
			}
			if in.Month.IsWeekend(d) {
				stat.WeekendShifts++
			}
		}
		result = append(result, stat)
	}

	// 按工作量排序
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].WorkShifts > result[j].WorkShifts
	})

	return result
}

// calculateMean 计算平均值
func (f *FairnessAnalyzer) calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateVariance 计算方差
func (f *FairnessAnalyzer) calculateVariance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

// calculateRange 计算极值
func (f *FairnessAnalyzer) calculateRange(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

// calculateGini 计算基尼系数
func (f *FairnessAnalyzer) calculateGini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	// 排序
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	gini := 0.0
	for i, v := range sorted {
		gini += (2*float64(i+1) - float64(n) - 1) * v
	}

	gini = gini / (float64(n) * sum)
	return math.Max(0, math.Min(1, gini))
}

// calculateShiftTypeDistribution 计算班次类型分布
func (f *FairnessAnalyzer) calculateShiftTypeDistribution(stats []NurseStat) map[string]float64 {
	typeCounts := make(map[string]int)
	total := 0
	for _, stat := range stats {
		for code, c := range stat.ShiftCounts {
			typeCounts[code] += c
			total += c
		}
	}

	distribution := make(map[string]float64, len(typeCounts))
	for code, count := range typeCounts {
		if total > 0 {
			distribution[code] = percent(count, total)
		} else {
			distribution[code] = 0
		}
	}
	return distribution
}

// calculateWeekendStaffing 周末每天上班人数
func (f *FairnessAnalyzer) calculateWeekendStaffing(in *Input) map[string]int {
	out := make(map[string]int)
	for _, d := range in.Month.Weekends() {
		if d >= in.Roster.NumDays() {
			break
		}
		working := 0
		for n := 0; n < in.Roster.NumNurses(); n++ {
			if isWork(in, in.Roster.Get(n, d)) {
				working++
			}
		}
		out[in.Month.Date(d).Format(model.DateLayout)] = working
	}
	return out
}

// calculateOverallScore 计算综合公平性评分
func (f *FairnessAnalyzer) calculateOverallScore(workloadGini, nightGini, weekendGini, stdDev, avg float64) float64 {
	// 各项权重
	const (
		workloadWeight = 0.4
		nightWeight    = 0.25
		weekendWeight  = 0.25
		stdDevWeight   = 0.1
	)

	// 基尼系数转换为分数 (0=100分, 1=0分)
	workloadScore := (1 - workloadGini) * 100
	nightScore := (1 - nightGini) * 100
	weekendScore := (1 - weekendGini) * 100

	// 变异系数越低分数越高
	cvScore := 100.0
	if avg > 0 {
		cv := stdDev / avg
		cvScore = math.Max(0, 100-cv*200)
	}

	score := workloadWeight*workloadScore +
		nightWeight*nightScore +
		weekendWeight*weekendScore +
		stdDevWeight*cvScore

	return math.Max(0, math.Min(100, score))
}

// CompareRosters 比较同一输入下两个排班方案的公平性，差值为 other - in.Roster
func (f *FairnessAnalyzer) CompareRosters(in *Input, other *model.Roster) map[string]float64 {
	metrics1 := f.Analyze(in)
	alt := *in
	alt.Roster = other
	metrics2 := f.Analyze(&alt)

	return map[string]float64{
		"workload_gini_diff":    metrics2.WorkloadGini - metrics1.WorkloadGini,
		"night_gini_diff":       metrics2.NightShiftGini - metrics1.NightShiftGini,
		"weekend_gini_diff":     metrics2.WeekendShiftGini - metrics1.WeekendShiftGini,
		"overall_score_diff":    metrics2.OverallFairnessScore - metrics1.OverallFairnessScore,
		"roster1_overall_score": metrics1.OverallFairnessScore,
		"roster2_overall_score": metrics2.OverallFairnessScore,
	}
}
