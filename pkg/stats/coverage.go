package stats

import (
	"fmt"
	"strings"

	"github.com/paiban/nurseroster/pkg/model"
)

// CoverageMetrics 覆盖率指标
type CoverageMetrics struct {
	// 整体覆盖率
	TotalRequired   int     `json:"total_required"`   // 需求人次
	TotalAssigned   int     `json:"total_assigned"`   // 工作班次人次
	FilledRequired  int     `json:"filled_required"`  // 计入需求的人次（每格不超过需求）
	TotalShortage   int     `json:"total_shortage"`   // 缺员人次
	TotalOver       int     `json:"total_over"`       // 超员人次
	OverallCoverage float64 `json:"overall_coverage"` // 整体覆盖率 (%)

	// 按日期统计
	DailyCoverage []DayCoverage `json:"daily_coverage"`

	// 按班次类型统计
	ShiftTypeCoverage map[string]*ShiftTotals `json:"shift_type_coverage"`

	// 问题识别
	Understaffed   []ShiftCoverage `json:"understaffed"`    // 缺员的 (日, 班次)
	ExperienceGaps []ShiftCoverage `json:"experience_gaps"` // 资深人数不足的 (日, 班次)
}

// DayCoverage 每日覆盖情况
type DayCoverage struct {
	Day          int             `json:"day"` // 1 起
	Date         string          `json:"date"`
	Weekend      bool            `json:"weekend"`
	Required     int             `json:"required"`
	Assigned     int             `json:"assigned"`
	CoverageRate float64         `json:"coverage_rate"`
	Shifts       []ShiftCoverage `json:"shifts"`
}

// ShiftCoverage 某天某班次的实际与需求人数
type ShiftCoverage struct {
	Day         int    `json:"day"`
	Date        string `json:"date"`
	Shift       string `json:"shift"`
	Required    int    `json:"required"`
	Actual      int    `json:"actual"`
	Shortage    int    `json:"shortage"`
	Over        int    `json:"over"`
	Experienced int    `json:"experienced"`
}

// ShiftTotals 某班次类型整月汇总
type ShiftTotals struct {
	Required     int     `json:"required"`
	Actual       int     `json:"actual"`
	Shortage     int     `json:"shortage"`
	Over         int     `json:"over"`
	CoverageRate float64 `json:"coverage_rate"`
}

// CoverageAnalyzer 覆盖率分析器
type CoverageAnalyzer struct {
	checkExperience bool
}

// NewCoverageAnalyzer 创建覆盖率分析器
func NewCoverageAnalyzer() *CoverageAnalyzer {
	return &CoverageAnalyzer{checkExperience: true}
}

// Analyze 分析覆盖率
func (c *CoverageAnalyzer) Analyze(in *Input) *CoverageMetrics {
	cfg := in.Config
	metrics := &CoverageMetrics{
		ShiftTypeCoverage: make(map[string]*ShiftTotals),
		OverallCoverage:   100,
	}
	for _, s := range cfg.WorkShifts() {
		metrics.ShiftTypeCoverage[string(cfg.Code(s))] = &ShiftTotals{}
	}

	req := cfg.RequirementMatrix(in.Month)
	days := min(len(req), in.Roster.NumDays())
	for d := 0; d < days; d++ {
		date := in.Month.Date(d).Format(model.DateLayout)
		day := DayCoverage{Day: d + 1, Date: date, Weekend: in.Month.IsWeekend(d)}
		filled := 0

		for _, s := range cfg.WorkShifts() {
			sc := ShiftCoverage{
				Day:      d + 1,
				Date:     date,
				Shift:    string(cfg.Code(s)),
				Required: req[d][s],
			}
			for n := 0; n < in.Roster.NumNurses(); n++ {
				if in.Roster.Get(n, d) != s {
					continue
				}
				sc.Actual++
				if n < len(in.Nurses) && in.Nurses[n].IsExperienced(cfg) {
					sc.Experienced++
				}
			}
			sc.Shortage = max(0, sc.Required-sc.Actual)
			sc.Over = max(0, sc.Actual-sc.Required)

			day.Required += sc.Required
			day.Assigned += sc.Actual
			filled += min(sc.Actual, sc.Required)
			day.Shifts = append(day.Shifts, sc)

			totals := metrics.ShiftTypeCoverage[sc.Shift]
			totals.Required += sc.Required
			totals.Actual += sc.Actual
			totals.Shortage += sc.Shortage
			totals.Over += sc.Over

			metrics.TotalShortage += sc.Shortage
			metrics.TotalOver += sc.Over
			if sc.Shortage > 0 {
				metrics.Understaffed = append(metrics.Understaffed, sc)
			}
			if c.checkExperience && sc.Required > 0 && sc.Experienced < cfg.RequiredExperiencedNurses {
				metrics.ExperienceGaps = append(metrics.ExperienceGaps, sc)
			}
		}

		day.CoverageRate = percent(filled, day.Required)
		metrics.TotalRequired += day.Required
		metrics.TotalAssigned += day.Assigned
		metrics.FilledRequired += filled
		metrics.DailyCoverage = append(metrics.DailyCoverage, day)
	}

	for _, totals := range metrics.ShiftTypeCoverage {
		totals.CoverageRate = percent(totals.Required-totals.Shortage, totals.Required)
	}
	metrics.OverallCoverage = percent(metrics.FilledRequired, metrics.TotalRequired)
	return metrics
}

// GenerateCoverageReport 生成覆盖率报告
func (c *CoverageAnalyzer) GenerateCoverageReport(metrics *CoverageMetrics) string {
	var b strings.Builder
	b.WriteString("=== 覆盖率分析报告 ===\n\n")

	b.WriteString("【整体覆盖情况】\n")
	fmt.Fprintf(&b, "  需求人次: %d\n", metrics.TotalRequired)
	fmt.Fprintf(&b, "  已分配人次: %d\n", metrics.TotalAssigned)
	fmt.Fprintf(&b, "  覆盖率: %.1f%%\n", metrics.OverallCoverage)
	fmt.Fprintf(&b, "  缺员: %d  超员: %d\n\n", metrics.TotalShortage, metrics.TotalOver)

	if len(metrics.Understaffed) > 0 {
		b.WriteString("【缺员班次】\n")
		for _, sc := range metrics.Understaffed {
			fmt.Fprintf(&b, "  - %s %s (需要%d人，仅有%d人，缺%d人)\n", sc.Date, sc.Shift, sc.Required, sc.Actual, sc.Shortage)
		}
		b.WriteString("\n")
	}

	if len(metrics.ExperienceGaps) > 0 {
		b.WriteString("【资深人数不足】\n")
		for _, sc := range metrics.ExperienceGaps {
			fmt.Fprintf(&b, "  - %s %s (资深%d人)\n", sc.Date, sc.Shift, sc.Experienced)
		}
	}

	return b.String()
}
