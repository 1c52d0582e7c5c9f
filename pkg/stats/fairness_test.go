package stats

import (
	"math"
	"testing"

	"github.com/paiban/nurseroster/pkg/model"
)

func TestFairnessAnalyzer_Analyze(t *testing.T) {
	analyzer := NewFairnessAnalyzer()
	in := newInput(t, false)

	metrics := analyzer.Analyze(in)

	if metrics == nil {
		t.Fatal("Metrics should not be nil")
	}

	// 工作量 30/30/15
	if math.Abs(metrics.WorkloadGini-0.1333) > 1e-9 {
		t.Errorf("Expected workload gini 0.1333, got %f", metrics.WorkloadGini)
	}
	if math.Abs(metrics.NightShiftGini-0.6667) > 1e-9 {
		t.Errorf("Expected night gini 0.6667, got %f", metrics.NightShiftGini)
	}
	if metrics.ShiftsRange != 15 {
		t.Errorf("Expected range 15, got %f", metrics.ShiftsRange)
	}
	if len(metrics.NurseStats) != 3 {
		t.Fatalf("Expected 3 nurse stats, got %d", len(metrics.NurseStats))
	}
	if metrics.NurseStats[2].NurseID != "n2" || metrics.NurseStats[2].OffDays != 15 {
		t.Errorf("Expected n2 last with 15 off days, got %+v", metrics.NurseStats[2])
	}
	if metrics.ShiftTypeDistribution["D"] != 40 {
		t.Errorf("Expected D share 40%%, got %f", metrics.ShiftTypeDistribution["D"])
	}
}

func TestFairnessAnalyzer_Weekend(t *testing.T) {
	metrics := NewFairnessAnalyzer().Analyze(newInput(t, false))

	// 2025-06-01 为周日，当天三人都上班；06-08 为奇数索引，n2 休息
	if metrics.WeekendStaffing["2025-06-01"] != 3 {
		t.Errorf("Expected 3 on 2025-06-01, got %d", metrics.WeekendStaffing["2025-06-01"])
	}
	if metrics.WeekendStaffing["2025-06-08"] != 2 {
		t.Errorf("Expected 2 on 2025-06-08, got %d", metrics.WeekendStaffing["2025-06-08"])
	}
	if len(metrics.WeekendStaffing) != 9 {
		t.Errorf("Expected 9 weekend days, got %d", len(metrics.WeekendStaffing))
	}
}

func TestFairnessAnalyzer_EmptyInput(t *testing.T) {
	analyzer := NewFairnessAnalyzer()
	in := newInput(t, false)
	in.Nurses = nil

	metrics := analyzer.Analyze(in)

	if metrics == nil {
		t.Fatal("Should return empty metrics for empty input")
	}
	if metrics.OverallFairnessScore != 100 {
		t.Errorf("Expected score 100, got %f", metrics.OverallFairnessScore)
	}
}

func TestFairnessAnalyzer_SkipsInactive(t *testing.T) {
	in := newInput(t, false)
	joined, _ := model.ParseNurses([]model.NurseRecord{{NurseID: "n2", JoiningDate: "2025-07-01"}})
	in.Nurses[2] = joined[0]

	metrics := NewFairnessAnalyzer().Analyze(in)
	if len(metrics.NurseStats) != 2 {
		t.Errorf("Expected 2 nurse stats, got %d", len(metrics.NurseStats))
	}
}

func TestFairnessAnalyzer_PerfectFairness(t *testing.T) {
	analyzer := NewFairnessAnalyzer()
	in := newInput(t, false)
	// 三人都每天 D
	d := in.Config.MustIndex("D")
	for n := 0; n < 3; n++ {
		for day := 0; day < in.Roster.NumDays(); day++ {
			in.Roster.Set(n, day, d)
		}
	}

	metrics := analyzer.Analyze(in)

	if metrics.WorkloadGini != 0 {
		t.Errorf("Expected Gini 0 for perfect fairness, got %f", metrics.WorkloadGini)
	}
	if metrics.OverallFairnessScore != 100 {
		t.Errorf("Expected score 100, got %f", metrics.OverallFairnessScore)
	}
}

func TestFairnessAnalyzer_CompareRosters(t *testing.T) {
	analyzer := NewFairnessAnalyzer()
	in := newInput(t, false)
	other := in.Roster.Clone()
	n := in.Config.MustIndex("N")
	for day := 1; day < other.NumDays(); day += 2 {
		other.Set(2, day, n)
	}

	diff := analyzer.CompareRosters(in, other)
	if diff["workload_gini_diff"] >= 0 {
		t.Errorf("Giving n2 more shifts should lower workload gini, diff %f", diff["workload_gini_diff"])
	}
	if diff["roster2_overall_score"] <= diff["roster1_overall_score"] {
		t.Errorf("Expected better score, got %v", diff)
	}
}
