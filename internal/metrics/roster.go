package metrics

import (
	"time"

	"github.com/paiban/nurseroster/pkg/engine"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
)

// RecordRosterGeneration 记录一次排班生成
func RecordRosterGeneration(solverName, status string, duration time.Duration) {
	registry := GetRegistry()
	if counter := registry.GetCounter(rosterGenerationTotal); counter != nil {
		counter.Inc(solverName, status)
	}
	if histogram := registry.GetHistogram(rosterGenerationTime); histogram != nil {
		histogram.Observe(duration.Seconds(), solverName)
	}
}

// ObserveRoster 记录生成结果的阶段耗时、残留违规与质量指标
func ObserveRoster(out *engine.Output) {
	if out == nil {
		return
	}
	registry := GetRegistry()
	RecordRosterGeneration(out.Solver, string(out.Status), out.Duration)

	for _, s := range out.Stages {
		registry.GetHistogram(stageDuration).Observe(s.Duration.Seconds(), s.Stage)
		if s.Fallback {
			registry.GetCounter(stageFallbackTotal).Inc(s.Stage)
		}
	}

	hard, soft := 0, 0
	for _, v := range out.Violations {
		if v.Category == constraint.CategoryHard {
			hard++
		} else {
			soft++
		}
	}
	violations := registry.GetGauge(residualViolations)
	violations.Set(float64(hard), string(constraint.CategoryHard))
	violations.Set(float64(soft), string(constraint.CategorySoft))

	if out.LNS != nil {
		lns := registry.GetCounter(lnsIterationsTotal)
		lns.Add(float64(out.LNS.Accepted), "accepted")
		lns.Add(float64(out.LNS.Iterations-out.LNS.Accepted), "rejected")
	}

	report := out.Report
	if report == nil {
		return
	}
	if sat := report.Satisfaction; sat != nil {
		g := registry.GetGauge(satisfactionRate)
		g.Set(sat.Off.Rate, "off")
		g.Set(sat.Shift.Rate, "shift")
		g.Set(sat.Pair.Rate, "pair")
		g.Set(sat.Overall.Rate, "overall")
	}
	if cov := report.Coverage; cov != nil {
		registry.GetGauge(coverageRate).Set(cov.OverallCoverage)
	}
	if f := report.Fairness; f != nil {
		g := registry.GetGauge(fairnessGini)
		g.Set(f.WorkloadGini, "workload")
		g.Set(f.NightShiftGini, "night")
		g.Set(f.WeekendShiftGini, "weekend")
	}
}

// JobStarted 后台任务开始运行
func JobStarted() {
	GetRegistry().GetGauge(jobsActive).Inc()
}

// JobFinished 后台任务结束，state 为 succeeded/failed/cancelled
func JobFinished(state string) {
	registry := GetRegistry()
	registry.GetGauge(jobsActive).Dec()
	registry.GetCounter(jobsTotal).Inc(state)
}
