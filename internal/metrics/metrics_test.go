package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/nurseroster/pkg/engine"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
	"github.com/paiban/nurseroster/pkg/stats"
)

func TestRegistry_WriteTo(t *testing.T) {
	r := NewRegistry()
	r.GetCounter(rosterGenerationTotal).Inc("staged", "success")
	r.GetGauge(coverageRate).Set(97.5)
	h := r.GetHistogram(stageDuration)
	h.Observe(0.1, "coverage")
	h.Observe(3, "coverage")
	h.Observe(500, "coverage")

	var b strings.Builder
	_, err := r.WriteTo(&b)
	require.NoError(t, err)
	out := b.String()

	assert.Contains(t, out, `nurseroster_roster_generation_total{solver="staged",status="success"} 1`)
	assert.Contains(t, out, "nurseroster_coverage_rate 97.5")
	// 0.1 落在 le=0.1，累计输出
	assert.Contains(t, out, `nurseroster_solver_stage_duration_seconds_bucket{stage="coverage",le="0.1"} 1`)
	assert.Contains(t, out, `nurseroster_solver_stage_duration_seconds_bucket{stage="coverage",le="5"} 2`)
	assert.Contains(t, out, `nurseroster_solver_stage_duration_seconds_bucket{stage="coverage",le="+Inf"} 3`)
	assert.Contains(t, out, `nurseroster_solver_stage_duration_seconds_count{stage="coverage"} 3`)
	assert.Equal(t, 3, h.Count("coverage"))

	// 按名称排序输出
	assert.Less(t, strings.Index(out, "nurseroster_http_requests_total"), strings.Index(out, "nurseroster_roster_generation_total"))
}

func TestObserveRoster(t *testing.T) {
	before := GetRegistry().GetCounter(rosterGenerationTotal).Value("staged", "partial")
	out := &engine.Output{
		Solver:   "staged",
		Status:   model.StatusPartial,
		Duration: 2 * time.Second,
		Stages: []solver.StageReport{
			{Stage: "coverage", Duration: time.Second},
			{Stage: "safety", Duration: time.Second, Fallback: true},
		},
		Violations: []constraint.Violation{
			{Type: constraint.TypeShiftRequirement, Category: constraint.CategoryHard},
			{Type: constraint.TypeWeeklyOff, Category: constraint.CategorySoft},
			{Type: constraint.TypeMinOff, Category: constraint.CategorySoft},
		},
		LNS: &optimizer.LNSResult{Iterations: 5, Accepted: 2},
		Report: &stats.Report{
			Satisfaction: &stats.SatisfactionMetrics{Off: stats.Ratio{Rate: 80}},
			Coverage:     &stats.CoverageMetrics{OverallCoverage: 95},
			Fairness:     &stats.FairnessMetrics{WorkloadGini: 0.1},
		},
	}
	ObserveRoster(out)

	r := GetRegistry()
	assert.Equal(t, before+1, r.GetCounter(rosterGenerationTotal).Value("staged", "partial"))
	assert.Equal(t, 1.0, r.GetGauge(residualViolations).Value("hard"))
	assert.Equal(t, 2.0, r.GetGauge(residualViolations).Value("soft"))
	assert.Equal(t, 80.0, r.GetGauge(satisfactionRate).Value("off"))
	assert.Equal(t, 95.0, r.GetGauge(coverageRate).Value())
	assert.GreaterOrEqual(t, r.GetCounter(stageFallbackTotal).Value("safety"), 1.0)
	assert.GreaterOrEqual(t, r.GetCounter(lnsIterationsTotal).Value("rejected"), 3.0)

	ObserveRoster(nil)
}

func TestHandler(t *testing.T) {
	RecordRequestMetrics(http.MethodGet, "/health", 200, 5*time.Millisecond)
	JobStarted()
	JobFinished("succeeded")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), `nurseroster_http_requests_total{method="GET",path="/health",status="200"}`)
	assert.Contains(t, rec.Body.String(), `nurseroster_jobs_total{state="succeeded"}`)
}
