package solver

import (
	"context"
	"time"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
)

// LegacySolver 单次加权求解器
// 缺员、安全松弛、偏好合成一个目标，系数随 shift_requirement_priority 缩放
type LegacySolver struct {
	opts Options
}

// NewLegacySolver 创建单次求解器
func NewLegacySolver(opts Options) *LegacySolver {
	return &LegacySolver{opts: opts}
}

// Name 返回求解器名称
func (s *LegacySolver) Name() string {
	return "legacy"
}

// Solve 使用全部时间预算求解加权目标
func (s *LegacySolver) Solve(ctx context.Context, p *Problem) (*Result, error) {
	began := time.Now()
	if _, err := validateProblem(p); err != nil {
		return failure(p, began, err)
	}
	if err := ctx.Err(); err != nil {
		return failure(p, began, err)
	}
	log := logger.NewSchedulerLoggerContext(logger.ContextWithRunID(ctx, p.RunID))
	log.StartSchedule(p.RunID, s.Name(), len(p.Nurses), p.Month.Days())

	m, err := buildModel(p, optimizer.ModeLegacy)
	if err != nil {
		return failure(p, began, err)
	}

	cfg := s.opts.stageConfig(max(s.opts.MinStageTime, s.opts.TimeLimit), s.opts.GapLimits[2])
	sol, err := optimizer.NewParallelOptimizer(cfg).Optimize(ctx, m, startRoster(ctx, p, m),
		optimizer.Objective{Stage: optimizer.StageLegacy}, optimizer.NewMoveSpace(m, nil))
	if sol == nil {
		return failure(p, began, err)
	}
	log.StageComplete(optimizer.StageLegacy.String(), sol.Energy, time.Since(began))

	res := &Result{Stages: []StageReport{report(optimizer.StageLegacy, sol, time.Since(began))}}
	finish(p, m, res, sol.Roster, sol.Iterations)
	res.Duration = time.Since(began)
	log.ScheduleComplete(p.RunID, string(res.Status), res.Duration, float64(res.Evaluation.Score))
	return res, nil
}

// New 按名称创建求解器，未知名称使用三阶段求解器
func New(name string, opts Options) Solver {
	switch name {
	case "legacy":
		return NewLegacySolver(opts)
	case "greedy":
		return NewGreedySolver()
	}
	return NewStagedSolver(opts)
}
