package solver

import (
	"context"
	"time"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
)

// StagedSolver 三阶段字典序求解器
// 覆盖 → 安全 → 偏好，后一阶段以前一阶段的水平为上界，从前一阶段的排班出发
type StagedSolver struct {
	opts Options
}

// NewStagedSolver 创建三阶段求解器
func NewStagedSolver(opts Options) *StagedSolver {
	return &StagedSolver{opts: opts}
}

// Name 返回求解器名称
func (s *StagedSolver) Name() string {
	return "staged"
}

// Solve 依次求解三个阶段
// 覆盖阶段没有解时返回 failure；后续阶段失败或被取消时沿用上一阶段的排班
func (s *StagedSolver) Solve(ctx context.Context, p *Problem) (*Result, error) {
	began := time.Now()
	if _, err := validateProblem(p); err != nil {
		return failure(p, began, err)
	}
	if err := ctx.Err(); err != nil {
		return failure(p, began, err)
	}
	log := logger.NewSchedulerLoggerContext(logger.ContextWithRunID(ctx, p.RunID))
	log.StartSchedule(p.RunID, s.Name(), len(p.Nurses), p.Month.Days())

	m, err := buildModel(p, optimizer.ModeStaged)
	if err != nil {
		return failure(p, began, err)
	}
	space := optimizer.NewMoveSpace(m, nil)
	res := &Result{}
	iterations := 0

	// 阶段一：覆盖
	start := startRoster(ctx, p, m)
	cov, err := s.runStage(ctx, m, start, optimizer.Objective{Stage: optimizer.StageCoverage}, space, 0)
	if cov == nil {
		return failure(p, began, err)
	}
	res.Stages = append(res.Stages, report(optimizer.StageCoverage, cov, time.Since(began)))
	log.StageComplete(optimizer.StageCoverage.String(), cov.Energy, time.Since(began))
	iterations += cov.Iterations
	current := cov.Roster

	// 阶段二：安全，覆盖不退化
	stage2 := optimizer.Objective{
		Stage: optimizer.StageSafety,
		Pins:  optimizer.Pins{Short: cov.Evaluation.Short, Over: cov.Evaluation.Over},
	}
	current, iterations = s.advance(ctx, log, m, current, stage2, space, 1, res, iterations)

	// 阶段三：偏好，覆盖、各族安全松弛与已为零的实例都不退化
	stage3 := optimizer.Objective{Stage: optimizer.StagePreference, Pins: m.PinsFrom(current)}
	current, iterations = s.advance(ctx, log, m, current, stage3, space, 2, res, iterations)

	finish(p, m, res, current, iterations)
	res.Duration = time.Since(began)
	log.ScheduleComplete(p.RunID, string(res.Status), res.Duration, float64(res.Evaluation.Score))
	return res, nil
}

// advance 运行一个带上界的阶段；无可行结果时回退到 current
func (s *StagedSolver) advance(ctx context.Context, log *logger.SchedulerLogger, m *optimizer.Model, current *model.Roster, obj optimizer.Objective,
	space *optimizer.MoveSpace, idx int, res *Result, iterations int) (*model.Roster, int) {
	stageStart := time.Now()
	if ctx.Err() != nil {
		log.StageFallback(obj.Stage.String(), "已取消")
		res.Stages = append(res.Stages, StageReport{Stage: obj.Stage.String(), StopReason: "cancelled", Fallback: true})
		return current, iterations
	}

	sol, _ := s.runStage(ctx, m, current, obj, space, idx)
	if sol == nil || !sol.Feasible {
		log.StageFallback(obj.Stage.String(), "未找到满足上界的解")
		rep := StageReport{Stage: obj.Stage.String(), Fallback: true, Duration: time.Since(stageStart)}
		if sol != nil {
			rep.StopReason, rep.Iterations = sol.StopReason, sol.Iterations
		}
		res.Stages = append(res.Stages, rep)
		return current, iterations
	}
	res.Stages = append(res.Stages, report(obj.Stage, sol, time.Since(stageStart)))
	log.StageComplete(obj.Stage.String(), sol.Energy, time.Since(stageStart))
	return sol.Roster, iterations + sol.Iterations
}

func (s *StagedSolver) runStage(ctx context.Context, m *optimizer.Model, start *model.Roster, obj optimizer.Objective,
	space *optimizer.MoveSpace, idx int) (*optimizer.Solution, error) {
	cfg := s.opts.stageConfig(s.opts.stageBudget(idx), s.opts.GapLimits[idx])
	cfg.Seed = s.opts.Seed + int64(idx)*1000
	return optimizer.NewParallelOptimizer(cfg).Optimize(ctx, m, start, obj, space)
}

func report(stage optimizer.Stage, sol *optimizer.Solution, d time.Duration) StageReport {
	return StageReport{
		Stage:      stage.String(),
		Objective:  sol.Energy,
		Gap:        sol.Gap,
		Iterations: sol.Iterations,
		StopReason: sol.StopReason,
		Duration:   d,
	}
}
