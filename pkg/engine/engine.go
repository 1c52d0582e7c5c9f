// Package engine 排班生成入口
// 串联规则校验、偏好矩阵、跨月边界、锁定、求解、LNS 修复与统计分析
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint/builtin"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
	"github.com/paiban/nurseroster/pkg/stats"
	"github.com/paiban/nurseroster/pkg/validator"
)

// Output 一次排班生成的结果
type Output struct {
	RunID      string                 `json:"run_id"`
	Month      string                 `json:"month"`
	Solver     string                 `json:"solver"`
	Status     model.Status           `json:"status"`
	Message    string                 `json:"message,omitempty"`
	Roster     map[string][]string    `json:"roster"` // db id -> 逐日班次代码
	Order      []string               `json:"order"`  // 护士排班顺序
	Violations []constraint.Violation `json:"violations"`
	Report     *stats.Report          `json:"report"`
	Stages     []solver.StageReport   `json:"stages"`
	LNS        *optimizer.LNSResult   `json:"lns,omitempty"`
	Warnings   []validator.Conflict   `json:"warnings,omitempty"`
	Duration   time.Duration          `json:"duration"`

	Prepared *Prepared     `json:"-" yaml:"-"`
	Grid     *model.Roster `json:"-" yaml:"-"`
}

// Engine 排班引擎；不持有跨次运行的状态
type Engine struct {
	newSolver func(name string, opts solver.Options) solver.Solver
}

// New 创建排班引擎
func New() *Engine {
	return &Engine{newSolver: solver.New}
}

// Generate 使用默认引擎生成排班
func Generate(ctx context.Context, req *Request) (*Output, error) {
	return New().Generate(ctx, req)
}

// Generate 生成排班
// 覆盖阶段无解返回 NO_FEASIBLE_SOLUTION，锁定冲突返回 LOCK_CONFLICT；
// 后续阶段退化时返回 partial 状态而非错误
func (e *Engine) Generate(ctx context.Context, req *Request) (*Output, error) {
	began := time.Now()
	if req != nil && req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	p, err := Prepare(req)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithRunID(ctx, req.RunID)
	log := logger.WithContext(ctx)

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeTimeout, "排班在求解前被取消")
	}

	opts := req.solverOptions()
	slv := e.newSolver(req.Solver, opts)
	log.Info().
		Str("solver", slv.Name()).
		Str("month", p.Month.String()).
		Int("nurses", len(p.Nurses)).
		Int("fixed", p.Locks.NumFixed()).
		Int("forbidden", p.Locks.NumForbidden()).
		Msg("开始生成排班")

	res, err := slv.Solve(ctx, p.problem(req.RunID))
	if err != nil {
		if apperrors.GetCode(err) == apperrors.CodeUnknown {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "求解失败")
		}
		return nil, err
	}

	out := &Output{
		RunID:    req.RunID,
		Month:    p.Month.String(),
		Solver:   slv.Name(),
		Status:   res.Status,
		Message:  res.Message,
		Stages:   res.Stages,
		Warnings: p.Locks.Warnings,
		Prepared: p,
	}
	grid := res.Roster

	if lnsCfg, ok := req.lnsConfig(res.Status); ok && ctx.Err() == nil {
		improved, lnsRes, err := p.repair(ctx, grid, lnsCfg)
		if lnsRes == nil {
			log.Warn().Err(err).Msg("LNS 修复失败，保留求解结果")
		} else {
			out.LNS = lnsRes
			grid = improved
		}
	}

	p.finish(out, grid)
	out.Duration = time.Since(began)
	log.Info().
		Str("status", string(out.Status)).
		Int("violations", len(out.Violations)).
		Dur("duration", out.Duration).
		Msg("排班生成完成")
	return out, nil
}

// repair 以阶段三目标对排班做 LNS 修复
func (p *Prepared) repair(ctx context.Context, grid *model.Roster, cfg optimizer.LNSConfig) (*model.Roster, *optimizer.LNSResult, error) {
	m, err := p.model()
	if err != nil {
		return nil, nil, err
	}
	lns := optimizer.NewLNS(m, cfg, logger.NewSchedulerLoggerContext(ctx))
	res, err := lns.Run(ctx, grid)
	if res == nil || res.Roster == nil {
		return nil, nil, err
	}
	return res.Roster, res, err
}

// finish 填充排班、违规、状态与统计报告
func (p *Prepared) finish(out *Output, grid *model.Roster) {
	out.Grid = grid
	out.Roster = p.Export(grid)
	out.Order = make([]string, len(p.Nurses))
	for i, n := range p.Nurses {
		out.Order[i] = n.DBID
	}

	result := p.Validate(grid)
	out.Violations = result.All()

	if out.Status != model.StatusFailure {
		out.Status = model.StatusSuccess
		if ev := p.evaluate(grid); ev.Hard > 0 {
			out.Status = model.StatusPartial
			out.Message = fmt.Sprintf("存在 %d 个硬约束违反（缺员 %d）", ev.Hard, ev.Short)
		}
	}

	out.Report = stats.Analyze(p.StatsInput(grid))
	out.Report.Status = out.Status
}

// evaluate 按三阶段模型统计硬约束（缺员与安全松弛）
func (p *Prepared) evaluate(grid *model.Roster) optimizer.Evaluation {
	m, err := p.model()
	if err != nil {
		return optimizer.Evaluation{}
	}
	return m.Evaluate(grid)
}

// Validate 计算给定排班的全部违规
func (p *Prepared) Validate(grid *model.Roster) *constraint.Result {
	return builtin.FindViolations(constraint.NewContext(p.Config, p.Month, p.Nurses, grid))
}
