package engine

import (
	"fmt"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/boundary"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
	"github.com/paiban/nurseroster/pkg/stats"
	"github.com/paiban/nurseroster/pkg/swap"
	"github.com/paiban/nurseroster/pkg/validator"
)

// Prepared 求解前的全部派生数据
type Prepared struct {
	Config   *model.RosterConfig
	Month    model.Month
	Nurses   []*model.Nurse
	Index    *model.NurseIndex
	Prefs    *preference.Matrix
	Pairs    *preference.PairSet
	Locks    *validator.Locks
	Boundary *boundary.Result
}

// Prepare 校验请求并构建偏好矩阵、跨月约束与锁定
// 跨月约束合并到配置副本，请求的 initial_constraints 不会被修改
func Prepare(req *Request) (*Prepared, error) {
	if req == nil || req.Config == nil {
		return nil, apperrors.InvalidInput("config", "缺少规则配置")
	}
	month, err := model.NewMonth(req.Year, req.Month)
	if err != nil {
		return nil, apperrors.InvalidInput("month", err.Error())
	}
	if len(req.Nurses) == 0 {
		return nil, apperrors.InvalidInput("nurses", "护士列表为空")
	}

	cfg := *req.Config
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	nurses, err := model.ParseNurses(req.Nurses)
	if err != nil {
		return nil, apperrors.InvalidInput("nurses", err.Error())
	}
	for _, n := range nurses {
		n.InitOffDays(&cfg)
	}
	index := model.NewNurseIndex(nurses)
	p := &Prepared{Config: &cfg, Month: month, Nurses: nurses, Index: index}

	// 跨月边界并入 initial_constraints
	cfg.InitialConstraints = boundary.Merge(nil, req.Config.InitialConstraints)
	if len(req.PreviousRoster) > 0 {
		ids := make([]string, len(nurses))
		for i, n := range nurses {
			ids[i] = n.DBID
		}
		p.Boundary = boundary.NewBuilder(&cfg, req.Lookback).Build(req.PreviousRoster, ids)
		cfg.InitialConstraints = boundary.Merge(cfg.InitialConstraints, p.Boundary.Constraints)
	}

	requests := preference.ParsePayloads(&cfg, req.Payloads)
	requests.Merge(req.Requests)
	b := preference.NewBuilder(&cfg, index, month.Days())
	p.Prefs, p.Pairs = b.Build(requests)
	b.AddPairs(p.Pairs, preference.PreceptorPairs(&cfg, nurses))

	if p.Locks, err = validator.BuildLocks(&cfg, month, nurses, index); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prepared) problem(runID string) *solver.Problem {
	return &solver.Problem{
		RunID:  runID,
		Config: p.Config,
		Month:  p.Month,
		Nurses: p.Nurses,
		Prefs:  p.Prefs,
		Pairs:  p.Pairs,
		Locks:  p.Locks,
	}
}

func (p *Prepared) model() (*optimizer.Model, error) {
	return optimizer.NewModel(optimizer.Input{
		Config: p.Config,
		Month:  p.Month,
		Nurses: p.Nurses,
		Prefs:  p.Prefs,
		Pairs:  p.Pairs,
		Locks:  p.Locks,
		Mode:   optimizer.ModeStaged,
	})
}

// Export 按 db id 导出逐日代码，不在职日为 "-"
func (p *Prepared) Export(grid *model.Roster) map[string][]string {
	out := make(map[string][]string, len(p.Nurses))
	for i, n := range p.Nurses {
		out[n.DBID] = grid.Codes(p.Config, i)
	}
	return out
}

// Import 由 db id -> 逐日代码构建排班矩阵
// 缺少的护士按未排班处理；未知护士或代码返回 INVALID_INPUT
func (p *Prepared) Import(rows map[string][]string) (*model.Roster, error) {
	days := p.Month.Days()
	grid := make([][]string, len(p.Nurses))
	for id, codes := range rows {
		n, ok := p.Index.Index(id)
		if !ok {
			return nil, apperrors.InvalidInput("roster", fmt.Sprintf("未知护士: %s", id))
		}
		grid[n] = codes
	}
	for n := range grid {
		if grid[n] == nil {
			grid[n] = make([]string, days)
		}
	}
	r, err := model.RosterFromCodes(p.Config, grid, days)
	if err != nil {
		return nil, apperrors.InvalidInput("roster", err.Error())
	}
	return r, nil
}

// StatsInput 统计分析输入
func (p *Prepared) StatsInput(grid *model.Roster) *stats.Input {
	return &stats.Input{
		Config: p.Config,
		Month:  p.Month,
		Nurses: p.Nurses,
		Roster: grid,
		Prefs:  p.Prefs,
		Pairs:  p.Pairs,
	}
}

// Analyze 计算给定排班的统计报告
func (p *Prepared) Analyze(grid *model.Roster) *stats.Report {
	report := stats.Analyze(p.StatsInput(grid))
	report.Status = model.StatusSuccess
	if p.evaluate(grid).Hard > 0 {
		report.Status = model.StatusPartial
	}
	return report
}

// SwapScenario 换班评估输入
func (p *Prepared) SwapScenario() *swap.Scenario {
	return &swap.Scenario{
		Config: p.Config,
		Month:  p.Month,
		Nurses: p.Nurses,
		Prefs:  p.Prefs,
		Pairs:  p.Pairs,
		Locks:  p.Locks,
	}
}
