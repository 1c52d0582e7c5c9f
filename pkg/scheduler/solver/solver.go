// Package solver 提供排班求解器
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint/builtin"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/validator"
)

// Solver 求解器接口
type Solver interface {
	// Solve 生成排班方案
	Solve(ctx context.Context, p *Problem) (*Result, error)

	// Name 返回求解器名称
	Name() string
}

// Problem 一次排班的全部输入
type Problem struct {
	RunID  string
	Config *model.RosterConfig
	Month  model.Month
	Nurses []*model.Nurse
	Prefs  *preference.Matrix
	Pairs  *preference.PairSet
	Locks  *validator.Locks
	Hint   *model.Roster // 可选的初始解
}

// StageReport 单个阶段的求解情况
type StageReport struct {
	Stage      string        `json:"stage"`
	Objective  int64         `json:"objective"`
	Gap        float64       `json:"gap"`
	Iterations int           `json:"iterations"`
	StopReason string        `json:"stop_reason"`
	Duration   time.Duration `json:"duration"`
	Fallback   bool          `json:"fallback"` // 使用了上一阶段的结果
}

// Result 求解结果
type Result struct {
	Roster           *model.Roster        `json:"-"`
	Status           model.Status         `json:"status"`
	Stages           []StageReport        `json:"stages"`
	Evaluation       optimizer.Evaluation `json:"evaluation"`
	Statistics       *Statistics          `json:"statistics"`
	ConstraintResult *constraint.Result   `json:"constraint_result"`
	Duration         time.Duration        `json:"duration"`
	Message          string               `json:"message,omitempty"`
}

// Success 是否覆盖与安全规则全部满足
func (r *Result) Success() bool {
	return r.Status == model.StatusSuccess
}

// Statistics 排班统计
type Statistics struct {
	TotalAssignments   int     `json:"total_assignments"`   // 工作班次人次
	FilledRequirements int     `json:"filled_requirements"` // 满员的 (日, 班次)
	TotalRequirements  int     `json:"total_requirements"`
	FillRate           float64 `json:"fill_rate"`
	Iterations         int     `json:"iterations"`
}

// Options 求解参数
type Options struct {
	TimeLimit        time.Duration `json:"time_limit" yaml:"time_limit"`
	StageSplit       [3]float64    `json:"stage_split" yaml:"stage_split"` // 覆盖/安全/偏好的时间占比
	MinStageTime     time.Duration `json:"min_stage_time" yaml:"min_stage_time"`
	GapLimits        [3]float64    `json:"gap_limits" yaml:"gap_limits"`
	Workers          int           `json:"workers" yaml:"workers"`
	TabuSize         int           `json:"tabu_size" yaml:"tabu_size"`
	NeighborhoodSize int           `json:"neighborhood_size" yaml:"neighborhood_size"`
	PlateauThreshold int           `json:"plateau_threshold" yaml:"plateau_threshold"`
	Seed             int64         `json:"seed" yaml:"seed"`
}

// DefaultOptions 默认求解参数
func DefaultOptions() Options {
	return Options{
		TimeLimit:        30 * time.Second,
		StageSplit:       [3]float64{0.45, 0.35, 0.20},
		MinStageTime:     500 * time.Millisecond,
		GapLimits:        [3]float64{0.15, 0.15, 0.05},
		Workers:          4,
		TabuSize:         50,
		NeighborhoodSize: 3,
		PlateauThreshold: 20000,
		Seed:             1,
	}
}

// stageConfig 某阶段的搜索配置；温度取阶段默认值
func (o Options) stageConfig(budget time.Duration, gap float64) *optimizer.OptimizationConfig {
	return &optimizer.OptimizationConfig{
		MaxTime:          budget,
		TabuSize:         o.TabuSize,
		NeighborhoodSize: o.NeighborhoodSize,
		ParallelWorkers:  o.Workers,
		StopOnPlateau:    o.PlateauThreshold > 0,
		PlateauThreshold: o.PlateauThreshold,
		GapLimit:         gap,
		Seed:             o.Seed,
	}
}

func (o Options) stageBudget(i int) time.Duration {
	return max(o.MinStageTime, time.Duration(float64(o.TimeLimit)*o.StageSplit[i]))
}

// validateProblem 检查输入，返回在职护士数
func validateProblem(p *Problem) (int, error) {
	if p == nil || p.Config == nil {
		return 0, apperrors.InvalidInput("problem", "缺少规则配置")
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	active := 0
	for _, n := range p.Nurses {
		if _, _, ok := n.ActiveWindow(p.Month); ok {
			active++
		}
	}
	if active == 0 {
		return 0, apperrors.NoFeasibleSolution("本月没有在职护士")
	}
	return active, nil
}

// buildModel 构建搜索模型；决策域为空视为覆盖阶段无解
func buildModel(p *Problem, mode optimizer.Mode) (*optimizer.Model, error) {
	m, err := optimizer.NewModel(optimizer.Input{
		Config: p.Config,
		Month:  p.Month,
		Nurses: p.Nurses,
		Prefs:  p.Prefs,
		Pairs:  p.Pairs,
		Locks:  p.Locks,
		Mode:   mode,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeNoFeasibleSolution, "构建搜索模型失败")
	}
	return m, nil
}

// failure 覆盖阶段无解：返回空排班
func failure(p *Problem, began time.Time, err error) (*Result, error) {
	res := &Result{Status: model.StatusFailure, Duration: time.Since(began), Message: err.Error()}
	if p == nil || p.Config == nil {
		return res, err
	}
	res.Roster = model.NewRoster(len(p.Nurses), p.Month.Days(), p.Config.NumShifts())
	return res, err
}

// finish 评估最终排班并填充状态、违规与统计
func finish(p *Problem, m *optimizer.Model, res *Result, roster *model.Roster, iterations int) {
	res.Roster = roster
	res.Evaluation = m.Evaluate(roster)
	res.ConstraintResult = builtin.FindViolations(constraint.NewContext(p.Config, p.Month, p.Nurses, roster))

	res.Status = model.StatusSuccess
	if res.Evaluation.Hard > 0 {
		res.Status = model.StatusPartial
	}

	stats := &Statistics{Iterations: iterations}
	for d := 0; d < m.NumDays(); d++ {
		for s := 0; s < p.Config.NumShifts(); s++ {
			req := m.Requirement(d, s)
			if req <= 0 {
				continue
			}
			stats.TotalRequirements++
			if roster.CountOn(d, s) >= req {
				stats.FilledRequirements++
			}
		}
	}
	off := p.Config.OffIndex()
	for n := 0; n < roster.NumNurses(); n++ {
		for d := 0; d < roster.NumDays(); d++ {
			if v := roster.Get(n, d); v >= 0 && v != off {
				stats.TotalAssignments++
			}
		}
	}
	if stats.TotalRequirements > 0 {
		stats.FillRate = float64(stats.FilledRequirements) / float64(stats.TotalRequirements) * 100
	} else {
		stats.FillRate = 100
	}
	res.Statistics = stats

	if res.Status == model.StatusSuccess {
		res.Message = fmt.Sprintf("排班成功，满足率 %.1f%%", stats.FillRate)
	} else {
		res.Message = fmt.Sprintf("存在 %d 个硬约束违反（缺员 %d）", res.Evaluation.Hard, res.Evaluation.Short)
	}
}

// startRoster 优先使用调用方给出的初始解，否则逐日贪心构造
func startRoster(ctx context.Context, p *Problem, m *optimizer.Model) *model.Roster {
	if p.Hint != nil && p.Hint.NumNurses() == m.NumNurses() && p.Hint.NumDays() == m.NumDays() {
		r := p.Hint.Clone()
		m.Locks().Apply(r)
		return r
	}
	return greedyRoster(ctx, p, m)
}
