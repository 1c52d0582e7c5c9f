package solver

import (
	"context"
	"sort"
	"time"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint/builtin"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
)

// GreedySolver 贪心求解器
// 逐日按 N → E → D 顺序补足需求，每次分配都经过硬安全规则检查
// 也作为三阶段与单次求解器的初始解
type GreedySolver struct {
	logger *logger.SchedulerLogger
}

// NewGreedySolver 创建贪心求解器
func NewGreedySolver() *GreedySolver {
	return &GreedySolver{logger: logger.NewSchedulerLogger()}
}

// Name 返回求解器名称
func (s *GreedySolver) Name() string {
	return "greedy"
}

// Solve 使用贪心算法生成排班
func (s *GreedySolver) Solve(ctx context.Context, p *Problem) (*Result, error) {
	began := time.Now()
	if _, err := validateProblem(p); err != nil {
		return failure(p, began, err)
	}
	s.logger.StartSchedule(p.RunID, s.Name(), len(p.Nurses), p.Month.Days())

	m, err := buildModel(p, optimizer.ModeStaged)
	if err != nil {
		return failure(p, began, err)
	}
	roster := greedyRoster(ctx, p, m)
	if err := ctx.Err(); err != nil {
		return failure(p, began, err)
	}

	res := &Result{}
	finish(p, m, res, roster, 0)
	res.Duration = time.Since(began)
	s.logger.ScheduleComplete(p.RunID, string(res.Status), res.Duration, float64(res.Evaluation.Score))
	return res, nil
}

// greedyRoster 逐日构造排班
// 候选按偏好降序、已分配班次数升序（公平）排序
func greedyRoster(ctx context.Context, p *Problem, m *optimizer.Model) *model.Roster {
	cfg := p.Config
	off := cfg.OffIndex()
	r := m.NewRoster()
	locks := m.Locks()

	for n := 0; n < m.NumNurses(); n++ {
		first, last, ok := m.Window(n)
		if !ok {
			continue
		}
		for d := first; d <= last; d++ {
			if locks.IsFixed(n, d) {
				continue
			}
			if m.Allows(n, d, off) {
				r.Set(n, d, off)
			} else {
				r.Set(n, d, m.Domain(n, d)[0])
			}
		}
	}

	safety := builtin.NewSafetyManager(cfg)
	cctx := constraint.NewContext(cfg, p.Month, p.Nurses, r)
	assigned := make([]int, m.NumNurses())
	order := []int{
		cfg.MustIndex(model.ShiftNight),
		cfg.MustIndex(model.ShiftEvening),
		cfg.MustIndex(model.ShiftDay),
	}
	log := logger.Get().With().Str("component", "greedy").Logger()

	for d := 0; d < m.NumDays(); d++ {
		if ctx.Err() != nil {
			return r
		}
		for _, s := range order {
			need := m.Need(d, s)
			if need <= 0 {
				continue
			}
			candidates := greedyCandidates(p, m, r, d, s, assigned)
			filled := 0
			for _, n := range candidates {
				if filled >= need {
					break
				}
				r.Set(n, d, s)
				if ok, reason := safety.CanAssign(cctx, n, d); !ok {
					r.Set(n, d, off)
					log.Debug().Int("nurse", n).Int("day", d).Str("reason", reason).Msg("分配检查未通过")
					continue
				}
				assigned[n]++
				filled++
			}
			if filled < need {
				log.Debug().Int("day", d).Str("shift", string(cfg.Code(s))).
					Msgf("缺员 %d 人", need-filled)
			}
		}
	}
	return r
}

// greedyCandidates 当天仍为休息、且可以上班次 s 的护士
func greedyCandidates(p *Problem, m *optimizer.Model, r *model.Roster, d, s int, assigned []int) []int {
	off := p.Config.OffIndex()
	var candidates []int
	for n := 0; n < m.NumNurses(); n++ {
		if m.Locks().IsFixed(n, d) || r.Get(n, d) != off || !m.Allows(n, d, s) {
			continue
		}
		candidates = append(candidates, n)
	}
	pref := func(n int) float64 {
		if p.Prefs == nil {
			return 0
		}
		return p.Prefs.Get(n, d, s) - p.Prefs.Get(n, d, off)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if pa, pb := pref(a), pref(b); pa != pb {
			return pa > pb
		}
		return assigned[a] < assigned[b]
	})
	return candidates
}
