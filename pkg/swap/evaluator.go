// Package swap 提供换班/调班功能
// 在已生成的排班上评估两名护士同一天互换班次的影响
package swap

import (
	"fmt"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint/builtin"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/stats"
	"github.com/paiban/nurseroster/pkg/validator"
)

// Scenario 换班评估所依据的排班输入
type Scenario struct {
	Config *model.RosterConfig
	Month  model.Month
	Nurses []*model.Nurse
	Prefs  *preference.Matrix
	Pairs  *preference.PairSet
	Locks  *validator.Locks
}

// SwapEvaluator 换班评估器
type SwapEvaluator struct {
	scenario          *Scenario
	model             *optimizer.Model
	constraintManager *constraint.Manager
	conflictDetector  *validator.ConflictDetector
	fairness          *stats.FairnessAnalyzer
}

// NewSwapEvaluator 创建换班评估器
// Locks 为空时按无锁定处理
func NewSwapEvaluator(s *Scenario) (*SwapEvaluator, error) {
	if s == nil || s.Config == nil {
		return nil, fmt.Errorf("换班评估缺少规则配置")
	}
	if s.Locks == nil {
		s.Locks = validator.NewLocks(len(s.Nurses), s.Month.Days())
	}
	m, err := optimizer.NewModel(optimizer.Input{
		Config: s.Config,
		Month:  s.Month,
		Nurses: s.Nurses,
		Prefs:  s.Prefs,
		Pairs:  s.Pairs,
		Locks:  s.Locks,
		Mode:   optimizer.ModeStaged,
	})
	if err != nil {
		return nil, fmt.Errorf("构建评估模型: %w", err)
	}
	return &SwapEvaluator{
		scenario:          s,
		model:             m,
		constraintManager: builtin.NewRosterManager(s.Config),
		conflictDetector:  validator.NewConflictDetector(s.Config, s.Locks),
		fairness:          stats.NewFairnessAnalyzer(),
	}, nil
}

// SwapRequest 换班请求：NurseA 与 NurseB 交换第 Day 天的班次
type SwapRequest struct {
	NurseA int `json:"nurse_a"`
	NurseB int `json:"nurse_b"`
	Day    int `json:"day"` // 0 起
}

// SwapEvaluation 换班评估结果
type SwapEvaluation struct {
	Feasible        bool        `json:"feasible"`
	HardDelta       int64       `json:"hard_delta"`       // 硬约束违规数变化（含缺员）
	SoftDelta       int         `json:"soft_delta"`       // 软约束违规数变化
	PreferenceDelta float64     `json:"preference_delta"` // 偏好得分变化
	Score           float64     `json:"score"`            // 换班后约束满足度 0-100
	Issues          []SwapIssue `json:"issues"`
	Impact          *SwapImpact `json:"impact"`
	Recommendation  string      `json:"recommendation"`
}

// SwapIssue 换班问题
type SwapIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // error/warning/info
	Message  string `json:"message"`
}

// SwapImpact 换班影响
type SwapImpact struct {
	NurseA         *NurseImpact `json:"nurse_a"`
	NurseB         *NurseImpact `json:"nurse_b"`
	FairnessChange float64      `json:"fairness_change"` // 综合公平性评分变化
}

// NurseImpact 单个护士的变化
type NurseImpact struct {
	NurseID          string  `json:"nurse_id"`
	Before           string  `json:"before"`
	After            string  `json:"after"`
	PreferenceChange float64 `json:"preference_change"`
	NewViolations    int     `json:"new_violations"`
}

// EvaluateSwap 评估换班可行性
// 固定单元格、禁止班次、不在职日不可交换；交换后硬约束违规增加视为不可行
func (e *SwapEvaluator) EvaluateSwap(roster *model.Roster, request SwapRequest) *SwapEvaluation {
	result := &SwapEvaluation{
		Feasible: true,
		Score:    100,
		Issues:   make([]SwapIssue, 0),
	}

	// 1. 基础检查
	if issue, ok := e.checkRequest(roster, request); !ok {
		result.Feasible = false
		result.Issues = append(result.Issues, issue)
		result.Recommendation = e.generateRecommendation(result)
		return result
	}

	a, b, d := request.NurseA, request.NurseB, request.Day
	cfg := e.scenario.Config
	sa, sb := roster.Get(a, d), roster.Get(b, d)

	// 2. 锁定检查
	for _, side := range []struct{ n, from, to int }{{a, sa, sb}, {b, sb, sa}} {
		if e.scenario.Locks.IsFixed(side.n, d) {
			result.Feasible = false
			result.Issues = append(result.Issues, SwapIssue{
				Type:     "pinned",
				Severity: "error",
				Message:  fmt.Sprintf("%s 第%d天为固定班次", e.nurseID(side.n), d+1),
			})
			continue
		}
		if !e.model.Allows(side.n, d, side.to) {
			result.Feasible = false
			result.Issues = append(result.Issues, SwapIssue{
				Type:     "not_allowed",
				Severity: "error",
				Message:  fmt.Sprintf("%s 第%d天不能上 %s", e.nurseID(side.n), d+1, cfg.Code(side.to)),
			})
		}
	}
	if !result.Feasible {
		result.Recommendation = e.generateRecommendation(result)
		return result
	}

	// 3. 模拟换班
	simulated := e.simulateSwap(roster, request)

	for _, c := range e.conflictDetector.DetectAll(simulated, e.scenario.Nurses) {
		if c.Day == d && (c.NurseIdx == a || c.NurseIdx == b) {
			result.Issues = append(result.Issues, SwapIssue{Type: string(c.Type), Severity: c.Severity, Message: c.Message})
			if c.Severity == "error" {
				result.Feasible = false
			}
		}
	}

	// 4. 目标函数与约束评估
	before, after := e.model.Evaluate(roster), e.model.Evaluate(simulated)
	result.HardDelta = after.Hard - before.Hard
	result.PreferenceDelta = float64(after.Score-before.Score) / 100

	beforeRes := e.constraintManager.Evaluate(e.contextFor(roster))
	afterRes := e.constraintManager.Evaluate(e.contextFor(simulated))
	result.SoftDelta = len(afterRes.SoftViolations) - len(beforeRes.SoftViolations)
	result.Score = afterRes.Score

	newHard := newViolations(beforeRes.HardViolations, afterRes.HardViolations)
	for _, v := range newHard {
		result.Issues = append(result.Issues, SwapIssue{Type: string(v.Type), Severity: "error", Message: v.Message})
	}
	for _, v := range newViolations(beforeRes.SoftViolations, afterRes.SoftViolations) {
		result.Issues = append(result.Issues, SwapIssue{Type: string(v.Type), Severity: "warning", Message: v.Message})
	}
	if result.HardDelta > 0 {
		result.Feasible = false
	}

	// 5. 计算影响
	e.calculateImpact(roster, simulated, request, newHard, result)

	// 6. 生成建议
	result.Recommendation = e.generateRecommendation(result)

	return result
}

func (e *SwapEvaluator) checkRequest(roster *model.Roster, req SwapRequest) (SwapIssue, bool) {
	invalid := func(msg string) (SwapIssue, bool) {
		return SwapIssue{Type: "invalid_request", Severity: "error", Message: msg}, false
	}
	switch {
	case roster == nil || roster.NumNurses() != e.model.NumNurses() || roster.NumDays() != e.model.NumDays():
		return invalid("排班尺寸与护士或天数不一致")
	case req.NurseA < 0 || req.NurseA >= roster.NumNurses() || req.NurseB < 0 || req.NurseB >= roster.NumNurses():
		return invalid("护士索引越界")
	case req.Day < 0 || req.Day >= roster.NumDays():
		return invalid("日期越界")
	case req.NurseA == req.NurseB:
		return invalid("不能与自己换班")
	}
	sa, sb := roster.Get(req.NurseA, req.Day), roster.Get(req.NurseB, req.Day)
	if sa < 0 || sb < 0 {
		return SwapIssue{Type: "nurse_inactive", Severity: "error", Message: "当天有护士不在职"}, false
	}
	if sa == sb {
		return SwapIssue{Type: "same_shift", Severity: "info", Message: "两人当天班次相同，无需交换"}, false
	}
	return SwapIssue{}, true
}

// simulateSwap 模拟换班后的排班
func (e *SwapEvaluator) simulateSwap(roster *model.Roster, req SwapRequest) *model.Roster {
	simulated := roster.Clone()
	sa, sb := roster.Get(req.NurseA, req.Day), roster.Get(req.NurseB, req.Day)
	simulated.Set(req.NurseA, req.Day, sb)
	simulated.Set(req.NurseB, req.Day, sa)
	return simulated
}

func (e *SwapEvaluator) contextFor(r *model.Roster) *constraint.Context {
	s := e.scenario
	return constraint.NewContext(s.Config, s.Month, s.Nurses, r)
}

// newViolations after 中不在 before 里的违规
func newViolations(before, after []constraint.Violation) []constraint.Violation {
	seen := make(map[string]int, len(before))
	for _, v := range before {
		seen[violationKey(v)]++
	}
	var out []constraint.Violation
	for _, v := range after {
		k := violationKey(v)
		if seen[k] > 0 {
			seen[k]--
			continue
		}
		out = append(out, v)
	}
	return out
}

func violationKey(v constraint.Violation) string {
	return fmt.Sprintf("%s/%d/%d/%s", v.Type, v.NurseIdx, v.Day, v.Shift)
}

// calculateImpact 计算影响
func (e *SwapEvaluator) calculateImpact(roster, simulated *model.Roster, req SwapRequest, newHard []constraint.Violation, result *SwapEvaluation) {
	cfg := e.scenario.Config
	impact := func(n int) *NurseImpact {
		ni := &NurseImpact{
			NurseID: e.nurseID(n),
			Before:  string(cfg.Code(roster.Get(n, req.Day))),
			After:   string(cfg.Code(simulated.Get(n, req.Day))),
		}
		if p := e.scenario.Prefs; p != nil {
			ni.PreferenceChange = p.Get(n, req.Day, simulated.Get(n, req.Day)) - p.Get(n, req.Day, roster.Get(n, req.Day))
		}
		for _, v := range newHard {
			if v.NurseIdx == n {
				ni.NewViolations++
			}
		}
		return ni
	}

	in := &stats.Input{Config: cfg, Month: e.scenario.Month, Nurses: e.scenario.Nurses, Roster: roster}
	diff := e.fairness.CompareRosters(in, simulated)

	result.Impact = &SwapImpact{
		NurseA:         impact(req.NurseA),
		NurseB:         impact(req.NurseB),
		FairnessChange: diff["overall_score_diff"],
	}
}

// generateRecommendation 生成建议
func (e *SwapEvaluator) generateRecommendation(result *SwapEvaluation) string {
	if !result.Feasible {
		if len(result.Issues) > 0 {
			return "不建议换班: " + result.Issues[0].Message
		}
		return "不建议换班"
	}
	switch {
	case result.HardDelta < 0:
		return "建议换班，可减少硬约束违规"
	case result.PreferenceDelta > 0 && result.SoftDelta <= 0:
		return "建议换班，偏好满足度提升"
	case result.SoftDelta > 0:
		return "可以换班，但会增加软约束提醒"
	case result.PreferenceDelta < 0:
		return "可以换班，但偏好满足度下降"
	}
	return "可以换班，影响较小"
}

func (e *SwapEvaluator) nurseID(n int) string {
	if n >= 0 && n < len(e.scenario.Nurses) {
		return e.scenario.Nurses[n].DBID
	}
	return fmt.Sprintf("#%d", n)
}
