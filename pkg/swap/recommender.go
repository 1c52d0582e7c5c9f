package swap

import (
	"sort"

	"github.com/paiban/nurseroster/pkg/model"
)

// Recommender 换班推荐器
type Recommender struct {
	evaluator *SwapEvaluator
}

// NewRecommender 创建换班推荐器
func NewRecommender(evaluator *SwapEvaluator) *Recommender {
	return &Recommender{evaluator: evaluator}
}

// Recommendation 换班推荐
type Recommendation struct {
	Partner       int             `json:"partner"`
	PartnerID     string          `json:"partner_id"`
	PartnerShift  string          `json:"partner_shift"` // 对方当天原班次
	Evaluation    *SwapEvaluation `json:"evaluation"`
	Reason        string          `json:"reason"`
	ImpactSummary string          `json:"impact_summary"`
	Rank          int             `json:"rank"`
}

// RecommendOptions 推荐选项
type RecommendOptions struct {
	MaxRecommendations int   // 最大推荐数量
	PreferredNurses    []int // 优先考虑的护士
	ExcludeNurses      []int // 排除的护士
	AllowSoftIncrease  bool  // 是否允许增加软约束违规
}

// DefaultRecommendOptions 返回默认选项
func DefaultRecommendOptions() *RecommendOptions {
	return &RecommendOptions{
		MaxRecommendations: 5,
		AllowSoftIncrease:  true,
	}
}

// Recommend 为护士某天推荐最多 k 个换班对象
// 只推荐不增加硬约束违规的交换；按硬约束变化、偏好变化、软约束变化排序
func (r *Recommender) Recommend(roster *model.Roster, nurse, day, k int) []Recommendation {
	opts := DefaultRecommendOptions()
	opts.MaxRecommendations = k
	return r.RecommendSwapTargets(roster, nurse, day, opts)
}

// RecommendSwapTargets 推荐换班对象
func (r *Recommender) RecommendSwapTargets(roster *model.Roster, nurse, day int, options *RecommendOptions) []Recommendation {
	if options == nil {
		options = DefaultRecommendOptions()
	}
	if roster == nil || nurse < 0 || nurse >= roster.NumNurses() {
		return nil
	}

	excludeSet := map[int]bool{nurse: true}
	for _, n := range options.ExcludeNurses {
		excludeSet[n] = true
	}
	preferredSet := make(map[int]bool)
	for _, n := range options.PreferredNurses {
		preferredSet[n] = true
	}

	cfg := r.evaluator.scenario.Config
	var candidates []Recommendation
	for other := 0; other < roster.NumNurses(); other++ {
		if excludeSet[other] {
			continue
		}
		evaluation := r.evaluator.EvaluateSwap(roster, SwapRequest{NurseA: nurse, NurseB: other, Day: day})
		if !evaluation.Feasible {
			continue
		}
		if !options.AllowSoftIncrease && evaluation.SoftDelta > 0 {
			continue
		}
		candidates = append(candidates, Recommendation{
			Partner:       other,
			PartnerID:     r.evaluator.nurseID(other),
			PartnerShift:  string(cfg.Code(roster.Get(other, day))),
			Evaluation:    evaluation,
			Reason:        r.generateReason(evaluation),
			ImpactSummary: r.generateImpactSummary(evaluation),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if pa, pb := preferredSet[a.Partner], preferredSet[b.Partner]; pa != pb {
			return pa
		}
		ea, eb := a.Evaluation, b.Evaluation
		if ea.HardDelta != eb.HardDelta {
			return ea.HardDelta < eb.HardDelta
		}
		if ea.PreferenceDelta != eb.PreferenceDelta {
			return ea.PreferenceDelta > eb.PreferenceDelta
		}
		return ea.SoftDelta < eb.SoftDelta
	})

	if options.MaxRecommendations > 0 && len(candidates) > options.MaxRecommendations {
		candidates = candidates[:options.MaxRecommendations]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

// generateReason 生成推荐原因
func (r *Recommender) generateReason(evaluation *SwapEvaluation) string {
	switch {
	case evaluation.HardDelta < 0:
		return "减少硬约束违规"
	case evaluation.PreferenceDelta > 0:
		return "双方偏好满足度提升"
	case len(evaluation.Issues) == 0:
		return "无约束冲突"
	}
	warningCount := 0
	for _, issue := range evaluation.Issues {
		if issue.Severity == "warning" {
			warningCount++
		}
	}
	if warningCount <= 2 {
		return "仅有少量软约束提醒"
	}
	return "可以交换此班次"
}

// generateImpactSummary 生成影响摘要
func (r *Recommender) generateImpactSummary(evaluation *SwapEvaluation) string {
	if evaluation.Impact == nil {
		return "影响较小"
	}
	switch fc := evaluation.Impact.FairnessChange; {
	case fc > 0:
		return "公平性评分提高"
	case fc < 0:
		return "公平性评分下降"
	}
	return "对双方工作量影响均衡"
}

// FindBestSwapMatch 为护士某天找到最佳换班对象，没有时返回 nil
func (r *Recommender) FindBestSwapMatch(roster *model.Roster, nurse, day int) *Recommendation {
	recommendations := r.Recommend(roster, nurse, day, 1)
	if len(recommendations) == 0 {
		return nil
	}
	return &recommendations[0]
}
