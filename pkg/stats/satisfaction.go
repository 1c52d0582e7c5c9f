package stats

import (
	"github.com/paiban/nurseroster/pkg/preference"
)

// MeaningfulWeight 偏好单元格的权重达到该值才计为一条请求
const MeaningfulWeight = 4.0

// Ratio 满足数 / 请求数
type Ratio struct {
	Satisfied int     `json:"satisfied"`
	Total     int     `json:"total"`
	Rate      float64 `json:"rate"` // 百分比，无请求时为 100
}

func (r *Ratio) add(ok bool) {
	r.Total++
	if ok {
		r.Satisfied++
	}
}

func (r *Ratio) merge(o Ratio) {
	r.Total += o.Total
	r.Satisfied += o.Satisfied
}

func (r *Ratio) finish() {
	r.Rate = percent(r.Satisfied, r.Total)
}

// NurseSatisfaction 单个护士的满意度
type NurseSatisfaction struct {
	NurseID string `json:"nurse_id"`
	Name    string `json:"name"`
	Off     Ratio  `json:"off"`
	Shift   Ratio  `json:"shift"`
	Pair    Ratio  `json:"pair"`
	Overall Ratio  `json:"overall"`
}

// SatisfactionMetrics 满意度指标
type SatisfactionMetrics struct {
	Threshold      float64             `json:"threshold"`
	Off            Ratio               `json:"off"`
	Shift          Ratio               `json:"shift"`
	Together       Ratio               `json:"together"`
	Apart          Ratio               `json:"apart"`
	Pair           Ratio               `json:"pair"`
	Overall        Ratio               `json:"overall"`
	AverageOverall float64             `json:"average_overall"` // 护士个人满意度的平均值
	Nurses         []NurseSatisfaction `json:"nurses"`
}

// PreceptorOverlap 带教配对的同班率
type PreceptorOverlap struct {
	MenteeID    string  `json:"mentee_id"`
	PreceptorID string  `json:"preceptor_id"`
	BothWorking int     `json:"both_working"` // 两人都上班的天数
	SameShift   int     `json:"same_shift"`
	Rate        float64 `json:"rate"`
}

// SatisfactionAnalyzer 满意度分析器
type SatisfactionAnalyzer struct {
	threshold float64
}

// NewSatisfactionAnalyzer 创建满意度分析器
func NewSatisfactionAnalyzer() *SatisfactionAnalyzer {
	return &SatisfactionAnalyzer{threshold: MeaningfulWeight}
}

// Analyze 计算休息、班次、配对三类请求的满意度
// 配对只按请求方统计，带教注入的配对不计入
func (a *SatisfactionAnalyzer) Analyze(in *Input) *SatisfactionMetrics {
	res := &SatisfactionMetrics{Threshold: a.threshold, Nurses: make([]NurseSatisfaction, len(in.Nurses))}
	for n, nurse := range in.Nurses {
		res.Nurses[n] = NurseSatisfaction{NurseID: nurse.DBID, Name: nurse.Name}
	}

	a.countCells(in, res)
	a.countPairs(in, res)

	sum := 0.0
	for i := range res.Nurses {
		ns := &res.Nurses[i]
		ns.Overall.merge(ns.Off)
		ns.Overall.merge(ns.Shift)
		ns.Overall.merge(ns.Pair)
		for _, r := range []*Ratio{&ns.Off, &ns.Shift, &ns.Pair, &ns.Overall} {
			r.finish()
		}
		sum += ns.Overall.Rate
	}

	res.Pair.merge(res.Together)
	res.Pair.merge(res.Apart)
	res.Overall.merge(res.Off)
	res.Overall.merge(res.Shift)
	res.Overall.merge(res.Pair)
	for _, r := range []*Ratio{&res.Off, &res.Shift, &res.Together, &res.Apart, &res.Pair, &res.Overall} {
		r.finish()
	}
	res.AverageOverall = 100
	if len(res.Nurses) > 0 {
		res.AverageOverall = round(sum/float64(len(res.Nurses)), 2)
	}
	return res
}

// countCells 休息与工作班次请求；在职期外的单元格无法满足，不计入
func (a *SatisfactionAnalyzer) countCells(in *Input, res *SatisfactionMetrics) {
	if in.Prefs == nil {
		return
	}
	pn, pd, ps := in.Prefs.Dims()
	off := in.Config.OffIndex()
	work := in.Config.WorkShifts()

	for n := range in.Nurses {
		if n >= pn {
			break
		}
		ns := &res.Nurses[n]
		for d := 0; d < min(pd, in.Roster.NumDays()); d++ {
			got := in.Roster.Get(n, d)
			if got < 0 {
				continue
			}
			if off < ps && in.Prefs.Get(n, d, off) >= a.threshold {
				ok := got == off
				ns.Off.add(ok)
				res.Off.add(ok)
			}
			for _, s := range work {
				if s < ps && in.Prefs.Get(n, d, s) >= a.threshold {
					ok := got == s
					ns.Shift.add(ok)
					res.Shift.add(ok)
				}
			}
		}
	}
}

// countPairs 每条请求按整月天数计数；同为休息也算同班
func (a *SatisfactionAnalyzer) countPairs(in *Input, res *SatisfactionMetrics) {
	if in.Pairs == nil {
		return
	}
	nurses := in.Roster.NumNurses()
	for _, req := range in.Pairs.UserRequests() {
		if req.Requester >= len(res.Nurses) || req.Requester >= nurses || req.Target >= nurses {
			continue
		}
		ns := &res.Nurses[req.Requester]
		for d := 0; d < in.Roster.NumDays(); d++ {
			same := SameShift(in.Roster, req.Requester, req.Target, d)
			if req.Kind == preference.PairApart {
				ns.Pair.add(!same)
				res.Apart.add(!same)
				continue
			}
			ns.Pair.add(same)
			res.Together.add(same)
		}
	}
}

// PreceptorOverlap 带教配对在两人都上班的日子里同班的比例
func (a *SatisfactionAnalyzer) PreceptorOverlap(in *Input) []PreceptorOverlap {
	if in.Pairs == nil {
		return nil
	}
	nurses := in.Roster.NumNurses()
	var out []PreceptorOverlap
	for _, req := range in.Pairs.PreceptorPairs() {
		if req.Requester >= nurses || req.Target >= nurses || req.Requester >= len(in.Nurses) || req.Target >= len(in.Nurses) {
			continue
		}
		po := PreceptorOverlap{
			MenteeID:    in.Nurses[req.Requester].DBID,
			PreceptorID: in.Nurses[req.Target].DBID,
		}
		for d := 0; d < in.Roster.NumDays(); d++ {
			if !isWork(in, in.Roster.Get(req.Requester, d)) || !isWork(in, in.Roster.Get(req.Target, d)) {
				continue
			}
			po.BothWorking++
			if SameShift(in.Roster, req.Requester, req.Target, d) {
				po.SameShift++
			}
		}
		po.Rate = percent(po.SameShift, po.BothWorking)
		out = append(out, po)
	}
	return out
}
