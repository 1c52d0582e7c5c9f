package optimizer

import (
	"math/rand"
)

// PolicyConfig ε-greedy 邻域选择策略参数
type PolicyConfig struct {
	Epsilon      float64 `json:"epsilon" yaml:"epsilon"`             // 初始探索概率
	EpsilonEnd   float64 `json:"epsilon_end" yaml:"epsilon_end"`     // 探索概率下限
	Decay        float64 `json:"decay" yaml:"decay"`                 // 每次选择后的衰减
	Reward       float64 `json:"reward" yaml:"reward"`               // 成功奖励
	Penalty      float64 `json:"penalty" yaml:"penalty"`             // 失败惩罚（正数）
	MinWeight    float64 `json:"min_weight" yaml:"min_weight"`       // 权重下限
	WindowNurses int     `json:"window_nurses" yaml:"window_nurses"` // k_n
	WindowDays   int     `json:"window_days" yaml:"window_days"`     // k_d
}

// DefaultPolicyConfig 默认策略参数
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Epsilon:      0.3,
		EpsilonEnd:   0.05,
		Decay:        0.995,
		Reward:       2,
		Penalty:      1,
		MinWeight:    0.1,
		WindowNurses: 4,
		WindowDays:   7,
	}
}

// Policy 按护士、日期的成功权重选择 LNS 窗口
// 探索时均匀抽样，利用时按权重不放回抽样
type Policy struct {
	cfg     PolicyConfig
	eps     float64
	nurseW  []float64
	dayW    []float64
	nurses  []int // 候选护士（在职）
	rng     *rand.Rand
	explore int
	exploit int
}

// NewPolicy 创建策略，candidates 为可参与的护士下标
func NewPolicy(cfg PolicyConfig, candidates []int, days int, rng *rand.Rand) *Policy {
	p := &Policy{
		cfg:    cfg,
		eps:    cfg.Epsilon,
		nurseW: make([]float64, len(candidates)),
		dayW:   make([]float64, days),
		nurses: append([]int(nil), candidates...),
		rng:    rng,
	}
	for i := range p.nurseW {
		p.nurseW[i] = 1
	}
	for i := range p.dayW {
		p.dayW[i] = 1
	}
	return p
}

// Epsilon 当前探索概率
func (p *Policy) Epsilon() float64 { return p.eps }

// Select 选择窗口的护士与日期
func (p *Policy) Select() (nurses, days []int) {
	kn := min(p.cfg.WindowNurses, len(p.nurses))
	kd := min(p.cfg.WindowDays, len(p.dayW))

	var ni []int
	if p.rng.Float64() < p.eps {
		p.explore++
		ni = p.rng.Perm(len(p.nurses))[:kn]
		days = p.rng.Perm(len(p.dayW))[:kd]
	} else {
		p.exploit++
		ni = weightedSample(p.rng, p.nurseW, kn)
		days = weightedSample(p.rng, p.dayW, kd)
	}
	for _, i := range ni {
		nurses = append(nurses, p.nurses[i])
	}
	p.eps = max(p.cfg.EpsilonEnd, p.eps*p.cfg.Decay)
	return nurses, days
}

// Update 按迭代结果调整被选护士与日期的权重
func (p *Policy) Update(ok bool, nurses, days []int) {
	delta := -p.cfg.Penalty
	if ok {
		delta = p.cfg.Reward
	}
	pos := make(map[int]int, len(p.nurses))
	for i, n := range p.nurses {
		pos[n] = i
	}
	for _, n := range nurses {
		if i, found := pos[n]; found {
			p.nurseW[i] = max(p.cfg.MinWeight, p.nurseW[i]+delta)
		}
	}
	for _, d := range days {
		if d >= 0 && d < len(p.dayW) {
			p.dayW[d] = max(p.cfg.MinWeight, p.dayW[d]+delta)
		}
	}
}

// weightedSample 按权重不放回抽取 k 个下标
func weightedSample(rng *rand.Rand, weights []float64, k int) []int {
	w := append([]float64(nil), weights...)
	out := make([]int, 0, k)
	for len(out) < k {
		total, lastPos := 0.0, -1
		for i, v := range w {
			if v > 0 {
				total += v
				lastPos = i
			}
		}
		if lastPos < 0 {
			break
		}
		r := rng.Float64() * total
		pick := lastPos
		for i, v := range w {
			if v <= 0 {
				continue
			}
			if r < v {
				pick = i
				break
			}
			r -= v
		}
		out = append(out, pick)
		w[pick] = 0
	}
	return out
}
