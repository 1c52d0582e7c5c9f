package engine

import (
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/preference"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
)

// Request 排班生成请求
type Request struct {
	RunID  string              `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Year   int                 `json:"year" yaml:"year"`
	Month  int                 `json:"month" yaml:"month"`
	Config *model.RosterConfig `json:"config" yaml:"config"`
	Nurses []model.NurseRecord `json:"nurses" yaml:"nurses"`

	// Payloads 上游的原始偏好数据，键为护士 db id
	Payloads map[string]preference.Payload `json:"payloads,omitempty" yaml:"payloads,omitempty"`
	// Requests 结构化偏好，与 Payloads 合并，同一单元格以此为准
	Requests *preference.Requests `json:"requests,omitempty" yaml:"requests,omitempty"`

	// PreviousRoster 上月每位护士的逐日代码，用于生成跨月边界约束
	PreviousRoster map[string][]string `json:"previous_roster,omitempty" yaml:"previous_roster,omitempty"`
	Lookback       int                 `json:"lookback,omitempty" yaml:"lookback,omitempty"`

	Solver  string               `json:"solver,omitempty" yaml:"solver,omitempty"` // staged/legacy/greedy
	Options *solver.Options      `json:"options,omitempty" yaml:"options,omitempty"`
	LNS     *optimizer.LNSConfig `json:"lns,omitempty" yaml:"lns,omitempty"`
	// RepairPartial 求解结果为 partial 且未配置 LNS 时，用默认参数修复
	RepairPartial bool `json:"repair_partial,omitempty" yaml:"repair_partial,omitempty"`
}

func (r *Request) solverOptions() solver.Options {
	if r.Options == nil {
		return solver.DefaultOptions()
	}
	return *r.Options
}

// lnsConfig 是否运行 LNS 以及使用的参数
func (r *Request) lnsConfig(status model.Status) (optimizer.LNSConfig, bool) {
	switch {
	case status == model.StatusFailure:
		return optimizer.LNSConfig{}, false
	case r.LNS != nil:
		return *r.LNS, r.LNS.MaxIterations > 0
	case r.RepairPartial && status == model.StatusPartial:
		cfg := optimizer.DefaultLNSConfig()
		if r.Options != nil {
			cfg.Seed = r.Options.Seed
		}
		return cfg, true
	}
	return optimizer.LNSConfig{}, false
}
