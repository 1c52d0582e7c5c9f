package preference

import (
	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/rs/zerolog"
)

// preceptorMultiplier 带教配对权重倍数
const preceptorMultiplier = 2.5

// Requests 结构化的偏好请求
// 日期均为 1 起始
type Requests struct {
	Off   map[string]map[int]float64                     `json:"off_requests,omitempty" yaml:"off_requests,omitempty"`           // nurse_id -> day -> delta
	Shift map[string]map[model.ShiftCode]map[int]float64 `json:"shift_preferences,omitempty" yaml:"shift_preferences,omitempty"` // nurse_id -> code -> day -> delta
	Pairs []PairInput                                    `json:"pair_preferences,omitempty" yaml:"pair_preferences,omitempty"`
}

// PairInput 配对请求输入（以 db id 表示）
type PairInput struct {
	NurseID  string     `json:"nurse_1" yaml:"nurse_1"`
	TargetID string     `json:"nurse_2" yaml:"nurse_2"`
	Weight   float64    `json:"weight" yaml:"weight"` // 0 表示使用 pair_preference_weight
	Kind     PairKind   `json:"kind" yaml:"kind"`
	Source   PairSource `json:"source,omitempty" yaml:"source,omitempty"`
}

// Merge 合并另一组请求（后者覆盖同一单元格）
func (r *Requests) Merge(o *Requests) {
	if o == nil {
		return
	}
	if r.Off == nil {
		r.Off = make(map[string]map[int]float64)
	}
	for id, days := range o.Off {
		if r.Off[id] == nil {
			r.Off[id] = make(map[int]float64)
		}
		for d, w := range days {
			r.Off[id][d] = w
		}
	}
	if r.Shift == nil {
		r.Shift = make(map[string]map[model.ShiftCode]map[int]float64)
	}
	for id, codes := range o.Shift {
		if r.Shift[id] == nil {
			r.Shift[id] = make(map[model.ShiftCode]map[int]float64)
		}
		for code, days := range codes {
			if r.Shift[id][code] == nil {
				r.Shift[id][code] = make(map[int]float64)
			}
			for d, w := range days {
				r.Shift[id][code][d] = w
			}
		}
	}
	r.Pairs = append(r.Pairs, o.Pairs...)
}

// Builder 偏好矩阵构建器
type Builder struct {
	cfg   *model.RosterConfig
	index *model.NurseIndex
	days  int
	log   *zerolog.Logger
}

// NewBuilder 创建构建器
func NewBuilder(cfg *model.RosterConfig, index *model.NurseIndex, days int) *Builder {
	l := logger.Get().With().Str("component", "preference").Logger()
	return &Builder{cfg: cfg, index: index, days: days, log: &l}
}

// Build 构建偏好矩阵与配对集合
// 无效的护士ID、日期、班次代码记录警告后跳过
func (b *Builder) Build(req *Requests) (*Matrix, *PairSet) {
	m := NewMatrix(b.index.Len(), b.days, b.cfg.NumShifts())
	pairs := NewPairSet(b.index.Len())
	if req == nil {
		return m, pairs
	}

	off := b.cfg.OffIndex()
	baseOff := b.cfg.BaseWeight(model.ShiftOff)
	for id, days := range req.Off {
		n, ok := b.index.Index(id)
		if !ok {
			b.log.Warn().Str("nurse_id", id).Msg("休息请求引用了未知护士，已跳过")
			continue
		}
		for day, delta := range days {
			if !b.validDay(id, day) {
				continue
			}
			m.Set(n, day-1, off, baseOff+delta)
		}
	}

	for id, codes := range req.Shift {
		n, ok := b.index.Index(id)
		if !ok {
			b.log.Warn().Str("nurse_id", id).Msg("班次请求引用了未知护士，已跳过")
			continue
		}
		for code, days := range codes {
			s, ok := b.cfg.Index(code)
			if !ok {
				b.log.Warn().Str("nurse_id", id).Str("shift", string(code)).Msg("无效的班次代码，已跳过")
				continue
			}
			base := b.cfg.BaseWeight(b.cfg.Code(s))
			for day, delta := range days {
				if !b.validDay(id, day) {
					continue
				}
				m.Set(n, day-1, s, base+delta)
			}
		}
	}

	for _, p := range req.Pairs {
		b.addPair(pairs, p)
	}
	return m, pairs
}

// AddPairs 追加配对（如带教注入）
func (b *Builder) AddPairs(ps *PairSet, inputs []PairInput) {
	for _, p := range inputs {
		b.addPair(ps, p)
	}
}

func (b *Builder) addPair(ps *PairSet, p PairInput) {
	n1, ok1 := b.index.Index(p.NurseID)
	n2, ok2 := b.index.Index(p.TargetID)
	if !ok1 || !ok2 {
		b.log.Warn().Str("nurse_1", p.NurseID).Str("nurse_2", p.TargetID).Msg("配对请求引用了未知护士，已跳过")
		return
	}
	if n1 == n2 {
		b.log.Warn().Str("nurse_id", p.NurseID).Msg("配对请求指向自己，已跳过")
		return
	}
	kind := p.Kind
	if kind != PairApart {
		kind = PairTogether
	}
	w := p.Weight
	if w < 0 {
		w = -w
	}
	if w == 0 {
		w = b.cfg.PairPreferenceWeight
	}
	src := p.Source
	if src == "" {
		src = SourceRequest
	}
	ps.add(PairRequest{Requester: n1, Target: n2, Weight: w, Kind: kind, Source: src})
}

func (b *Builder) validDay(id string, day int) bool {
	if day < 1 || day > b.days {
		b.log.Warn().Str("nurse_id", id).Int("day", day).Msg("请求日期超出当月范围，已跳过")
		return false
	}
	return true
}

// PreceptorPairs 根据护士的 preceptor_id 生成带教同班配对
// 权重为 pair_preference_weight × 2.5，按无序对去重
func PreceptorPairs(cfg *model.RosterConfig, nurses []*model.Nurse) []PairInput {
	valid := make(map[string]bool, len(nurses))
	for _, n := range nurses {
		valid[n.DBID] = true
	}

	weight := cfg.PairPreferenceWeight * preceptorMultiplier
	seen := make(map[[2]string]bool)
	var out []PairInput
	for _, n := range nurses {
		mentor := n.PreceptorID
		if mentor == "" || mentor == n.DBID || !valid[mentor] {
			continue
		}
		key := [2]string{n.DBID, mentor}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, PairInput{
			NurseID:  n.DBID,
			TargetID: mentor,
			Weight:   weight,
			Kind:     PairTogether,
			Source:   SourcePreceptor,
		})
	}
	return out
}
