// Package preference 将护士的休息/班次/配对请求转换为偏好矩阵
package preference

// Matrix 稠密偏好张量 [nurse][day][shift]，未设置的单元格为0
type Matrix struct {
	nurses int
	days   int
	shifts int
	data   []float64
}

// NewMatrix 创建全零偏好矩阵
func NewMatrix(nurses, days, shifts int) *Matrix {
	return &Matrix{
		nurses: nurses,
		days:   days,
		shifts: shifts,
		data:   make([]float64, nurses*days*shifts),
	}
}

// Dims 返回矩阵维度
func (m *Matrix) Dims() (nurses, days, shifts int) {
	return m.nurses, m.days, m.shifts
}

// Get 读取偏好值
func (m *Matrix) Get(n, d, s int) float64 {
	return m.data[(n*m.days+d)*m.shifts+s]
}

// Set 写入偏好值
func (m *Matrix) Set(n, d, s int, v float64) {
	m.data[(n*m.days+d)*m.shifts+s] = v
}

// PairKind 配对类型
type PairKind string

const (
	PairTogether PairKind = "together" // 希望同班
	PairApart    PairKind = "apart"    // 希望错开
)

// PairSource 配对来源
type PairSource string

const (
	SourceRequest   PairSource = "request"   // 护士本人请求
	SourcePreceptor PairSource = "preceptor" // 带教自动注入
)

// PairRequest 有方向的配对请求（从请求者视角统计满意度）
type PairRequest struct {
	Requester int        `json:"requester"`
	Target    int        `json:"target"`
	Weight    float64    `json:"weight"`
	Kind      PairKind   `json:"kind"`
	Source    PairSource `json:"source"`
}

// PairSet 配对偏好
// Together/Apart 为对称矩阵，Requests 保留请求方向
type PairSet struct {
	Together [][]float64
	Apart    [][]float64
	Requests []PairRequest
}

// NewPairSet 创建空配对集合
func NewPairSet(nurses int) *PairSet {
	ps := &PairSet{
		Together: make([][]float64, nurses),
		Apart:    make([][]float64, nurses),
	}
	for i := 0; i < nurses; i++ {
		ps.Together[i] = make([]float64, nurses)
		ps.Apart[i] = make([]float64, nurses)
	}
	return ps
}

// add 写入对称权重并记录请求方向；同方向、同类型、同来源的重复请求只保留一条
func (ps *PairSet) add(req PairRequest) {
	mat := ps.Together
	if req.Kind == PairApart {
		mat = ps.Apart
	}
	mat[req.Requester][req.Target] = req.Weight
	mat[req.Target][req.Requester] = req.Weight

	for i, r := range ps.Requests {
		if r.Requester == req.Requester && r.Target == req.Target && r.Kind == req.Kind && r.Source == req.Source {
			ps.Requests[i] = req
			return
		}
	}
	ps.Requests = append(ps.Requests, req)
}

// UserRequests 返回用户请求（排除带教注入）
func (ps *PairSet) UserRequests() []PairRequest {
	out := make([]PairRequest, 0, len(ps.Requests))
	for _, r := range ps.Requests {
		if r.Source != SourcePreceptor {
			out = append(out, r)
		}
	}
	return out
}

// PreceptorPairs 返回带教配对
func (ps *PairSet) PreceptorPairs() []PairRequest {
	var out []PairRequest
	for _, r := range ps.Requests {
		if r.Source == SourcePreceptor {
			out = append(out, r)
		}
	}
	return out
}

// Pair 无序配对及其权重，供求解器计算同班/错开项
type Pair struct {
	A, B   int
	Weight float64
}

// TogetherPairs 返回 Together 矩阵中的无序配对
func (ps *PairSet) TogetherPairs() []Pair {
	return upperPairs(ps.Together)
}

// ApartPairs 返回 Apart 矩阵中的无序配对
func (ps *PairSet) ApartPairs() []Pair {
	return upperPairs(ps.Apart)
}

func upperPairs(mat [][]float64) []Pair {
	var out []Pair
	for i := range mat {
		for j := i + 1; j < len(mat[i]); j++ {
			if mat[i][j] > 0 {
				out = append(out, Pair{A: i, B: j, Weight: mat[i][j]})
			}
		}
	}
	return out
}
