package optimizer

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
)

// OptimizationConfig 优化配置
type OptimizationConfig struct {
	MaxIterations    int           `json:"max_iterations" yaml:"max_iterations"`       // 最大迭代次数，0 表示只受时间限制
	MaxTime          time.Duration `json:"max_time" yaml:"max_time"`                   // 最大运行时间
	InitialTemp      float64       `json:"initial_temp" yaml:"initial_temp"`           // 模拟退火初始温度
	FinalTemp        float64       `json:"final_temp" yaml:"final_temp"`               // 到达时间上限时的温度
	TabuSize         int           `json:"tabu_size" yaml:"tabu_size"`                 // 禁忌表大小
	NeighborhoodSize int           `json:"neighborhood_size" yaml:"neighborhood_size"` // 每次迭代评估的候选移动数
	ParallelWorkers  int           `json:"parallel_workers" yaml:"parallel_workers"`   // 并行工作数
	StopOnPlateau    bool          `json:"stop_on_plateau" yaml:"stop_on_plateau"`     // 平台期处理：有时间上限时从最优解扰动重启，否则停止
	PlateauThreshold int           `json:"plateau_threshold" yaml:"plateau_threshold"` // 平台期阈值（无改进迭代次数）
	GapLimit         float64       `json:"gap_limit" yaml:"gap_limit"`                 // 相对下界间隙达到该值即停止
	Seed             int64         `json:"seed" yaml:"seed"`
}

// DefaultOptConfig 默认优化配置
func DefaultOptConfig() *OptimizationConfig {
	return &OptimizationConfig{
		MaxTime:          10 * time.Second,
		InitialTemp:      100.0,
		FinalTemp:        1.0,
		TabuSize:         50,
		NeighborhoodSize: 3,
		ParallelWorkers:  4,
		StopOnPlateau:    true,
		PlateauThreshold: 50000,
		GapLimit:         0.05,
		Seed:             1,
	}
}

// StageTemperatures 各阶段的默认起止温度
func StageTemperatures(stage Stage) (initial, final float64) {
	switch stage {
	case StageCoverage:
		return 500, 1
	case StageSafety:
		return 3, 0.05
	case StagePreference, StageRepair:
		return 300, 1
	}
	return 1000, 1
}

// Solution 一次搜索的结果
type Solution struct {
	Roster     *model.Roster `json:"-"`
	Energy     int64         `json:"energy"`
	Feasible   bool          `json:"feasible"` // 满足上一阶段的上界
	Evaluation Evaluation    `json:"evaluation"`
	Iterations int           `json:"iterations"`
	Worker     int           `json:"worker"`
	Gap        float64       `json:"gap"`
	Restarts   int           `json:"restarts"`
	StopReason string        `json:"stop_reason"`
}

// perturbMoves 平台期重启时施加的随机移动数
const perturbMoves = 4

// LocalSearchOptimizer 模拟退火 + 禁忌表的局部搜索
type LocalSearchOptimizer struct {
	config   *OptimizationConfig
	tabuList *TabuList
	rng      *rand.Rand
	worker   int
	log      zerolog.Logger
}

// NewLocalSearchOptimizer 创建局部搜索优化器
func NewLocalSearchOptimizer(config *OptimizationConfig, worker int) *LocalSearchOptimizer {
	if config == nil {
		config = DefaultOptConfig()
	}
	return &LocalSearchOptimizer{
		config:   config,
		tabuList: NewTabuList(config.TabuSize),
		rng:      rand.New(rand.NewSource(config.Seed + int64(worker))),
		worker:   worker,
		log:      logger.Get().With().Str("component", "optimizer").Int("worker", worker).Logger(),
	}
}

// relativeGap 与下界的相对间隙
func relativeGap(energy, bound int64) float64 {
	den := math.Max(1, math.Abs(float64(energy)))
	return float64(energy-bound) / den
}

// Optimize 从 start 出发在 space 内搜索，返回见过的最优排班
// ctx 取消或超时时返回当前最优解
func (o *LocalSearchOptimizer) Optimize(ctx context.Context, m *Model, start *model.Roster, obj Objective, space *MoveSpace) *Solution {
	began := time.Now()
	var baseline = obj.Pins.Instances
	if !obj.needsBaseline() {
		baseline = nil
	}
	st := newState(m, start, baseline)
	gen := NewNeighborhoodGenerator(space, o.rng)
	bound := obj.LowerBound(m)

	current := obj.Energy(st)
	bestEnergy := current
	best := st.grid.Clone()

	t0, t1 := o.config.InitialTemp, o.config.FinalTemp
	if t0 <= 0 {
		t0, t1 = StageTemperatures(obj.Stage)
	}
	if t1 <= 0 || t1 > t0 {
		t1 = t0
	}
	temperature := t0
	k := max(1, o.config.NeighborhoodSize)

	sol := &Solution{Worker: o.worker}
	noImprovement := 0
	iter := 0

	if space.Size() == 0 {
		sol.StopReason = "empty"
	}
	for ; sol.StopReason == "" && (o.config.MaxIterations <= 0 || iter < o.config.MaxIterations); iter++ {
		if relativeGap(bestEnergy, bound) <= o.config.GapLimit {
			sol.StopReason = "gap"
			break
		}
		if iter&63 == 0 {
			if ctx.Err() != nil {
				sol.StopReason = "cancelled"
				break
			}
			if o.config.MaxTime > 0 {
				elapsed := time.Since(began)
				if elapsed >= o.config.MaxTime {
					sol.StopReason = "time"
					break
				}
				// 按时间几何降温
				frac := float64(elapsed) / float64(o.config.MaxTime)
				temperature = t0 * math.Pow(t1/t0, frac)
			}
		}

		// 评估 k 个候选，取最优的非禁忌移动（优于历史最优时无视禁忌）
		var chosen Move
		chosenEnergy := int64(math.MaxInt64)
		found := false
		for i := 0; i < k; i++ {
			mv, ok := gen.Generate(st, obj.Stage)
			if !ok {
				continue
			}
			mv.apply(st)
			e := obj.Energy(st)
			mv.undo(st)
			if o.isTabu(&mv) && e >= bestEnergy {
				continue
			}
			if !found || e < chosenEnergy {
				chosen, chosenEnergy, found = mv, e, true
			}
		}
		if !found {
			noImprovement++
			continue
		}

		if o.rng.Float64() < boltzmannProbability(float64(chosenEnergy-current), temperature) {
			chosen.apply(st)
			current = chosenEnergy
			for i := 0; i < chosen.size; i++ {
				c := chosen.changes[i]
				o.tabuList.Add(moveKey(c.n, c.d, c.from))
			}
			if current < bestEnergy {
				bestEnergy = current
				best.CopyFrom(st.grid)
				noImprovement = 0
				continue
			}
		}
		noImprovement++

		if o.config.StopOnPlateau && noImprovement >= o.config.PlateauThreshold {
			if o.config.MaxTime <= 0 {
				sol.StopReason = "plateau"
				break
			}
			// 温度仍按时间下降，直到间隙或时间上限
			st = newState(m, best, baseline)
			o.perturb(st, gen)
			current = obj.Energy(st)
			if current < bestEnergy {
				bestEnergy = current
				best.CopyFrom(st.grid)
			}
			o.tabuList.Clear()
			noImprovement = 0
			sol.Restarts++
		}
	}
	if sol.StopReason == "" {
		sol.StopReason = "iterations"
	}

	final := newState(m, best, baseline)
	sol.Roster = final.grid
	sol.Energy = obj.Energy(final)
	sol.Feasible = obj.Feasible(final)
	sol.Evaluation = evaluationOf(final)
	sol.Iterations = iter
	sol.Gap = relativeGap(sol.Energy, bound)

	o.log.Debug().
		Str("stage", obj.Stage.String()).
		Int("iterations", iter).
		Int64("energy", sol.Energy).
		Float64("gap", sol.Gap).
		Int("restarts", sol.Restarts).
		Str("stop", sol.StopReason).
		Dur("elapsed", time.Since(began)).
		Msg("局部搜索完成")
	return sol
}

// perturb 从最优解出发做几次随机的同日交换，覆盖不变
func (o *LocalSearchOptimizer) perturb(st *state, gen *NeighborhoodGenerator) {
	for i := 0; i < perturbMoves; i++ {
		mv, ok := gen.swapMove(st, -1, -1)
		if !ok {
			mv, ok = gen.changeMove(st, -1, -1, -1)
		}
		if ok {
			mv.apply(st)
		}
	}
}

func (o *LocalSearchOptimizer) isTabu(mv *Move) bool {
	for i := 0; i < mv.size; i++ {
		c := mv.changes[i]
		if o.tabuList.Contains(moveKey(c.n, c.d, c.to)) {
			return true
		}
	}
	return false
}

// moveKey 单元格取值的哈希 (FNV-1a)
func moveKey(n, d, s int) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:], uint32(d))
	binary.LittleEndian.PutUint32(buf[8:], uint32(s))
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

// boltzmannProbability 计算模拟退火的接受概率
// delta: 能量差 (new - old)
// temperature: 当前温度
func boltzmannProbability(delta, temperature float64) float64 {
	if delta <= 0 {
		return 1.0 // 更优解总是接受
	}
	if temperature <= 0 {
		return 0.0 // 温度为0时不接受更差的解
	}
	return math.Exp(-delta / temperature)
}

// TabuList 禁忌表（使用uint64哈希作为键提高性能）
// 每个搜索协程独占一个，不做并发保护
type TabuList struct {
	items   map[uint64]struct{}
	order   []uint64
	head    int
	maxSize int
}

// NewTabuList 创建禁忌表
func NewTabuList(size int) *TabuList {
	if size < 1 {
		size = 1
	}
	return &TabuList{
		items:   make(map[uint64]struct{}, size),
		order:   make([]uint64, 0, size),
		maxSize: size,
	}
}

// Add 添加到禁忌表，超出容量时移除最旧的
func (t *TabuList) Add(key uint64) {
	if _, exists := t.items[key]; exists {
		return
	}
	if len(t.order) < t.maxSize {
		t.order = append(t.order, key)
	} else {
		delete(t.items, t.order[t.head])
		t.order[t.head] = key
		t.head = (t.head + 1) % t.maxSize
	}
	t.items[key] = struct{}{}
}

// Contains 检查是否在禁忌表中
func (t *TabuList) Contains(key uint64) bool {
	_, exists := t.items[key]
	return exists
}

// Len 当前条目数
func (t *TabuList) Len() int { return len(t.items) }

// Clear 清空禁忌表
func (t *TabuList) Clear() {
	t.items = make(map[uint64]struct{}, t.maxSize)
	t.order = t.order[:0]
	t.head = 0
}
