package optimizer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
)

// ParallelOptimizer 多起点并行搜索
// 每个工作协程使用 seed+worker 的随机源，从同一起点独立搜索，取能量最低者（同能量取编号最小者）
type ParallelOptimizer struct {
	config *OptimizationConfig
}

// NewParallelOptimizer 创建并行优化器
func NewParallelOptimizer(config *OptimizationConfig) *ParallelOptimizer {
	if config == nil {
		config = DefaultOptConfig()
	}
	return &ParallelOptimizer{config: config}
}

// Optimize 并行优化；所有协程结束后返回
func (p *ParallelOptimizer) Optimize(ctx context.Context, m *Model, start *model.Roster, obj Objective, space *MoveSpace) (*Solution, error) {
	workers := max(1, p.config.ParallelWorkers)
	began := time.Now()

	results := make([]*Solution, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			results[w] = NewLocalSearchOptimizer(p.config, w).Optimize(gctx, m, start, obj, space)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := results[0]
	for _, r := range results[1:] {
		if better(r, best) {
			best = r
		}
	}

	logger.Get().Debug().
		Str("component", "optimizer").
		Str("stage", obj.Stage.String()).
		Int("workers", workers).
		Int("best_worker", best.Worker).
		Int64("energy", best.Energy).
		Dur("elapsed", time.Since(began)).
		Msg("并行搜索完成")

	return best, ctx.Err()
}

// better 可行优先，其次能量更低，最后编号更小
func better(a, b *Solution) bool {
	if a.Feasible != b.Feasible {
		return a.Feasible
	}
	if a.Energy != b.Energy {
		return a.Energy < b.Energy
	}
	return a.Worker < b.Worker
}
