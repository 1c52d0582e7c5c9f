package constraint

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paiban/nurseroster/pkg/logger"
)

// Manager 约束管理器
// 同一 Type 只保留一个实例，硬约束排在前面，同类别按权重降序
type Manager struct {
	constraints []Constraint
	mu          sync.RWMutex
	logger      *logger.SchedulerLogger
}

// NewManager 创建约束管理器
func NewManager() *Manager {
	return &Manager{
		constraints: make([]Constraint, 0),
		logger:      logger.NewSchedulerLogger(),
	}
}

// Register 注册约束，同类型替换
func (m *Manager) Register(c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.constraints {
		if existing.Type() == c.Type() {
			m.constraints[i] = c
			return
		}
	}
	m.constraints = append(m.constraints, c)
	sort.SliceStable(m.constraints, func(i, j int) bool {
		ci, cj := m.constraints[i], m.constraints[j]
		if ci.Category() != cj.Category() {
			return ci.Category() == CategoryHard
		}
		return ci.Weight() > cj.Weight()
	})
}

// GetConstraint 按类型查找，不存在返回 nil
func (m *Manager) GetConstraint(t Type) Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.constraints {
		if c.Type() == t {
			return c
		}
	}
	return nil
}

// GetAll 获取所有约束
func (m *Manager) GetAll() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Constraint, len(m.constraints))
	copy(result, m.constraints)
	return result
}

// Types 已注册的约束类型
func (m *Manager) Types() map[Type]Category {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[Type]Category, len(m.constraints))
	for _, c := range m.constraints {
		out[c.Type()] = c.Category()
	}
	return out
}

// GetByCategory 按类别获取约束
func (m *Manager) GetByCategory(cat Category) []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Constraint
	for _, c := range m.constraints {
		if c.Category() == cat {
			result = append(result, c)
		}
	}
	return result
}

// Evaluate 评估整张排班
// 得分以每条约束在每个 (护士, 日) 上至多违反一次为满分基准
func (m *Manager) Evaluate(ctx *Context) *Result {
	constraints := m.GetAll()

	result := &Result{
		IsValid:        true,
		HardViolations: make([]Violation, 0),
		SoftViolations: make([]Violation, 0),
	}

	cells := len(ctx.Nurses) * ctx.Month.Days()
	maxPenalty := 0
	for _, c := range constraints {
		maxPenalty += c.Weight() * cells

		valid, penalty, violations := c.Evaluate(ctx)
		if valid {
			continue
		}
		result.TotalPenalty += penalty
		if c.Category() == CategoryHard {
			result.IsValid = false
			result.HardViolations = append(result.HardViolations, violations...)
			m.logger.ConstraintViolation(c.Name(), fmt.Sprintf("%d 处违规", len(violations)))
		} else {
			result.SoftViolations = append(result.SoftViolations, violations...)
		}
	}

	result.CalculateScore(maxPenalty)
	return result
}

// HardCount 硬约束违规数量
func (m *Manager) HardCount(ctx *Context) int {
	count := 0
	for _, c := range m.GetByCategory(CategoryHard) {
		_, _, violations := c.Evaluate(ctx)
		count += len(violations)
	}
	return count
}

// EvaluateCell 评估单元格当前班次
func (m *Manager) EvaluateCell(ctx *Context, nurse, day int) (bool, int, []Violation) {
	var violations []Violation
	totalPenalty := 0
	isValid := true

	shift := string(ctx.Config.Code(ctx.Roster.Get(nurse, day)))
	for _, c := range m.GetAll() {
		valid, penalty := c.EvaluateCell(ctx, nurse, day)
		if valid {
			continue
		}
		totalPenalty += penalty
		violations = append(violations, Violation{
			Type:     c.Type(),
			Name:     c.Name(),
			Category: c.Category(),
			Day:      day,
			NurseIdx: nurse,
			Shift:    shift,
			Message:  fmt.Sprintf("违反约束: %s", c.Name()),
			Severity: severityOf(c.Category()),
			Penalty:  penalty,
		})
		if c.Category() == CategoryHard {
			isValid = false
		}
	}
	return isValid, totalPenalty, violations
}

// CanAssign 检查单元格当前班次是否满足全部硬约束
func (m *Manager) CanAssign(ctx *Context, nurse, day int) (bool, string) {
	for _, c := range m.GetByCategory(CategoryHard) {
		if valid, _ := c.EvaluateCell(ctx, nurse, day); !valid {
			return false, fmt.Sprintf("违反硬约束: %s", c.Name())
		}
	}
	return true, ""
}

func severityOf(cat Category) string {
	if cat == CategoryHard {
		return "error"
	}
	return "warning"
}

// Count 返回约束数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.constraints)
}

// Summary 约束数量摘要
type Summary struct {
	Total int `json:"total"`
	Hard  int `json:"hard"`
	Soft  int `json:"soft"`
}

// Summary 返回约束摘要
func (m *Manager) Summary() Summary {
	var s Summary
	for _, cat := range m.Types() {
		s.Total++
		if cat == CategoryHard {
			s.Hard++
		} else {
			s.Soft++
		}
	}
	return s
}
