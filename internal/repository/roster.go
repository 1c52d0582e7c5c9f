package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paiban/nurseroster/internal/database"
	"github.com/paiban/nurseroster/pkg/engine"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/stats"
)

// Roster 已生成的月排班
type Roster struct {
	ID             uuid.UUID           `json:"id"`
	Ward           string              `json:"ward"`
	Year           int                 `json:"year"`
	Month          int                 `json:"month"`
	RunID          string              `json:"run_id"`
	Solver         string              `json:"solver"`
	Status         model.Status        `json:"status"`
	HardViolations int                 `json:"hard_violations"`
	SoftViolations int                 `json:"soft_violations"`
	Assignments    map[string][]string `json:"assignments,omitempty"` // nurse_id -> 逐日代码
	Report         *stats.Report       `json:"report,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// RosterFromOutput 由生成结果构建待保存的记录
func RosterFromOutput(ward string, year, month int, out *engine.Output) *Roster {
	r := &Roster{
		Ward:        ward,
		Year:        year,
		Month:       month,
		RunID:       out.RunID,
		Solver:      out.Solver,
		Status:      out.Status,
		Assignments: out.Roster,
		Report:      out.Report,
	}
	for _, v := range out.Violations {
		if v.Category == constraint.CategoryHard {
			r.HardViolations++
		} else {
			r.SoftViolations++
		}
	}
	return r
}

// Transactor 支持事务的数据库
type Transactor interface {
	DB
	Transaction(ctx context.Context, fn func(tx *database.Tx) error) error
}

// RosterRepository 排班仓储
type RosterRepository struct {
	db Transactor
}

// NewRosterRepository 创建排班仓储
func NewRosterRepository(db Transactor) *RosterRepository {
	return &RosterRepository{db: db}
}

const rosterColumns = `id, ward, year, month, run_id, solver, status,
	hard_violations, soft_violations, report, created_at, updated_at`

// Save 保存排班及逐日分配
func (r *RosterRepository) Save(ctx context.Context, roster *Roster) error {
	if roster.ID == uuid.Nil {
		roster.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	roster.CreatedAt = now
	roster.UpdatedAt = now

	reportJSON, err := json.Marshal(roster.Report)
	if err != nil {
		return fmt.Errorf("序列化统计报告失败: %w", err)
	}

	return r.db.Transaction(ctx, func(tx *database.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rosters (`+rosterColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			roster.ID, roster.Ward, roster.Year, roster.Month, roster.RunID, roster.Solver, string(roster.Status),
			roster.HardViolations, roster.SoftViolations, string(reportJSON), roster.CreatedAt, roster.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("创建排班记录失败: %w", err)
		}

		for nurseID, codes := range roster.Assignments {
			for day, code := range codes {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO roster_assignments (roster_id, nurse_id, day, shift) VALUES (?, ?, ?, ?)`,
					roster.ID, nurseID, day, code)
				if err != nil {
					return fmt.Errorf("写入排班分配失败: %w", err)
				}
			}
		}
		return nil
	})
}

// GetByID 根据ID获取排班（含分配）
func (r *RosterRepository) GetByID(ctx context.Context, id uuid.UUID) (*Roster, error) {
	roster, err := r.scanRoster(r.db.QueryRowContext(ctx,
		`SELECT `+rosterColumns+` FROM rosters WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if roster.Assignments, err = r.assignments(ctx, roster.ID); err != nil {
		return nil, err
	}
	return roster, nil
}

// Latest 病区某月最近一次生成的排班
func (r *RosterRepository) Latest(ctx context.Context, ward string, year, month int) (*Roster, error) {
	roster, err := r.scanRoster(r.db.QueryRowContext(ctx, `
		SELECT `+rosterColumns+` FROM rosters
		WHERE ward = ? AND year = ? AND month = ?
		ORDER BY created_at DESC
		LIMIT 1`, ward, year, month))
	if err != nil {
		return nil, err
	}
	if roster.Assignments, err = r.assignments(ctx, roster.ID); err != nil {
		return nil, err
	}
	return roster, nil
}

// Previous 上个月最近一次排班的逐日代码，用于跨月边界
// 上月没有排班时返回空 map
func (r *RosterRepository) Previous(ctx context.Context, ward string, year, month int) (map[string][]string, error) {
	m, err := model.NewMonth(year, month)
	if err != nil {
		return nil, err
	}
	prev := m.Previous()
	roster, err := r.Latest(ctx, ward, prev.Year, int(prev.Month))
	if errors.Is(err, ErrNotFound) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return roster.Assignments, nil
}

// List 列出排班（不含分配）
func (r *RosterRepository) List(ctx context.Context, filter ListFilter) ([]*Roster, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Ward != "" {
		conditions = append(conditions, "ward = ?")
		args = append(args, filter.Ward)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Year > 0 {
		conditions = append(conditions, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Month > 0 {
		conditions = append(conditions, "month = ?")
		args = append(args, filter.Month)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rosters "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计排班数量失败: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListFilter().Limit
	}
	query := `SELECT ` + rosterColumns + ` FROM rosters ` + whereClause + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询排班列表失败: %w", err)
	}
	defer rows.Close()

	var rosters []*Roster
	for rows.Next() {
		roster, err := r.scanRoster(rows)
		if err != nil {
			return nil, 0, err
		}
		rosters = append(rosters, roster)
	}
	return rosters, total, rows.Err()
}

// Delete 删除排班及其分配
func (r *RosterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM roster_assignments WHERE roster_id = ?", id); err != nil {
			return fmt.Errorf("删除排班分配失败: %w", err)
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM rosters WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("删除排班记录失败: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *RosterRepository) assignments(ctx context.Context, id uuid.UUID) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT nurse_id, day, shift FROM roster_assignments WHERE roster_id = ? ORDER BY nurse_id, day`, id)
	if err != nil {
		return nil, fmt.Errorf("查询排班分配失败: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var nurseID, code string
		var day int
		if err := rows.Scan(&nurseID, &day, &code); err != nil {
			return nil, fmt.Errorf("扫描排班分配失败: %w", err)
		}
		// 按 day 升序读取，缺失的日期补为未排班
		for len(out[nurseID]) < day {
			out[nurseID] = append(out[nurseID], model.UnassignedCode)
		}
		out[nurseID] = append(out[nurseID], code)
	}
	return out, rows.Err()
}

func (r *RosterRepository) scanRoster(row Scanner) (*Roster, error) {
	var roster Roster
	var status, reportJSON string
	err := row.Scan(
		&roster.ID, &roster.Ward, &roster.Year, &roster.Month, &roster.RunID, &roster.Solver, &status,
		&roster.HardViolations, &roster.SoftViolations, &reportJSON, &roster.CreatedAt, &roster.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("扫描排班数据失败: %w", err)
	}
	roster.Status = model.Status(status)
	if reportJSON != "" && reportJSON != "null" {
		roster.Report = &stats.Report{}
		if err := json.Unmarshal([]byte(reportJSON), roster.Report); err != nil {
			return nil, fmt.Errorf("解析统计报告失败: %w", err)
		}
	}
	return &roster, nil
}
