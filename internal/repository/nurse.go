package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/paiban/nurseroster/pkg/model"
)

// NurseRepository 病区护士仓储
type NurseRepository struct {
	db DB
}

// NewNurseRepository 创建护士仓储
func NewNurseRepository(db DB) *NurseRepository {
	return &NurseRepository{db: db}
}

// Upsert 写入或更新病区护士
func (r *NurseRepository) Upsert(ctx context.Context, ward string, nurses []model.NurseRecord) error {
	query := `
		INSERT INTO nurses (
			ward, nurse_id, name, experience, is_head_nurse, is_night_nurse,
			off_adjustment, preceptor_id, joining_date, resignation_date, sequence, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ward, nurse_id) DO UPDATE SET
			name = excluded.name,
			experience = excluded.experience,
			is_head_nurse = excluded.is_head_nurse,
			is_night_nurse = excluded.is_night_nurse,
			off_adjustment = excluded.off_adjustment,
			preceptor_id = excluded.preceptor_id,
			joining_date = excluded.joining_date,
			resignation_date = excluded.resignation_date,
			sequence = excluded.sequence,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	for _, n := range nurses {
		_, err := r.db.ExecContext(ctx, query,
			ward, n.NurseID, n.Name, n.Experience, n.IsHeadNurse, n.IsNightNurse,
			n.PersonalOffAdjustment, n.PreceptorID, n.JoiningDate, n.ResignationDate, n.Sequence, now,
		)
		if err != nil {
			return fmt.Errorf("保存护士 %s 失败: %w", n.NurseID, err)
		}
	}
	return nil
}

// ListByWard 病区全部护士，按 sequence 排序
func (r *NurseRepository) ListByWard(ctx context.Context, ward string) ([]model.NurseRecord, error) {
	query := `
		SELECT nurse_id, name, experience, is_head_nurse, is_night_nurse,
			off_adjustment, preceptor_id, joining_date, resignation_date, sequence
		FROM nurses
		WHERE ward = ?
		ORDER BY sequence, nurse_id
	`
	rows, err := r.db.QueryContext(ctx, query, ward)
	if err != nil {
		return nil, fmt.Errorf("查询护士列表失败: %w", err)
	}
	defer rows.Close()

	var out []model.NurseRecord
	for rows.Next() {
		var n model.NurseRecord
		if err := rows.Scan(
			&n.NurseID, &n.Name, &n.Experience, &n.IsHeadNurse, &n.IsNightNurse,
			&n.PersonalOffAdjustment, &n.PreceptorID, &n.JoiningDate, &n.ResignationDate, &n.Sequence,
		); err != nil {
			return nil, fmt.Errorf("扫描护士数据失败: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Delete 删除病区护士
func (r *NurseRepository) Delete(ctx context.Context, ward, nurseID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM nurses WHERE ward = ? AND nurse_id = ?`, ward, nurseID)
	if err != nil {
		return fmt.Errorf("删除护士失败: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
