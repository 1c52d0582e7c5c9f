// Package validator 提供排班锁定与冲突检测
package validator

import (
	"fmt"

	"github.com/paiban/nurseroster/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictForcedOff    ConflictType = "forced_off"    // 强制休息与固定班次冲突
	ConflictForbidden    ConflictType = "forbidden"     // 禁止班次与固定班次冲突
	ConflictNightOnly    ConflictType = "night_only"    // 夜班专职护士被固定为 D/E
	ConflictUnknownNurse ConflictType = "unknown_nurse" // 护士不存在
	ConflictOutOfRange   ConflictType = "out_of_range"  // 日索引越界或不在职
	ConflictInvalidShift ConflictType = "invalid_shift" // 班次代码无效
	ConflictDuplicate    ConflictType = "duplicate"     // 同一单元格重复固定
	ConflictPinChanged   ConflictType = "pin_changed"   // 排班结果改动了固定单元格
	ConflictForbidUsed   ConflictType = "forbid_used"   // 排班结果使用了禁止班次
)

// Conflict 冲突信息
type Conflict struct {
	Type     ConflictType `json:"type"`
	Severity string       `json:"severity"` // error/warning
	NurseID  string       `json:"nurse_id,omitempty"`
	NurseIdx int          `json:"nurse_idx"`
	Day      int          `json:"day"`
	Shift    string       `json:"shift,omitempty"`
	Message  string       `json:"message"`
}

func warning(typ ConflictType, nurseID string, nurse, day int, shift, format string, args ...interface{}) Conflict {
	return Conflict{
		Type:     typ,
		Severity: "warning",
		NurseID:  nurseID,
		NurseIdx: nurse,
		Day:      day,
		Shift:    shift,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ConflictDetector 检测排班结果是否遵守锁定
type ConflictDetector struct {
	cfg   *model.RosterConfig
	locks *Locks
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(cfg *model.RosterConfig, locks *Locks) *ConflictDetector {
	return &ConflictDetector{cfg: cfg, locks: locks}
}

// DetectAll 检测所有锁定冲突
func (d *ConflictDetector) DetectAll(roster *model.Roster, nurses []*model.Nurse) []Conflict {
	var conflicts []Conflict

	for n := 0; n < roster.NumNurses() && n < d.locks.nurses; n++ {
		id := ""
		if n < len(nurses) {
			id = nurses[n].DBID
		}
		for day := 0; day < roster.NumDays() && day < d.locks.days; day++ {
			got := roster.Get(n, day)
			if want, ok := d.locks.Fixed(n, day); ok && got != want {
				conflicts = append(conflicts, Conflict{
					Type:     ConflictPinChanged,
					Severity: "error",
					NurseID:  id,
					NurseIdx: n,
					Day:      day,
					Shift:    string(d.cfg.Code(got)),
					Message:  fmt.Sprintf("护士 %s 第%d天固定为 %s，实际为 %s", id, day+1, d.cfg.Code(want), d.cfg.Code(got)),
				})
			}
			if got >= 0 && d.locks.IsForbidden(n, day, got) {
				conflicts = append(conflicts, Conflict{
					Type:     ConflictForbidUsed,
					Severity: "error",
					NurseID:  id,
					NurseIdx: n,
					Day:      day,
					Shift:    string(d.cfg.Code(got)),
					Message:  fmt.Sprintf("护士 %s 第%d天使用了禁止班次 %s", id, day+1, d.cfg.Code(got)),
				})
			}
		}
	}

	return conflicts
}
