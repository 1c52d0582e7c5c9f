package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Nurse 护士（一次排班内的静态属性）
type Nurse struct {
	ID                    int        `json:"id"`    // 排班内部索引
	DBID                  string     `json:"db_id"` // 外部/数据库ID
	Name                  string     `json:"name"`
	ExperienceYears       int        `json:"experience_years"`
	IsHeadNurse           bool       `json:"is_head_nurse"`
	IsNightNurse          bool       `json:"is_night_nurse"`
	PersonalOffAdjustment int        `json:"personal_off_adjustment"`
	PreceptorID           string     `json:"preceptor_id,omitempty"`
	JoiningDate           *time.Time `json:"joining_date,omitempty"`
	ResignationDate       *time.Time `json:"resignation_date,omitempty"`
	Sequence              int        `json:"sequence"`

	RemainingOffDays int `json:"remaining_off_days"`
}

// NurseRecord 护士输入记录（来自持久层或请求体）
type NurseRecord struct {
	NurseID               string `json:"nurse_id" yaml:"nurse_id"`
	Name                  string `json:"name" yaml:"name"`
	Experience            int    `json:"experience" yaml:"experience"`
	IsHeadNurse           bool   `json:"is_head_nurse" yaml:"is_head_nurse"`
	IsNightNurse          bool   `json:"is_night_nurse" yaml:"is_night_nurse"`
	PersonalOffAdjustment int    `json:"personal_off_adjustment" yaml:"personal_off_adjustment"`
	PreceptorID           string `json:"preceptor_id,omitempty" yaml:"preceptor_id,omitempty"`
	JoiningDate           string `json:"joining_date,omitempty" yaml:"joining_date,omitempty"`         // YYYY-MM-DD
	ResignationDate       string `json:"resignation_date,omitempty" yaml:"resignation_date,omitempty"` // YYYY-MM-DD
	Sequence              int    `json:"sequence" yaml:"sequence"`
}

// ParseNurses 解析记录、排序并分配内部索引
// 排序规则：sequence 升序 → 年资降序 → db id 升序
func ParseNurses(records []NurseRecord) ([]*Nurse, error) {
	nurses := make([]*Nurse, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		id := strings.TrimSpace(r.NurseID)
		if id == "" {
			return nil, fmt.Errorf("第%d条护士记录缺少 nurse_id", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("护士ID重复: %s", id)
		}
		seen[id] = true
		if r.Experience < 0 {
			return nil, fmt.Errorf("护士 %s 的年资不能为负数", id)
		}

		n := &Nurse{
			DBID:                  id,
			Name:                  r.Name,
			ExperienceYears:       r.Experience,
			IsHeadNurse:           r.IsHeadNurse,
			IsNightNurse:          r.IsNightNurse,
			PersonalOffAdjustment: r.PersonalOffAdjustment,
			PreceptorID:           strings.TrimSpace(r.PreceptorID),
			Sequence:              r.Sequence,
		}
		var err error
		if n.JoiningDate, err = parseOptionalDate(r.JoiningDate); err != nil {
			return nil, fmt.Errorf("护士 %s 入职日期无效: %w", id, err)
		}
		if n.ResignationDate, err = parseOptionalDate(r.ResignationDate); err != nil {
			return nil, fmt.Errorf("护士 %s 离职日期无效: %w", id, err)
		}
		nurses = append(nurses, n)
	}

	SortNurses(nurses)
	return nurses, nil
}

// SortNurses 按排班顺序排序并重新编号
func SortNurses(nurses []*Nurse) {
	sort.SliceStable(nurses, func(i, j int) bool {
		a, b := nurses[i], nurses[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		if a.ExperienceYears != b.ExperienceYears {
			return a.ExperienceYears > b.ExperienceYears
		}
		return a.DBID < b.DBID
	})
	for i, n := range nurses {
		n.ID = i
	}
}

func parseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ActiveWindow 返回护士在目标月可排班的日索引区间 [first, last]
// ok=false 表示整月不在职
func (n *Nurse) ActiveWindow(m Month) (first, last int, ok bool) {
	first, last = 0, m.Days()-1
	if n.JoiningDate != nil {
		if j := m.DayIndex(*n.JoiningDate); j > first {
			first = j
		}
	}
	if n.ResignationDate != nil {
		if r := m.DayIndex(*n.ResignationDate); r < last {
			last = r
		}
	}
	if first > last || first >= m.Days() || last < 0 {
		return 0, -1, false
	}
	return first, last, true
}

// IsActive 某天是否在职
func (n *Nurse) IsActive(m Month, day int) bool {
	first, last, ok := n.ActiveWindow(m)
	return ok && day >= first && day <= last
}

// InitOffDays 计算本月可用休息天数（只计算一次，排班中不修改）
func (n *Nurse) InitOffDays(cfg *RosterConfig) int {
	total := cfg.GlobalMonthlyOffDays + cfg.StandardPersonalOffDays + n.PersonalOffAdjustment
	if total < 0 {
		total = 0
	}
	n.RemainingOffDays = total
	return total
}

// IsExperienced 是否满足资深年限
func (n *Nurse) IsExperienced(cfg *RosterConfig) bool {
	return n.ExperienceYears >= cfg.MinExperiencePerShift
}

// CanWork 护士是否可以上某班次（夜班专职护士只能上夜班或休息）
func (n *Nurse) CanWork(code ShiftCode) bool {
	if !n.IsNightNurse {
		return true
	}
	return code == ShiftNight || code == ShiftOff
}
