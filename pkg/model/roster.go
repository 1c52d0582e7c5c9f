package model

import "fmt"

// Roster 排班矩阵
// 每个 (护士, 日) 存一个班次索引，雇佣期外为 Unassigned
type Roster struct {
	nurses int
	days   int
	shifts int
	cells  []int
}

// NewRoster 创建全部为 Unassigned 的排班矩阵
func NewRoster(nurses, days, shifts int) *Roster {
	r := &Roster{
		nurses: nurses,
		days:   days,
		shifts: shifts,
		cells:  make([]int, nurses*days),
	}
	for i := range r.cells {
		r.cells[i] = Unassigned
	}
	return r
}

// NumNurses 护士数量
func (r *Roster) NumNurses() int { return r.nurses }

// NumDays 天数
func (r *Roster) NumDays() int { return r.days }

// NumShifts 班次类型数量
func (r *Roster) NumShifts() int { return r.shifts }

// Get 返回班次索引
func (r *Roster) Get(n, d int) int {
	return r.cells[n*r.days+d]
}

// Set 设置班次索引
func (r *Roster) Set(n, d, s int) {
	r.cells[n*r.days+d] = s
}

// Is 判断单元格是否为指定班次
func (r *Roster) Is(n, d, s int) bool {
	if d < 0 || d >= r.days {
		return false
	}
	return r.cells[n*r.days+d] == s
}

// Row 返回某护士整月班次（共享底层数组）
func (r *Roster) Row(n int) []int {
	return r.cells[n*r.days : (n+1)*r.days]
}

// Clone 深拷贝
func (r *Roster) Clone() *Roster {
	c := &Roster{nurses: r.nurses, days: r.days, shifts: r.shifts, cells: make([]int, len(r.cells))}
	copy(c.cells, r.cells)
	return c
}

// CopyFrom 从同尺寸矩阵复制内容
func (r *Roster) CopyFrom(src *Roster) {
	copy(r.cells, src.cells)
}

// CountOn 某天某班次的人数
func (r *Roster) CountOn(d, s int) int {
	count := 0
	for n := 0; n < r.nurses; n++ {
		if r.cells[n*r.days+d] == s {
			count++
		}
	}
	return count
}

// CountFor 某护士某班次的总数
func (r *Roster) CountFor(n, s int) int {
	count := 0
	for _, v := range r.Row(n) {
		if v == s {
			count++
		}
	}
	return count
}

// Tensor 导出 [nurse][day][shift] 布尔视图
func (r *Roster) Tensor() [][][]bool {
	t := make([][][]bool, r.nurses)
	for n := 0; n < r.nurses; n++ {
		t[n] = make([][]bool, r.days)
		for d := 0; d < r.days; d++ {
			t[n][d] = make([]bool, r.shifts)
			if s := r.Get(n, d); s >= 0 && s < r.shifts {
				t[n][d][s] = true
			}
		}
	}
	return t
}

// Codes 某护士逐日班次代码
func (r *Roster) Codes(cfg *RosterConfig, n int) []string {
	out := make([]string, r.days)
	for d := 0; d < r.days; d++ {
		out[d] = string(cfg.Code(r.Get(n, d)))
	}
	return out
}

// Equal 内容是否一致
func (r *Roster) Equal(o *Roster) bool {
	if o == nil || r.nurses != o.nurses || r.days != o.days {
		return false
	}
	for i := range r.cells {
		if r.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Diff 返回不同单元格的数量
func (r *Roster) Diff(o *Roster) int {
	diff := 0
	for i := range r.cells {
		if r.cells[i] != o.cells[i] {
			diff++
		}
	}
	return diff
}

// RosterFromCodes 由逐日代码构建矩阵，"-" 或空字符串视为 Unassigned
func RosterFromCodes(cfg *RosterConfig, rows [][]string, days int) (*Roster, error) {
	r := NewRoster(len(rows), days, cfg.NumShifts())
	for n, row := range rows {
		if len(row) != days {
			return nil, fmt.Errorf("第%d行天数为%d，应为%d", n, len(row), days)
		}
		for d, code := range row {
			if code == "" || code == UnassignedCode {
				continue
			}
			s, ok := cfg.Index(ShiftCode(code))
			if !ok {
				return nil, fmt.Errorf("第%d行第%d天班次代码无效: %s", n, d+1, code)
			}
			r.Set(n, d, s)
		}
	}
	return r, nil
}
