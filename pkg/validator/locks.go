package validator

import (
	"sort"

	"github.com/paiban/nurseroster/pkg/errors"
	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
)

type pinSource uint8

const (
	pinNone pinSource = iota
	pinUser           // 护士长手动固定
	pinLaw            // 跨月边界强制休息
)

// Locks 排班锁定：固定单元格与禁止班次
type Locks struct {
	nurses, days int

	fixed     []int // 班次索引，-1 表示未固定
	source    []pinSource
	forbidden []uint64 // 按班次索引的位图

	Warnings []Conflict `json:"warnings,omitempty"`
}

// NewLocks 创建空锁定
func NewLocks(nurses, days int) *Locks {
	l := &Locks{
		nurses:    nurses,
		days:      days,
		fixed:     make([]int, nurses*days),
		source:    make([]pinSource, nurses*days),
		forbidden: make([]uint64, nurses*days),
	}
	for i := range l.fixed {
		l.fixed[i] = model.Unassigned
	}
	return l
}

func (l *Locks) at(n, d int) int { return n*l.days + d }

func (l *Locks) inRange(n, d int) bool {
	return n >= 0 && n < l.nurses && d >= 0 && d < l.days
}

// Pin 固定单元格
func (l *Locks) Pin(n, d, s int) {
	l.fixed[l.at(n, d)] = s
	l.source[l.at(n, d)] = pinUser
}

// Unpin 取消固定
func (l *Locks) Unpin(n, d int) {
	l.fixed[l.at(n, d)] = model.Unassigned
	l.source[l.at(n, d)] = pinNone
}

// Forbid 禁止某单元格使用某班次
func (l *Locks) Forbid(n, d, s int) {
	l.forbidden[l.at(n, d)] |= 1 << uint(s)
}

// Fixed 返回固定班次
func (l *Locks) Fixed(n, d int) (int, bool) {
	if !l.inRange(n, d) {
		return model.Unassigned, false
	}
	s := l.fixed[l.at(n, d)]
	return s, s != model.Unassigned
}

// IsFixed 单元格是否固定
func (l *Locks) IsFixed(n, d int) bool {
	_, ok := l.Fixed(n, d)
	return ok
}

// IsForbidden 某班次是否被禁止
func (l *Locks) IsForbidden(n, d, s int) bool {
	if !l.inRange(n, d) || s < 0 {
		return false
	}
	return l.forbidden[l.at(n, d)]&(1<<uint(s)) != 0
}

// Allowed 单元格是否可以取某班次（固定单元格只能取固定值）
func (l *Locks) Allowed(n, d, s int) bool {
	if f, ok := l.Fixed(n, d); ok {
		return f == s
	}
	return !l.IsForbidden(n, d, s)
}

// FixedCount 某天某班次的固定人数
func (l *Locks) FixedCount(d, s int) int {
	count := 0
	for n := 0; n < l.nurses; n++ {
		if l.fixed[l.at(n, d)] == s {
			count++
		}
	}
	return count
}

// NumFixed 固定单元格总数
func (l *Locks) NumFixed() int {
	count := 0
	for _, s := range l.fixed {
		if s != model.Unassigned {
			count++
		}
	}
	return count
}

// NumForbidden 禁止 (单元格, 班次) 总数
func (l *Locks) NumForbidden() int {
	count := 0
	for _, bits := range l.forbidden {
		for ; bits != 0; bits &= bits - 1 {
			count++
		}
	}
	return count
}

// Apply 把固定单元格写入排班矩阵
func (l *Locks) Apply(r *model.Roster) {
	for n := 0; n < l.nurses && n < r.NumNurses(); n++ {
		for d := 0; d < l.days && d < r.NumDays(); d++ {
			if s, ok := l.Fixed(n, d); ok {
				r.Set(n, d, s)
			}
		}
	}
}

// Clone 深拷贝
func (l *Locks) Clone() *Locks {
	c := &Locks{
		nurses:    l.nurses,
		days:      l.days,
		fixed:     append([]int(nil), l.fixed...),
		source:    append([]pinSource(nil), l.source...),
		forbidden: append([]uint64(nil), l.forbidden...),
		Warnings:  append([]Conflict(nil), l.Warnings...),
	}
	return c
}

// BuildLocks 合并固定单元格、强制休息与禁止班次
// 强制休息或禁止班次与护士长固定冲突时返回 LOCK_CONFLICT，
// allow_override_by_law 为 true 时以法规为准并丢弃固定
func BuildLocks(cfg *model.RosterConfig, month model.Month, nurses []*model.Nurse, index *model.NurseIndex) (*Locks, error) {
	days := month.Days()
	l := NewLocks(len(nurses), days)
	log := logger.Get().With().Str("component", "validator").Logger()

	warn := func(c Conflict) {
		l.Warnings = append(l.Warnings, c)
		log.Warn().Str("type", string(c.Type)).Str("nurse_id", c.NurseID).Int("day", c.Day).Msg(c.Message)
	}
	active := func(n, d int) bool {
		return n >= 0 && n < len(nurses) && nurses[n].IsActive(month, d)
	}

	// 1. 护士长固定单元格
	for _, fc := range cfg.FixedCells {
		n, d := fc.NurseIndex, fc.DayIndex
		if n < 0 || n >= len(nurses) {
			warn(warning(ConflictUnknownNurse, "", n, d, fc.Shift, "固定单元格护士索引越界: %d", n))
			continue
		}
		id := nurses[n].DBID
		if d < 0 || d >= days || !active(n, d) {
			warn(warning(ConflictOutOfRange, id, n, d, fc.Shift, "护士 %s 第%d天不可排班，忽略固定", id, d+1))
			continue
		}
		s, ok := cfg.Index(model.ShiftCode(fc.Shift))
		if !ok {
			warn(warning(ConflictInvalidShift, id, n, d, fc.Shift, "固定单元格班次代码无效: %s", fc.Shift))
			continue
		}
		if prev, ok := l.Fixed(n, d); ok && prev != s {
			warn(warning(ConflictDuplicate, id, n, d, fc.Shift, "护士 %s 第%d天重复固定，以 %s 为准", id, d+1, fc.Shift))
		}
		code := cfg.Code(s)
		if nurses[n].IsNightNurse && !nurses[n].CanWork(code) {
			warn(warning(ConflictNightOnly, id, n, d, string(code), "夜班专职护士 %s 第%d天被固定为 %s，按护士长指定保留", id, d+1, code))
		}
		l.Pin(n, d, s)
	}

	ic := cfg.InitialConstraints
	if ic == nil || ic.IsEmpty() {
		return l, nil
	}
	off := cfg.OffIndex()

	// 2. 强制休息
	for _, id := range sortedKeys(ic.ForcedOff) {
		n, ok := index.Index(id)
		if !ok {
			warn(warning(ConflictUnknownNurse, id, -1, -1, "", "强制休息引用了未知护士 %s", id))
			continue
		}
		for _, d := range ic.ForcedOff[id] {
			if d < 0 || d >= days || !active(n, d) {
				warn(warning(ConflictOutOfRange, id, n, d, "", "护士 %s 强制休息日 %d 不可排班，忽略", id, d+1))
				continue
			}
			if s, pinned := l.Fixed(n, d); pinned && s != off {
				if !cfg.AllowOverrideByLaw {
					return nil, errors.LockConflict(id, d,
						"法规强制休息与固定班次 "+string(cfg.Code(s))+" 冲突")
				}
				warn(warning(ConflictForcedOff, id, n, d, string(cfg.Code(s)), "护士 %s 第%d天固定班次 %s 被法规强制休息覆盖", id, d+1, cfg.Code(s)))
			}
			l.fixed[l.at(n, d)] = off
			l.source[l.at(n, d)] = pinLaw
		}
	}

	// 3. 禁止班次
	for _, id := range sortedKeys(ic.Forbidden) {
		n, ok := index.Index(id)
		if !ok {
			warn(warning(ConflictUnknownNurse, id, -1, -1, "", "禁止班次引用了未知护士 %s", id))
			continue
		}
		dayMap := ic.Forbidden[id]
		dayList := make([]int, 0, len(dayMap))
		for d := range dayMap {
			dayList = append(dayList, d)
		}
		sort.Ints(dayList)

		for _, d := range dayList {
			if d < 0 || d >= days || !active(n, d) {
				warn(warning(ConflictOutOfRange, id, n, d, "", "护士 %s 禁止班次日 %d 不可排班，忽略", id, d+1))
				continue
			}
			for _, code := range dayMap[d] {
				s, ok := cfg.Index(code)
				if !ok {
					warn(warning(ConflictInvalidShift, id, n, d, string(code), "禁止班次代码无效: %s", code))
					continue
				}
				if pinned, isPinned := l.Fixed(n, d); isPinned && pinned == s {
					if l.source[l.at(n, d)] == pinLaw {
						warn(warning(ConflictForbidden, id, n, d, string(code), "护士 %s 第%d天强制休息优先于禁止 %s", id, d+1, code))
						continue
					}
					if !cfg.AllowOverrideByLaw {
						return nil, errors.LockConflict(id, d, "法规禁止班次 "+string(code)+" 与固定班次冲突")
					}
					warn(warning(ConflictForbidden, id, n, d, string(code), "护士 %s 第%d天固定班次 %s 被法规禁止覆盖", id, d+1, code))
					l.Unpin(n, d)
				}
				l.Forbid(n, d, s)
			}
		}
	}

	log.Debug().
		Int("fixed", l.NumFixed()).
		Int("forbidden", l.NumForbidden()).
		Int("warnings", len(l.Warnings)).
		Msg("锁定构建完成")

	return l, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
