package constraint

import "github.com/paiban/nurseroster/pkg/model"

// Family 安全规则松弛族
type Family int

const (
	FamTransND Family = iota
	FamTransED
	FamTransNE
	FamCWorkMissing
	FamCNightExcess
	FamMNightExcess
	FamNightOnlyDE
	FamWeekOffMissing
	FamRec3N2O
	FamRec2N2O
	FamPatternNOD
	FamPatternNOE
	FamMinOffMissing

	NumFamilies
)

var familyNames = [NumFamilies]string{
	"trans_nd",
	"trans_ed",
	"trans_ne",
	"cwork_missing",
	"cnight_excess",
	"mnight_excess",
	"night_only_de",
	"week_off_missing",
	"rec_3n2o",
	"rec_2n2o",
	"pattern_nod",
	"pattern_noe",
	"min_off_missing",
}

var familyTypes = [NumFamilies]Type{
	TypeNightND,
	TypeEveningED,
	TypeNightNE,
	TypeConsecutiveWork,
	TypeNightConsecutive,
	TypeNightMonthLimit,
	TypeNightOnly,
	TypeWeeklyOff,
	TypeRecoveryOff,
	TypeRecoveryOff,
	TypePatternNOD,
	TypePatternNOE,
	TypeMinOff,
}

// String 返回松弛族名称
func (f Family) String() string {
	if f < 0 || f >= NumFamilies {
		return "unknown"
	}
	return familyNames[f]
}

// ViolationType 对应的违规类型
func (f Family) ViolationType() Type {
	return familyTypes[f]
}

// Families 返回全部松弛族
func Families() []Family {
	out := make([]Family, NumFamilies)
	for i := range out {
		out[i] = Family(i)
	}
	return out
}

// Instance 一个正松弛实例
// Day 为锚定日，[Start, End] 为实例覆盖的日区间
type Instance struct {
	Family Family
	Nurse  int
	Day    int
	Start  int
	End    int
	Slack  int
}

// Key 实例唯一标识（族, 护士, 锚定日）
type Key struct {
	Family Family
	Nurse  int
	Day    int
}

// Key 返回实例标识
func (in Instance) Key() Key {
	return Key{Family: in.Family, Nurse: in.Nurse, Day: in.Day}
}

// Totals 各族松弛合计
type Totals [NumFamilies]int

// Sum 总松弛
func (t Totals) Sum() int {
	s := 0
	for _, v := range t {
		s += v
	}
	return s
}

// Add 累加
func (t *Totals) Add(o Totals) {
	for i := range t {
		t[i] += o[i]
	}
}

// Sub 相减
func (t *Totals) Sub(o Totals) {
	for i := range t {
		t[i] -= o[i]
	}
}

// Map 以族名输出
func (t Totals) Map() map[string]int {
	out := make(map[string]int, NumFamilies)
	for i, v := range t {
		out[familyNames[i]] = v
	}
	return out
}

// RowScanner 单个护士整月班次的安全规则扫描器
type RowScanner struct {
	day, eve, night, off int

	days           int
	maxWork        int
	maxNights      int
	maxMonthNights int
	minOff         int

	bannedEve bool
	weekly    bool
	rec3      bool
	rec2      bool
	nodNoe    bool
}

// NewRowScanner 根据规则配置创建扫描器
func NewRowScanner(cfg *model.RosterConfig, days int) *RowScanner {
	return &RowScanner{
		day:            cfg.MustIndex(model.ShiftDay),
		eve:            cfg.MustIndex(model.ShiftEvening),
		night:          cfg.MustIndex(model.ShiftNight),
		off:            cfg.OffIndex(),
		days:           days,
		maxWork:        cfg.MaxConsecutiveWorkDays,
		maxNights:      cfg.MaxConsecutiveNights,
		maxMonthNights: cfg.MaxNightShiftsPerMonth,
		minOff:         cfg.MinOffDays(),
		bannedEve:      cfg.BannedDayAfterEve,
		weekly:         cfg.EnforceTwoOffsPerWeek,
		rec3:           cfg.TwoOffsAfterThreeNig,
		rec2:           cfg.TwoOffsAfterTwoNig,
		nodNoe:         cfg.ForbidNODNOE,
	}
}

// Scan 遍历护士在职区间 [first, last] 内的所有正松弛实例
// 返回的 Instance.Nurse 为 0，由调用方填写
func (s *RowScanner) Scan(row []int, first, last int, nightOnly bool, fn func(Instance)) {
	if first > last {
		return
	}
	emit := func(f Family, day, start, end, slack int) {
		fn(Instance{Family: f, Day: day, Start: start, End: end, Slack: slack})
	}
	is := func(d, sh int) bool { return row[d] == sh }

	// 班次转换
	for d := first + 1; d <= last; d++ {
		if is(d-1, s.night) && is(d, s.day) {
			emit(FamTransND, d, d-1, d, 1)
		}
		if s.bannedEve {
			if is(d-1, s.eve) && is(d, s.day) {
				emit(FamTransED, d, d-1, d, 1)
			}
			if is(d-1, s.night) && is(d, s.eve) {
				emit(FamTransNE, d, d-1, d, 1)
			}
		}
	}

	// 连续工作：每个 K+1 天窗口至少一天休息
	if k := s.maxWork; k > 0 {
		offs := 0
		for d := first; d <= last; d++ {
			if is(d, s.off) {
				offs++
			}
			if d-first > k && is(d-k-1, s.off) {
				offs--
			}
			if d-first >= k && offs == 0 {
				emit(FamCWorkMissing, d-k, d-k, d, 1)
			}
		}
	}

	// 连续夜班：每个 L+1 天窗口夜班数不超过 L
	nights := 0
	if l := s.maxNights; l > 0 {
		for d := first; d <= last; d++ {
			if is(d, s.night) {
				nights++
			}
			if d-first > l && is(d-l-1, s.night) {
				nights--
			}
			if d-first >= l && nights > l {
				emit(FamCNightExcess, d-l, d-l, d, nights-l)
			}
		}
	}

	// 月夜班上限与最少休息
	totalNights, totalOffs := 0, 0
	for d := first; d <= last; d++ {
		switch row[d] {
		case s.night:
			totalNights++
		case s.off:
			totalOffs++
		}
	}
	if totalNights > s.maxMonthNights {
		emit(FamMNightExcess, first, first, last, totalNights-s.maxMonthNights)
	}

	// 夜班专职护士不得上 D/E
	if nightOnly {
		for d := first; d <= last; d++ {
			if is(d, s.day) || is(d, s.eve) {
				emit(FamNightOnlyDE, d, d, d, 1)
			}
		}
	}

	// 每个完整自然周（第 7w..7w+6 天）至少两天休息，仅统计全周在职的周
	if s.weekly {
		for w := 0; w*7+6 < s.days; w++ {
			d0, d1 := w*7, w*7+6
			if d0 < first || d1 > last {
				continue
			}
			offs := 0
			for d := d0; d <= d1; d++ {
				if is(d, s.off) {
					offs++
				}
			}
			if offs < 2 {
				emit(FamWeekOffMissing, d0, d0, d1, 2-offs)
			}
		}
	}

	// 夜班后恢复休息：三连夜或两连夜后接两天休息
	if s.rec3 {
		for d := first + 2; d+2 <= last; d++ {
			if is(d-2, s.night) && is(d-1, s.night) && is(d, s.night) {
				if miss := 2 - s.offsIn(row, d+1, d+2); miss > 0 {
					emit(FamRec3N2O, d, d-2, d+2, miss)
				}
			}
		}
	}
	if s.rec2 {
		for d := first + 1; d+2 <= last; d++ {
			if is(d-1, s.night) && is(d, s.night) {
				if miss := 2 - s.offsIn(row, d+1, d+2); miss > 0 {
					emit(FamRec2N2O, d, d-1, d+2, miss)
				}
			}
		}
	}

	// N-O-D / N-O-E
	if s.nodNoe {
		for d := first; d+2 <= last; d++ {
			if is(d, s.night) && is(d+1, s.off) {
				if is(d+2, s.day) {
					emit(FamPatternNOD, d, d, d+2, 1)
				}
				if is(d+2, s.eve) {
					emit(FamPatternNOE, d, d, d+2, 1)
				}
			}
		}
	}

	if s.minOff > 0 {
		need := s.minOff
		if span := last - first + 1; span < need {
			need = span
		}
		if totalOffs < need {
			emit(FamMinOffMissing, first, first, last, need-totalOffs)
		}
	}
}

func (s *RowScanner) offsIn(row []int, from, to int) int {
	c := 0
	for d := from; d <= to; d++ {
		if row[d] == s.off {
			c++
		}
	}
	return c
}

// Totals 计算一行的各族松弛合计
func (s *RowScanner) Totals(row []int, first, last int, nightOnly bool) Totals {
	var t Totals
	s.Scan(row, first, last, nightOnly, func(in Instance) {
		t[in.Family] += in.Slack
	})
	return t
}
