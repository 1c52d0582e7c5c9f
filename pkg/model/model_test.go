package model

import (
	"errors"
	"math"
	"testing"
	"time"

	apperrors "github.com/paiban/nurseroster/pkg/errors"
)

func TestMonth_Days(t *testing.T) {
	tests := []struct {
		name     string
		year     int
		month    int
		expected int
	}{
		{"闰年二月", 2024, 2, 29},
		{"平年二月", 2025, 2, 28},
		{"大月", 2025, 1, 31},
		{"小月", 2025, 4, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMonth(tt.year, tt.month)
			if err != nil {
				t.Fatalf("NewMonth() error = %v", err)
			}
			if got := m.Days(); got != tt.expected {
				t.Errorf("Days() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestNewMonth_Invalid(t *testing.T) {
	if _, err := NewMonth(2025, 13); err == nil {
		t.Error("月份13应返回错误")
	}
	if _, err := NewMonth(2025, 0); err == nil {
		t.Error("月份0应返回错误")
	}
}

func TestMonth_Previous(t *testing.T) {
	m, _ := NewMonth(2025, 1)
	p := m.Previous()
	if p.Year != 2024 || p.Month != time.December {
		t.Errorf("Previous() = %s, expected 2024-12", p)
	}
}

func TestMonth_IsWeekend(t *testing.T) {
	m, _ := NewMonth(2025, 3) // 2025-03-01 是周六
	if !m.IsWeekend(0) || !m.IsWeekend(1) {
		t.Error("3月1日和2日应为周末")
	}
	if m.IsWeekend(2) {
		t.Error("3月3日不是周末")
	}
	if got := len(m.Weekends()); got != 10 {
		t.Errorf("Weekends() 数量 = %d, expected 10", got)
	}
}

func TestNormalizeShiftCode(t *testing.T) {
	tests := []struct {
		in       string
		expected ShiftCode
	}{
		{"OFF", ShiftOff},
		{"off", ShiftOff},
		{" o ", ShiftOff},
		{"d", ShiftDay},
		{"N", ShiftNight},
	}
	for _, tt := range tests {
		if got := NormalizeShiftCode(tt.in); got != tt.expected {
			t.Errorf("NormalizeShiftCode(%q) = %s, expected %s", tt.in, got, tt.expected)
		}
	}
}

func TestRosterConfig_Normalize(t *testing.T) {
	t.Run("默认配置有效", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		if err := cfg.Normalize(); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if cfg.OffIndex() != 3 {
			t.Errorf("OffIndex() = %d, expected 3", cfg.OffIndex())
		}
		if len(cfg.WorkShifts()) != 3 {
			t.Errorf("WorkShifts() 数量 = %d, expected 3", len(cfg.WorkShifts()))
		}
	})

	t.Run("缺少OFF班次", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		cfg.ShiftTypes = []ShiftCode{ShiftDay, ShiftEvening, ShiftNight}
		if err := cfg.Normalize(); err == nil {
			t.Error("缺少 O 时应返回错误")
		}
	})

	t.Run("汇总全部字段错误", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		cfg.MaxConsecutiveWorkDays = 0
		cfg.MaxConsecutiveNights = 0
		cfg.Holidays = []string{"2025-13-01"}
		err := cfg.Normalize()
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			t.Fatalf("Normalize() error = %v", err)
		}
		for _, field := range []string{"max_consecutive_work_days", "max_consecutive_nights", "holidays"} {
			if _, ok := appErr.Fields[field]; !ok {
				t.Errorf("Fields 缺少 %s: %v", field, appErr.Fields)
			}
		}
	})

	t.Run("OFF别名归一化", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		cfg.ShiftTypes = []ShiftCode{"D", "E", "N", "OFF"}
		if err := cfg.Normalize(); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if cfg.Code(cfg.OffIndex()) != ShiftOff {
			t.Errorf("OFF 应归一化为 O")
		}
	})

	t.Run("关闭三连夜时最大连续夜班为2", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		cfg.ThreeSeqNig = false
		if err := cfg.Normalize(); err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if cfg.MaxConsecutiveNights != 2 {
			t.Errorf("MaxConsecutiveNights = %d, expected 2", cfg.MaxConsecutiveNights)
		}
	})

	t.Run("优先级下限", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		cfg.ShiftRequirementPriority = 0
		_ = cfg.Normalize()
		if cfg.ShiftRequirementPriority != 0.05 {
			t.Errorf("ShiftRequirementPriority = %v, expected 0.05", cfg.ShiftRequirementPriority)
		}
	})

	t.Run("无效节假日", func(t *testing.T) {
		cfg := DefaultRosterConfig()
		cfg.Holidays = []string{"2025/01/01"}
		if err := cfg.Normalize(); err == nil {
			t.Error("无效日期应返回错误")
		}
	})
}

func TestRosterConfig_RequirementsFor(t *testing.T) {
	m, _ := NewMonth(2025, 3)
	cfg := DefaultRosterConfig()
	cfg.WeekendRequirements = map[ShiftCode]int{ShiftDay: 2, ShiftEvening: 2, ShiftNight: 2}
	cfg.RequirementsByDay = map[int]map[ShiftCode]int{4: {ShiftDay: 5}}
	cfg.Holidays = []string{"2025-03-05"}
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		day      int
		expected int
	}{
		{"周末", 0, 2},
		{"工作日", 2, 3},
		{"按日覆盖优先于节假日", 4, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.RequirementsFor(m, tt.day)[ShiftDay]; got != tt.expected {
				t.Errorf("D需求 = %d, expected %d", got, tt.expected)
			}
		})
	}

	cfg.RequirementsByDay = nil
	if got := cfg.RequirementsFor(m, 4)[ShiftDay]; got != 2 {
		t.Errorf("节假日 D需求 = %d, expected 2", got)
	}
}

func TestRosterConfig_Preceptor(t *testing.T) {
	tests := []struct {
		name     string
		gauge    *int
		expected PreceptorParams
	}{
		{"未设置档位", nil, PreceptorParams{Enabled: true, Strength: 1.0, TopDays: 12, MinWeight: 5.0}},
		{"档位0关闭", intPtr(0), PreceptorParams{Enabled: false, Strength: 0.2, TopDays: 4, MinWeight: 10}},
		{"档位10最强", intPtr(10), PreceptorParams{Enabled: true, Strength: 2.0, TopDays: 30, MinWeight: 5}},
		{"超出范围截断", intPtr(15), PreceptorParams{Enabled: true, Strength: 2.0, TopDays: 30, MinWeight: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRosterConfig()
			cfg.PreceptorGauge = tt.gauge
			got := cfg.Preceptor()
			if got.Enabled != tt.expected.Enabled || got.TopDays != tt.expected.TopDays ||
				math.Abs(got.Strength-tt.expected.Strength) > 1e-9 || math.Abs(got.MinWeight-tt.expected.MinWeight) > 1e-9 {
				t.Errorf("Preceptor() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func intPtr(v int) *int { return &v }

func TestParseNurses_Order(t *testing.T) {
	nurses, err := ParseNurses([]NurseRecord{
		{NurseID: "c", Experience: 1, Sequence: 1},
		{NurseID: "b", Experience: 5, Sequence: 1},
		{NurseID: "a", Experience: 5, Sequence: 1},
		{NurseID: "z", Experience: 0, Sequence: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"z", "a", "b", "c"}
	for i, n := range nurses {
		if n.DBID != expected[i] || n.ID != i {
			t.Errorf("位置%d = %s(id=%d), expected %s", i, n.DBID, n.ID, expected[i])
		}
	}

	if _, err := ParseNurses([]NurseRecord{{NurseID: "a"}, {NurseID: "a"}}); err == nil {
		t.Error("重复ID应返回错误")
	}
}

func TestNurse_ActiveWindow(t *testing.T) {
	m, _ := NewMonth(2025, 4)
	date := func(s string) *time.Time {
		v, _ := time.Parse(DateLayout, s)
		return &v
	}

	tests := []struct {
		name        string
		join        *time.Time
		resign      *time.Time
		first, last int
		ok          bool
	}{
		{"整月在职", nil, nil, 0, 29, true},
		{"月中入职", date("2025-04-10"), nil, 9, 29, true},
		{"月中离职", nil, date("2025-04-20"), 0, 19, true},
		{"上月离职", nil, date("2025-03-31"), 0, -1, false},
		{"下月入职", date("2025-05-01"), nil, 0, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Nurse{JoiningDate: tt.join, ResignationDate: tt.resign}
			first, last, ok := n.ActiveWindow(m)
			if ok != tt.ok || (ok && (first != tt.first || last != tt.last)) {
				t.Errorf("ActiveWindow() = (%d,%d,%v), expected (%d,%d,%v)", first, last, ok, tt.first, tt.last, tt.ok)
			}
		})
	}
}

func TestNurse_InitOffDays(t *testing.T) {
	cfg := DefaultRosterConfig()
	n := &Nurse{PersonalOffAdjustment: -2}
	if got := n.InitOffDays(cfg); got != 9 {
		t.Errorf("InitOffDays() = %d, expected 9", got)
	}
	n.PersonalOffAdjustment = -20
	if got := n.InitOffDays(cfg); got != 0 {
		t.Errorf("InitOffDays() = %d, expected 0", got)
	}
}

func TestNurseIndex(t *testing.T) {
	nurses := []*Nurse{{ID: 0, DBID: "x"}, {ID: 1, DBID: "y"}}
	idx := NewNurseIndex(nurses)
	if i, ok := idx.Index("y"); !ok || i != 1 {
		t.Errorf("Index(y) = %d,%v", i, ok)
	}
	if _, ok := idx.Index("missing"); ok {
		t.Error("未知ID应返回 false")
	}
	if id, ok := idx.DBID(0); !ok || id != "x" {
		t.Errorf("DBID(0) = %s,%v", id, ok)
	}
}

func TestRoster_Basics(t *testing.T) {
	cfg := DefaultRosterConfig()
	_ = cfg.Normalize()
	r := NewRoster(2, 3, cfg.NumShifts())
	r.Set(0, 0, 0)
	r.Set(1, 0, 0)
	r.Set(0, 1, cfg.OffIndex())

	if r.CountOn(0, 0) != 2 {
		t.Errorf("CountOn(0,D) = %d, expected 2", r.CountOn(0, 0))
	}
	codes := r.Codes(cfg, 0)
	if codes[0] != "D" || codes[1] != "O" || codes[2] != UnassignedCode {
		t.Errorf("Codes() = %v", codes)
	}

	tensor := r.Tensor()
	for d := 0; d < 3; d++ {
		ones := 0
		for _, v := range tensor[0][d] {
			if v {
				ones++
			}
		}
		if d < 2 && ones != 1 {
			t.Errorf("第%d天应恰好一个班次", d)
		}
		if d == 2 && ones != 0 {
			t.Errorf("未分配单元格不应有班次")
		}
	}

	c := r.Clone()
	c.Set(0, 2, 1)
	if r.Equal(c) || r.Diff(c) != 1 {
		t.Error("Clone 应为深拷贝")
	}
}

func TestRosterFromCodes(t *testing.T) {
	cfg := DefaultRosterConfig()
	_ = cfg.Normalize()
	r, err := RosterFromCodes(cfg, [][]string{{"D", "OFF", "-"}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.Get(0, 1) != cfg.OffIndex() || r.Get(0, 2) != Unassigned {
		t.Errorf("解析结果错误: %v", r.Row(0))
	}
	if _, err := RosterFromCodes(cfg, [][]string{{"X", "D", "D"}}, 3); err == nil {
		t.Error("无效代码应返回错误")
	}
}
