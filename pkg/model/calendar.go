package model

import (
	"fmt"
	"time"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// Month 排班目标月份
type Month struct {
	Year  int        `json:"year" yaml:"year"`
	Month time.Month `json:"month" yaml:"month"`
}

// NewMonth 创建目标月份
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("无效的月份: %d", month)
	}
	if year < 1900 || year > 9999 {
		return Month{}, fmt.Errorf("无效的年份: %d", year)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// First 当月第一天
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Days 当月天数
func (m Month) Days() int {
	return m.First().AddDate(0, 1, -1).Day()
}

// Date 返回 0 起始的第 day 天
func (m Month) Date(day int) time.Time {
	return m.First().AddDate(0, 0, day)
}

// DayIndex 返回日期在当月的索引（可能越界）
func (m Month) DayIndex(t time.Time) int {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(m.First()).Hours() / 24)
}

// Previous 上一个月
func (m Month) Previous() Month {
	p := m.First().AddDate(0, -1, 0)
	return Month{Year: p.Year(), Month: p.Month()}
}

// IsWeekend 是否为周末
func (m Month) IsWeekend(day int) bool {
	wd := m.Date(day).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Weekends 当月周末的索引
func (m Month) Weekends() []int {
	var days []int
	for d := 0; d < m.Days(); d++ {
		if m.IsWeekend(d) {
			days = append(days, d)
		}
	}
	return days
}

// String 返回 YYYY-MM
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
