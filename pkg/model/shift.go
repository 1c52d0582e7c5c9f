// Package model 定义排班引擎的核心数据模型
package model

import "strings"

// ShiftCode 班次代码
type ShiftCode string

const (
	ShiftDay     ShiftCode = "D" // 白班
	ShiftEvening ShiftCode = "E" // 小夜班
	ShiftNight   ShiftCode = "N" // 大夜班
	ShiftOff     ShiftCode = "O" // 休息
)

// Unassigned 雇佣期外的空单元格
const Unassigned = -1

// UnassignedCode 空单元格的输出代码
const UnassignedCode = "-"

// DefaultShiftTypes 默认班次顺序
func DefaultShiftTypes() []ShiftCode {
	return []ShiftCode{ShiftDay, ShiftEvening, ShiftNight, ShiftOff}
}

// NormalizeShiftCode 规范化班次代码（OFF 统一为 O）
func NormalizeShiftCode(code string) ShiftCode {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch c {
	case "OFF", "O":
		return ShiftOff
	}
	return ShiftCode(c)
}

// IsWork 是否为工作班次
func (c ShiftCode) IsWork() bool {
	return c != ShiftOff && c != "" && c != UnassignedCode
}

// String 实现 Stringer
func (c ShiftCode) String() string {
	return string(c)
}
