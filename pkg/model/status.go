package model

// Status 排班结果状态
type Status string

const (
	StatusSuccess Status = "success" // 覆盖与安全规则全部满足
	StatusPartial Status = "partial" // 有残留缺员或安全违规
	StatusFailure Status = "failure" // 覆盖阶段无解
)
