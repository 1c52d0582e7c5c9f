// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json/console
	Output     string `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器，进程内只生效一次
func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))

		output := openOutput(cfg)
		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}
		logger = zerolog.New(output).With().Timestamp().Str("service", "nurseroster").Logger()
	})
}

// openOutput 文件打开失败时退回标准输出
func openOutput(cfg Config) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return os.Stdout
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return os.Stdout
		}
		return f
	}
	return os.Stdout
}

// parseLevel 未知级别按 info 处理
func parseLevel(level string) zerolog.Level {
	if level == "warning" {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// Get 获取日志器
// 未调用 Init 时使用默认配置
func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

type ctxKey string

const (
	// RequestIDKey 请求ID上下文键
	RequestIDKey ctxKey = "request_id"
	// RunIDKey 排班运行ID上下文键
	RunIDKey ctxKey = "run_id"
)

// ContextWithRequestID 写入请求ID
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// ContextWithRunID 写入排班运行ID
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()

	// 添加请求ID
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		l = l.With().Str("request_id", reqID).Logger()
	}

	// 添加排班运行ID
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		l = l.With().Str("run_id", runID).Logger()
	}

	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// SchedulerLogger 排班引擎专用日志器
type SchedulerLogger struct {
	base *zerolog.Logger
}

// NewSchedulerLogger 创建排班引擎日志器
func NewSchedulerLogger() *SchedulerLogger {
	l := Get().With().Str("component", "scheduler").Logger()
	return &SchedulerLogger{base: &l}
}

// NewSchedulerLoggerContext 创建带运行ID的排班引擎日志器
func NewSchedulerLoggerContext(ctx context.Context) *SchedulerLogger {
	l := WithContext(ctx).With().Str("component", "scheduler").Logger()
	return &SchedulerLogger{base: &l}
}

// Logger 返回底层日志器
func (l *SchedulerLogger) Logger() *zerolog.Logger {
	return l.base
}

// StartSchedule 记录排班开始
func (l *SchedulerLogger) StartSchedule(runID, solver string, nurses, days int) {
	l.base.Info().
		Str("run_id", runID).
		Str("solver", solver).
		Int("nurses", nurses).
		Int("days", days).
		Msg("开始生成排班")
}

// StageComplete 记录阶段完成
func (l *SchedulerLogger) StageComplete(stage string, objective int64, duration time.Duration) {
	l.base.Info().
		Str("stage", stage).
		Int64("objective", objective).
		Dur("duration", duration).
		Msg("阶段求解完成")
}

// StageFallback 记录阶段回退
func (l *SchedulerLogger) StageFallback(stage, reason string) {
	l.base.Warn().
		Str("stage", stage).
		Str("reason", reason).
		Msg("阶段无可行解，回退到上一阶段结果")
}

// LNSIteration 记录 LNS 迭代
func (l *SchedulerLogger) LNSIteration(iter int, strategy string, accepted bool, violations int, score int64) {
	l.base.Debug().
		Int("iter", iter).
		Str("strategy", strategy).
		Bool("accepted", accepted).
		Int("violations", violations).
		Int64("score", score).
		Msg("LNS 迭代")
}

// ConstraintViolation 记录约束违反
func (l *SchedulerLogger) ConstraintViolation(constraint, details string) {
	l.base.Warn().
		Str("constraint", constraint).
		Str("details", details).
		Msg("约束违反")
}

// ScheduleComplete 记录排班完成
func (l *SchedulerLogger) ScheduleComplete(runID string, status string, duration time.Duration, score float64) {
	l.base.Info().
		Str("run_id", runID).
		Str("status", status).
		Dur("duration", duration).
		Float64("score", score).
		Msg("排班生成完成")
}
