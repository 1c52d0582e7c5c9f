// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Solver   SolverConfig   `yaml:"solver"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // console/json
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"` // 关闭时不读取上月排班、不保存结果
	Driver          string        `yaml:"driver"`  // postgres/sqlite
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	Path            string        `yaml:"path"` // sqlite 文件路径，":memory:" 为内存库
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		path := c.Path
		if path == "" {
			path = ":memory:"
		}
		return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// APIConfig API配置
type APIConfig struct {
	RateLimit int           `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
	CORS      CORSConfig    `yaml:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

// SolverConfig 排班求解配置
type SolverConfig struct {
	Name         string        `yaml:"name"` // staged/legacy/greedy
	TimeLimit    time.Duration `yaml:"time_limit"`
	Workers      int           `yaml:"workers"`
	StageSplit   []float64     `yaml:"stage_split"`
	GapLimits    []float64     `yaml:"gap_limits"`
	Seed         int64         `yaml:"seed"`
	LNSIteration int           `yaml:"lns_iterations"` // 0 表示不做 LNS
	LNSTime      time.Duration `yaml:"lns_time"`
	UsePolicy    bool          `yaml:"use_policy"` // LNS 邻域由强化学习策略选择
	RulesFile    string        `yaml:"rules_file"` // 病区规则 YAML，为空时使用默认规则
}

// RosterConfig 读取病区规则，文件中未出现的字段保留默认值
func (c *SolverConfig) RosterConfig() (*model.RosterConfig, error) {
	cfg := model.DefaultRosterConfig()
	if c.RulesFile == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(c.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("读取规则文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析规则文件失败: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("规则配置无效: %w", err)
	}
	return cfg, nil
}

// Options 转换为求解参数，缺省项取默认值
func (c *SolverConfig) Options() solver.Options {
	opts := solver.DefaultOptions()
	if c.TimeLimit > 0 {
		opts.TimeLimit = c.TimeLimit
	}
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}
	if len(c.StageSplit) == 3 {
		copy(opts.StageSplit[:], c.StageSplit)
	}
	if len(c.GapLimits) == 3 {
		copy(opts.GapLimits[:], c.GapLimits)
	}
	if c.Seed != 0 {
		opts.Seed = c.Seed
	}
	return opts
}

// LNS 返回 LNS 参数，未开启时返回 nil
func (c *SolverConfig) LNS() *optimizer.LNSConfig {
	if c.LNSIteration <= 0 {
		return nil
	}
	cfg := optimizer.DefaultLNSConfig()
	cfg.MaxIterations = c.LNSIteration
	if c.LNSTime > 0 {
		cfg.MaxTime = c.LNSTime
	}
	cfg.UsePolicy = c.UsePolicy
	if c.Seed != 0 {
		cfg.Seed = c.Seed
	}
	return &cfg
}

// JobsConfig 后台排班任务配置
type JobsConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Retention time.Duration `yaml:"retention"` // 已完成任务保留时长
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load 从环境变量加载配置
// 当前目录或上级目录存在 .env 时先载入
func Load() (*Config, error) {
	for _, p := range []string{".env", "../.env"} {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return nil, fmt.Errorf("加载 %s 失败: %w", p, err)
			}
			break
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:      getEnv("APP_NAME", "nurseroster"),
			Env:       getEnv("APP_ENV", "development"),
			Port:      getEnvInt("APP_PORT", 7012),
			LogLevel:  getEnv("APP_LOG_LEVEL", "info"),
			LogFormat: getEnv("APP_LOG_FORMAT", "console"),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", false),
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "nurseroster"),
			User:            getEnv("DB_USER", "nurseroster"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			Path:            getEnv("DB_PATH", "nurseroster.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		API: APIConfig{
			RateLimit: getEnvInt("API_RATE_LIMIT", 100),
			Timeout:   getEnvDuration("API_TIMEOUT", 30*time.Second),
			CORS: CORSConfig{
				Enabled: getEnvBool("API_CORS_ENABLED", true),
				Origins: getEnvList("API_CORS_ORIGINS", []string{"*"}),
			},
		},
		Solver: SolverConfig{
			Name:         getEnv("SOLVER_NAME", "staged"),
			TimeLimit:    getEnvDuration("SOLVER_TIME_LIMIT", 30*time.Second),
			Workers:      getEnvInt("SOLVER_WORKERS", 4),
			StageSplit:   getEnvFloats("SOLVER_STAGE_SPLIT", []float64{0.45, 0.35, 0.20}),
			GapLimits:    getEnvFloats("SOLVER_GAP_LIMITS", []float64{0.15, 0.15, 0.05}),
			Seed:         int64(getEnvInt("SOLVER_SEED", 1)),
			LNSIteration: getEnvInt("SOLVER_LNS_ITERATIONS", 10),
			LNSTime:      getEnvDuration("SOLVER_LNS_TIME", 30*time.Second),
			UsePolicy:    getEnvBool("SOLVER_USE_POLICY", false),
			RulesFile:    getEnv("SOLVER_RULES_FILE", ""),
		},
		Jobs: JobsConfig{
			Workers:   getEnvInt("JOBS_WORKERS", 2),
			QueueSize: getEnvInt("JOBS_QUEUE_SIZE", 32),
			Retention: getEnvDuration("JOBS_RETENTION", time.Hour),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	return cfg, cfg.Validate()
}

// LoadFile 在环境变量配置之上叠加 YAML 文件
// 文件不存在时只使用环境变量
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Solver.Name {
	case "staged", "legacy", "greedy":
	default:
		return fmt.Errorf("未知求解器: %s", c.Solver.Name)
	}
	if n := len(c.Solver.StageSplit); n != 0 && n != 3 {
		return fmt.Errorf("stage_split 需要 3 个值，实际 %d 个", n)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers 必须大于0")
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsTest 检查是否为测试环境
func (c *Config) IsTest() bool {
	return c.App.Env == "test"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList 逗号分隔的列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvFloats(key string, defaultValue []float64) []float64 {
	list := getEnvList(key, nil)
	if list == nil {
		return defaultValue
	}
	out := make([]float64, 0, len(list))
	for _, s := range list {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}
