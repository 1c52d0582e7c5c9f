// 护士排班服务
// 主程序入口

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paiban/nurseroster/internal/config"
	"github.com/paiban/nurseroster/internal/database"
	"github.com/paiban/nurseroster/internal/handler"
	"github.com/paiban/nurseroster/internal/repository"
	"github.com/paiban/nurseroster/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML 配置文件路径")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.App.LogLevel
	logCfg.Format = cfg.App.LogFormat
	logger.Init(logCfg)

	// 打印版本信息
	fmt.Printf("护士排班服务 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	rules, err := cfg.Solver.RosterConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("加载病区规则失败")
	}

	// 数据库可选：关闭时不读取上月排班、不保存结果
	var (
		store  handler.RosterStore
		query  handler.RosterQuery
		pinger handler.Pinger
	)
	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("数据库连接失败")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("数据库迁移失败")
		}

		rosters := repository.NewRosterRepository(db)
		store, query, pinger = rosters, rosters, db
	}

	jobs := handler.NewJobRunner(handler.JobRunnerConfig{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		Retention: cfg.Jobs.Retention,
		Timeout:   cfg.Solver.TimeLimit + cfg.Solver.LNSTime + cfg.API.Timeout,
	}, nil, store)
	jobs.Start()

	rosterHandler := handler.NewRosterHandler(jobs, handler.Defaults{
		Solver:  cfg.Solver.Name,
		Options: cfg.Solver.Options(),
		LNS:     cfg.Solver.LNS(),
		Config:  rules,
	}, query)

	var origins []string
	if cfg.API.CORS.Enabled {
		origins = cfg.API.CORS.Origins
	}
	router := handler.NewRouter(rosterHandler, handler.RouterOptions{
		Version:        Version,
		AllowedOrigins: origins,
		RateLimit:      float64(cfg.API.RateLimit),
		Metrics:        cfg.Metrics.Enabled,
		DB:             pinger,
	})

	port := fmt.Sprintf("%d", cfg.App.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Str("port", port).
			Str("version", Version).
			Str("solver", cfg.Solver.Name).
			Bool("database", cfg.Database.Enabled).
			Str("url", fmt.Sprintf("http://localhost:%s", port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := jobs.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("排班任务未能在超时前结束")
	}

	logger.Info().Msg("服务器已关闭")
}
