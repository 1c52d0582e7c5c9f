package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/nurseroster/internal/config"
	"github.com/paiban/nurseroster/internal/database"
	"github.com/paiban/nurseroster/internal/repository"
	"github.com/paiban/nurseroster/pkg/engine"
	"github.com/paiban/nurseroster/pkg/logger"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/optimizer"
	"github.com/paiban/nurseroster/pkg/scheduler/solver"
)

var generateOpts struct {
	file       string
	solver     string
	timeLimit  time.Duration
	lns        int
	ward       string
	configPath string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "生成月排班",
	Long: `读取排班请求并运行求解器，输出排班、违规与统计报告。

指定 --ward 且配置启用数据库时，自动读取上月排班生成跨月约束，并保存结果。`,
	Example: `  rosterctl generate -f request.yaml
  rosterctl generate -f request.yaml --solver greedy -o yaml --out roster.yaml`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateOpts.file, "file", "f", "", "请求文件（YAML/JSON，- 为标准输入）")
	f.StringVar(&generateOpts.solver, "solver", "", "求解器: staged/legacy/greedy，覆盖请求文件")
	f.DurationVar(&generateOpts.timeLimit, "time-limit", 0, "求解时间上限，覆盖请求文件")
	f.IntVar(&generateOpts.lns, "lns", -1, "LNS 迭代次数，0 关闭，覆盖请求文件")
	f.StringVar(&generateOpts.ward, "ward", "", "病区，配合数据库读取上月排班并保存结果")
	f.StringVar(&generateOpts.configPath, "config", "config.yaml", "服务配置文件（仅 --ward 时使用）")
	_ = generateCmd.MarkFlagRequired("file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// 文件中的 config 与 options 覆盖在默认值之上
	opts := solver.DefaultOptions()
	req := engine.Request{Config: model.DefaultRosterConfig(), Options: &opts}
	if err := readFile(generateOpts.file, &req); err != nil {
		return err
	}
	if err := applyOverrides(cmd, &req); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rosters *repository.RosterRepository
	if generateOpts.ward != "" {
		repo, closeDB, err := openStore(ctx)
		if err != nil {
			return err
		}
		if repo != nil {
			defer closeDB()
			rosters = repo
			if req.PreviousRoster == nil {
				prev, err := rosters.Previous(ctx, generateOpts.ward, req.Year, req.Month)
				if err != nil {
					return fmt.Errorf("读取上月排班失败: %w", err)
				}
				req.PreviousRoster = prev
			}
		}
	}

	out, err := engine.Generate(ctx, &req)
	if err != nil {
		return err
	}

	if rosters != nil {
		roster := repository.RosterFromOutput(generateOpts.ward, req.Year, req.Month, out)
		if err := rosters.Save(ctx, roster); err != nil {
			return fmt.Errorf("保存排班失败: %w", err)
		}
		logger.Info().Str("roster_id", roster.ID.String()).Str("ward", generateOpts.ward).Msg("排班已保存")
	}

	return writeOutput(cmd, out)
}

func applyOverrides(cmd *cobra.Command, req *engine.Request) error {
	if generateOpts.solver != "" {
		req.Solver = generateOpts.solver
	}
	if generateOpts.timeLimit > 0 {
		if req.Options == nil {
			def := solver.DefaultOptions()
			req.Options = &def
		}
		req.Options.TimeLimit = generateOpts.timeLimit
	}
	if cmd.Flags().Changed("lns") {
		if generateOpts.lns < 0 {
			return fmt.Errorf("--lns 不能为负数")
		}
		lns := optimizer.DefaultLNSConfig()
		if req.LNS != nil {
			lns = *req.LNS
		}
		lns.MaxIterations = generateOpts.lns
		req.LNS = &lns
	}
	return nil
}

// openStore 配置未启用数据库时返回 nil 仓储
func openStore(ctx context.Context) (*repository.RosterRepository, func(), error) {
	cfg, err := config.LoadFile(generateOpts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if !cfg.Database.Enabled {
		logger.Warn().Msg("配置未启用数据库，忽略 --ward")
		return nil, func() {}, nil
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repository.NewRosterRepository(db), func() { db.Close() }, nil
}
