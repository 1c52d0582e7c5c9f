package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/boundary"
)

// boundaryFile 跨月边界请求文件
type boundaryFile struct {
	Config         *model.RosterConfig `json:"config"`
	NurseIDs       []string            `json:"nurse_ids"`
	PreviousRoster map[string][]string `json:"previous_roster"`
	Lookback       int                 `json:"lookback"`
}

var boundaryFilePath string

var boundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "由上月排班计算 initial_constraints",
	Long: `读取上月每位护士的逐日代码（previous_roster），输出本月开头的强制休息与禁止班次。

输出可直接放入请求的 config.initial_constraints。`,
	Example: `  rosterctl boundary -f previous.yaml -o yaml`,
	RunE:    runBoundary,
}

func init() {
	boundaryCmd.Flags().StringVarP(&boundaryFilePath, "file", "f", "", "上月排班文件（YAML/JSON，- 为标准输入）")
	_ = boundaryCmd.MarkFlagRequired("file")
}

func runBoundary(cmd *cobra.Command, args []string) error {
	in := boundaryFile{Config: model.DefaultRosterConfig()}
	if err := readFile(boundaryFilePath, &in); err != nil {
		return err
	}
	cfg := in.Config
	if cfg == nil {
		cfg = model.DefaultRosterConfig()
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}

	ids := in.NurseIDs
	if len(ids) == 0 {
		for id := range in.PreviousRoster {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	return writeOutput(cmd, boundary.NewBuilder(cfg, in.Lookback).Build(in.PreviousRoster, ids))
}
