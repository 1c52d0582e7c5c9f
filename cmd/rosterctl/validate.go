package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paiban/nurseroster/pkg/engine"
	"github.com/paiban/nurseroster/pkg/model"
	"github.com/paiban/nurseroster/pkg/scheduler/constraint"
	"github.com/paiban/nurseroster/pkg/stats"
)

// rosterFile 给定排班的请求文件
type rosterFile struct {
	engine.Request
	Roster map[string][]string `json:"roster"`
}

// validateResult 校验输出
type validateResult struct {
	*constraint.Result
	Report *stats.Report `json:"report,omitempty"`
}

var validateOpts struct {
	file   string
	report bool
	strict bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验已有排班的违规",
	Long: `读取规则、护士与排班（roster: nurse_id -> 逐日代码），输出全部硬/软约束违规。

--strict 时存在硬约束违规返回非零退出码。`,
	Example: `  rosterctl validate -f roster.yaml --report`,
	RunE:    runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringVarP(&validateOpts.file, "file", "f", "", "排班文件（YAML/JSON，- 为标准输入）")
	f.BoolVar(&validateOpts.report, "report", false, "同时输出统计报告")
	f.BoolVar(&validateOpts.strict, "strict", false, "存在硬约束违规时返回错误")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	in := rosterFile{Request: engine.Request{Config: model.DefaultRosterConfig()}}
	if err := readFile(validateOpts.file, &in); err != nil {
		return err
	}
	if len(in.Roster) == 0 {
		return fmt.Errorf("文件中缺少 roster")
	}

	p, err := engine.Prepare(&in.Request)
	if err != nil {
		return err
	}
	grid, err := p.Import(in.Roster)
	if err != nil {
		return err
	}

	res := validateResult{Result: p.Validate(grid)}
	if validateOpts.report {
		res.Report = p.Analyze(grid)
	}
	if err := writeOutput(cmd, res); err != nil {
		return err
	}
	if validateOpts.strict && len(res.HardViolations) > 0 {
		return fmt.Errorf("存在 %d 条硬约束违规", len(res.HardViolations))
	}
	return nil
}
