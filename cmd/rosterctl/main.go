// rosterctl 护士排班命令行工具
// 读取 YAML/JSON 请求文件，生成、校验排班或计算跨月边界约束
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paiban/nurseroster/pkg/logger"
)

var (
	outputFormat string
	outputFile   string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "rosterctl",
	Short: "护士月排班命令行工具",
	Long: `rosterctl 在本地运行排班引擎。

请求文件为 YAML 或 JSON，字段与 HTTP 接口一致：
  rosterctl generate -f request.yaml
  rosterctl validate -f roster.yaml
  rosterctl boundary -f previous.yaml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logger.DefaultConfig()
		cfg.Level = logLevel
		cfg.Output = "stderr"
		logger.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "输出格式: json/yaml")
	rootCmd.PersistentFlags().StringVar(&outputFile, "out", "", "输出文件，默认标准输出")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "日志级别")

	rootCmd.AddCommand(generateCmd, validateCmd, boundaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readFile 解析 YAML/JSON 请求文件
// YAML 先转为 JSON 再解码，字段名与 HTTP 接口的 json 标签一致
func readFile(path string, v interface{}) error {
	if path == "" {
		return fmt.Errorf("需要 -f 指定请求文件")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	return nil
}

// writeOutput 按 --output 输出结果
func writeOutput(cmd *cobra.Command, v interface{}) error {
	w := cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("创建输出文件失败: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch outputFormat {
	case "yaml":
		node, err := toYAMLNode(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(node)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("不支持的输出格式: %s", outputFormat)
	}
}

// toYAMLNode 经 JSON 转为 YAML 节点，保留字段顺序
func toYAMLNode(v interface{}) (*yaml.Node, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)
	return &node, nil
}

// blockStyle 去掉 JSON 的流式风格
func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}
