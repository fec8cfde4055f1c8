package agent

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
	"github.com/collector-remoting/pkg/util"
)

var (
	cfgFile    string
	defaultCfg = config.NewDefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "collector-remoting",
	Short: "Manager <-> collector remoting: task dispatch, heartbeat and staged result pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（为空时使用默认值 + flag + 环境变量）")
	// 注册分组 flag
	initRemotingFlags(rootCmd)
	initQueueFlags(rootCmd)
	initLogFlags(rootCmd)

	rootCmd.AddCommand(collectorCmd, managerCmd)
}

// bootstrap 加载配置、初始化日志、打印 banner、创建指标注册表；失败直接退出
func bootstrap(cmd *cobra.Command, role string) (*config.Config, *metrics.MetricFactory, *prometheus.Registry) {
	cfg, err := config.LoadConfigWithCli(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
		os.Exit(1)
	}
	if _, err := logger.InitLogger(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	util.PrintBanner(os.Stdout, "collector-remoting", "blue", role)
	logger.Info("log initialization successful",
		zap.String("path", cfg.Log.Path), zap.String("level", cfg.Log.Level), zap.String("format", cfg.Log.Format))
	logger.Debug("configuration initialization successful", zap.String("path", cfgFile))

	const enableProcess = true
	registry := metrics.NewProcessRegistry(enableProcess)
	return cfg, metrics.NewMetricFactory(metrics.NewPromRegistry(registry)), registry
}
