package agent

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/dispatch"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/remoting"
	"github.com/collector-remoting/pkg/signal"
)

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run a collector: connect to the manager, execute tasks, ship results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollector(cmd)
	},
}

func init() {
	initCollectorFlags(collectorCmd)
	initHTTPFlags(collectorCmd, "collector")
}

func runCollector(cmd *cobra.Command) error {
	cfg, factory, registry := bootstrap(cmd, "collector "+dispatch.Version)
	defer logger.Sync()

	protocols := collect.NewRegistry(factory.NewCollectMetrics())
	if err := protocols.Register(collect.HostProtocol{}); err != nil {
		return err
	}

	// GO_CLOSE 触发进程退出
	stop := make(chan struct{})
	var once sync.Once
	cs, err := dispatch.NewCollectServer(cfg, protocols, factory, func() { once.Do(func() { close(stop) }) })
	if err != nil {
		return fmt.Errorf("create collect server: %w", err)
	}
	cs.Start()

	httpServer, err := startHTTP(cfg.Server, "collector", registry, func() error {
		if s := cs.Client().State(); s != remoting.ClientConnected {
			return fmt.Errorf("%w: client %s", remoting.ErrNotConnected, s)
		}
		return nil
	})
	if err != nil {
		cs.Shutdown()
		return err
	}
	logger.Info("collector started",
		zap.String("collector", cfg.Collector.Name),
		zap.String("manager_addr", cfg.Remoting.Client.ManagerAddr),
		zap.Strings("protocols", protocols.Names()))

	return signal.WaitForShutdown(stop, signal.DefaultTimeout, func() error {
		// 关闭顺序：HTTP服务 → 采集服务
		err := stopHTTP(httpServer)
		cs.Shutdown()
		if err != nil {
			return err
		}
		logger.Info("all services shutdown successfully")
		return nil
	})
}
