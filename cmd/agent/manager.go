package agent

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/manager"
	"github.com/collector-remoting/pkg/signal"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the manager endpoint that collectors connect to",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManager(cmd)
	},
}

func init() {
	initHTTPFlags(managerCmd, "manager")
}

func runManager(cmd *cobra.Command) error {
	cfg, factory, registry := bootstrap(cmd, "manager")
	defer logger.Sync()

	m := manager.NewManager(cfg.Remoting.Server, factory, func(name string, res *collect.Result) {
		logger.Debug("cyclic data received",
			zap.String("collector", name), zap.Int64("job_id", res.JobID), zap.Int("code", int(res.Code)))
	})
	if err := m.Start(); err != nil {
		return err
	}

	httpServer, err := startHTTP(cfg.Server, "manager", registry, nil)
	if err != nil {
		m.Shutdown()
		return err
	}
	logger.Info("manager started", zap.String("remoting_addr", m.Addr().String()))

	return signal.WaitForShutdown(nil, signal.DefaultTimeout, func() error {
		err := stopHTTP(httpServer)
		m.Shutdown()
		if err != nil {
			return err
		}
		logger.Info("all services shutdown successfully")
		return nil
	})
}
