package agent

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collector-remoting/cmd/server"
	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
)

// initHTTPFlags /metrics /health 服务的 flag 挂在各角色子命令上
func initHTTPFlags(cmd *cobra.Command, role string) {
	f := cmd.Flags()

	f.Bool("server.enabled", defaultCfg.Server.Enabled, "-> Serve /metrics and /health for the "+role+" | 是否开启HTTP指标服务")
	f.String("server.addr", defaultCfg.Server.Addr, "-> "+role+" HTTP listening address | HTTP监听地址")
	f.Duration("server.read-timeout", defaultCfg.Server.ReadTimeout, "-> HTTP read timeout | 读取超时")
	f.Duration("server.write-timeout", defaultCfg.Server.WriteTimeout, "-> HTTP write timeout | 写入超时")
	f.Duration("server.idle-timeout", defaultCfg.Server.IdleTimeout, "-> HTTP keep-alive idle timeout | 空闲连接超时")
}

// startHTTP 未开启时返回 nil，stopHTTP 接受 nil
func startHTTP(cfg config.ServerConfig, role string, registry *prometheus.Registry, health server.HealthFunc) (*server.Server, error) {
	if !cfg.Enabled {
		logger.Info("HTTP server disabled", zap.String("role", role))
		return nil, nil
	}
	s := server.NewHTTPServer(cfg, role, registry, health)
	if err := s.Start(); err != nil {
		return nil, fmt.Errorf("start %s HTTP server failed: %w", role, err)
	}
	return s, nil
}

func stopHTTP(s *server.Server) error {
	if s == nil {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("shutdown HTTP server failed: %w", err)
	}
	return nil
}
