package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if h.Addr == "" {
		return errors.New("[ERROR] Server.Addr cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("[ERROR] Server.Addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 通信配置校验
func (r *RemotingConfig) Validate() error {
	if err := valid.Struct(r); err != nil {
		return err
	}
	if _, err := net.ResolveTCPAddr("tcp", r.Server.Addr); err != nil {
		return fmt.Errorf("[ERROR] Remoting.Server.Addr format invalid, got %s: %w", r.Server.Addr, err)
	}
	if _, _, err := net.SplitHostPort(r.Client.ManagerAddr); err != nil {
		return fmt.Errorf("[ERROR] Remoting.Client.ManagerAddr format invalid, got %s: %w", r.Client.ManagerAddr, err)
	}
	// 心跳必须落在空闲窗口内，否则正常连接也会被判定为空闲
	if r.Client.HeartbeatInterval >= r.Client.IdleTimeout {
		return fmt.Errorf("remoting.client.heartbeat_interval (%s) must be shorter than idle_timeout (%s)",
			r.Client.HeartbeatInterval, r.Client.IdleTimeout)
	}
	return nil
}

// Validate 采集器配置校验
// 消费者名称即流水线阶段名：不能为空、不能重复、不能带空白
func (c *CollectorConfig) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("collector.name cannot be blank")
	}
	seen := map[string]bool{}
	for _, name := range c.Consumers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("collector.consumers cannot contain empty string")
		}
		if strings.ContainsAny(name, " \t\r\n") {
			return fmt.Errorf("collector.consumers: %q contains whitespace", name)
		}
		if seen[name] {
			return fmt.Errorf("collector.consumers duplicated entry: %q", name)
		}
		seen[name] = true
	}
	return nil
}
