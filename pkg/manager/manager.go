// Package manager manager 侧组装：接收采集器连接、维护在线采集器、下发任务与控制指令。
package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
	"github.com/collector-remoting/pkg/remoting"
)

// DefaultSyncTimeout 一次性任务默认等待时间
const DefaultSyncTimeout = 10 * time.Second

var ErrCollectorNotFound = errors.New("manager: collector not online")

// ResultSink 接收采集器上报的周期任务数据
type ResultSink func(collector string, res *collect.Result)

type Manager struct {
	server     *remoting.Server
	collectors *collectorTable
	sink       ResultSink
	watchers   conc.WaitGroup
}

// NewManager factory 与 sink 可为 nil
func NewManager(cfg config.RemotingServerConfig, factory *metrics.MetricFactory, sink ResultSink) *Manager {
	m := &Manager{collectors: newCollectorTable(), sink: sink}
	var rm *metrics.RemotingMetrics
	if factory != nil {
		rm = factory.NewRemotingMetrics("manager")
	}
	registry := remoting.NewRegistry()
	m.registerProcessors(registry)
	m.server = remoting.NewServer(cfg, registry, m, rm)
	return m
}

func (m *Manager) Start() error {
	if err := m.server.Start(); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	return nil
}

// Shutdown 关闭全部采集器连接；可重复调用
func (m *Manager) Shutdown() {
	m.server.Shutdown()
	m.watchers.Wait()
}

func (m *Manager) Addr() net.Addr { return m.server.Addr() }

// Collectors 在线采集器，按名称排序
func (m *Manager) Collectors() []*collect.CollectorInfo { return m.collectors.list() }

func (m *Manager) Collector(name string) (*collect.CollectorInfo, bool) {
	s, ok := m.collectors.get(name)
	if !ok {
		return nil, false
	}
	return s.info, true
}

func (m *Manager) OnChannelActive(conn *remoting.Connection) {
	logger.Debug("collector connection accepted", zap.String("conn_id", conn.ID()), zap.String("remote", conn.RemoteAddr()))
}

func (m *Manager) OnChannelIdle(conn *remoting.Connection) {
	name, _ := m.collectors.nameOf(conn)
	logger.Warn("collector connection idle", zap.String("collector", name), zap.String("conn_id", conn.ID()))
}

// IssueCyclicTask 下发周期任务
func (m *Manager) IssueCyclicTask(name string, job *collect.Job) error {
	j := *job
	j.Cyclic = true
	if err := j.Validate(); err != nil {
		return err
	}
	payload, err := j.Encode()
	if err != nil {
		return fmt.Errorf("encode job %d: %w", j.ID, err)
	}
	return m.send(name, remoting.NewRequest(remoting.TypeIssueCyclicTask, payload))
}

// DeleteCyclicTask 取消周期任务，未知 ID 由采集器忽略
func (m *Manager) DeleteCyclicTask(name string, ids ...int64) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return m.send(name, remoting.NewRequest(remoting.TypeDeleteCyclicTask, payload))
}

// IssueOneTimeTask 同步下发一次性任务并等待采集结果；timeout <= 0 时使用 DefaultSyncTimeout
func (m *Manager) IssueOneTimeTask(name string, job *collect.Job, timeout time.Duration) (*collect.Result, error) {
	j := *job
	j.Cyclic = false
	if err := j.Validate(); err != nil {
		return nil, err
	}
	s, ok := m.collectors.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectorNotFound, name)
	}
	payload, err := j.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode job %d: %w", j.ID, err)
	}
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	resp, err := m.server.SendSync(s.conn, remoting.NewRequest(remoting.TypeIssueOneTimeTask, payload), timeout)
	if err != nil {
		return nil, err
	}
	if resp.Type != remoting.TypeResponseOneTimeTaskData {
		return nil, fmt.Errorf("unexpected reply %s to one-time task %d", resp.Type, j.ID)
	}
	return collect.DecodeResult(resp.Payload)
}

// GoOffline 通知采集器停止采集，连接保留
func (m *Manager) GoOffline(name string) error {
	return m.send(name, remoting.NewRequest(remoting.TypeGoOffline, nil))
}

func (m *Manager) GoOnline(name string) error {
	return m.send(name, remoting.NewRequest(remoting.TypeGoOnline, nil))
}

// GoClose 通知采集器退出
func (m *Manager) GoClose(name string) error {
	return m.send(name, remoting.NewRequest(remoting.TypeGoClose, nil))
}

func (m *Manager) send(name string, msg *remoting.Message) error {
	s, ok := m.collectors.get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectorNotFound, name)
	}
	if err := m.server.SendAsync(s.conn, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Type, name, err)
	}
	return nil
}
