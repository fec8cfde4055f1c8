package dispatch

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
	"github.com/collector-remoting/pkg/queue"
	"github.com/collector-remoting/pkg/remoting"
)

// Version 上报给 manager 的采集器版本
const Version = "v1.0.0"

// CollectServer collector 进程的组装：remoting 客户端 + 处理器 + 任务服务 + 结果流水线
type CollectServer struct {
	cfg      *config.Config
	info     *collect.CollectorInfo
	results  *queue.StagedQueue[*collect.Result]
	jobs     *JobService
	pipeline *Pipeline
	client   *remoting.Client
	onClose  func()
	stopOnce sync.Once
}

// NewCollectServer factory 可为 nil（不导出指标）；onClose 在 manager 发送 GO_CLOSE 时调用
func NewCollectServer(cfg *config.Config, protocols *collect.Registry, factory *metrics.MetricFactory, onClose func()) (*CollectServer, error) {
	results, err := queue.New[*collect.Result](cfg.Queue.PollTimeout, cfg.Queue.Capacity, cfg.Collector.Consumers...)
	if err != nil {
		return nil, fmt.Errorf("create result queue: %w", err)
	}

	var remotingMetrics *metrics.RemotingMetrics
	var collectMetrics *metrics.CollectMetrics
	if factory != nil {
		remotingMetrics = factory.NewRemotingMetrics("collector")
		collectMetrics = factory.NewCollectMetrics()
		factory.RegisterQueueBacklog(results.Metrics)
	}

	s := &CollectServer{
		cfg:     cfg,
		info:    collect.LocalInfo(cfg.Collector.Name, Version),
		results: results,
		jobs:    NewJobService(&cfg.Collector, protocols, results),
		onClose: onClose,
	}
	registry := remoting.NewRegistry()
	RegisterProcessors(registry, s.jobs, s.handleClose)
	s.client = remoting.NewClient(cfg.Remoting.Client, registry, s, remotingMetrics)

	consumers := map[string]Consumer{
		"exporter":    NewExporter(collectMetrics),
		"transmitter": NewTransmitter(s.client),
	}
	bound := make([]Consumer, 0, len(cfg.Collector.Consumers))
	for _, name := range cfg.Collector.Consumers {
		c, ok := consumers[name]
		if !ok {
			return nil, fmt.Errorf("unsupported pipeline consumer %q", name)
		}
		bound = append(bound, c)
	}
	if s.pipeline, err = NewPipeline(results, bound...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CollectServer) Start() {
	s.pipeline.Start()
	s.client.Start()
	logger.Info("collect server started",
		zap.String("collector", s.info.Name), zap.String("manager_addr", s.cfg.Remoting.Client.ManagerAddr))
}

// Shutdown 依次停止 remoting 客户端、任务服务、流水线；可重复调用
func (s *CollectServer) Shutdown() {
	s.stopOnce.Do(func() {
		s.client.Shutdown()
		s.jobs.Shutdown()
		s.results.Close()
		s.pipeline.Stop()
		logger.Info("collect server shutdown", zap.String("collector", s.info.Name))
	})
}

func (s *CollectServer) Jobs() *JobService { return s.jobs }

func (s *CollectServer) Client() *remoting.Client { return s.client }

func (s *CollectServer) Info() *collect.CollectorInfo { return s.info }

// SendResult 在 conn 上异步发送一条结果消息；conn 为 nil 时使用客户端当前连接
func (s *CollectServer) SendResult(conn *remoting.Connection, msg *remoting.Message) error {
	if conn == nil {
		return s.client.SendAsync(msg)
	}
	return conn.SendAsync(msg)
}

// SendResultSync 同步发送，等待 manager 应答。conn 规则同 SendResult
func (s *CollectServer) SendResultSync(conn *remoting.Connection, msg *remoting.Message, timeout time.Duration) (*remoting.Message, error) {
	if timeout <= 0 {
		timeout = s.cfg.Remoting.Client.SyncTimeout
	}
	if conn == nil {
		return s.client.SendSync(msg, timeout)
	}
	return conn.SendSync(msg, timeout)
}

// OnChannelActive 每次（重新）连接后向 manager 上报上线
func (s *CollectServer) OnChannelActive(conn *remoting.Connection) {
	payload, err := s.info.Encode()
	if err != nil {
		logger.Error("encode collector info failed", zap.Error(err))
		return
	}
	if err := conn.SendAsync(remoting.NewRequest(remoting.TypeGoOnline, payload)); err != nil {
		logger.Warn("failed to announce collector online", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}
	logger.Info("collector announced online", zap.String("collector", s.info.Name), zap.String("conn_id", conn.ID()))
}

// OnChannelIdle 关闭空闲连接，客户端守护协程随后重连
func (s *CollectServer) OnChannelIdle(conn *remoting.Connection) {
	_ = conn.Close()
}

func (s *CollectServer) handleClose() {
	if s.onClose != nil {
		s.onClose()
		return
	}
	s.Shutdown()
}
