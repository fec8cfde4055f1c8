package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
	"github.com/collector-remoting/pkg/queue"
	"github.com/collector-remoting/pkg/remoting"
)

// Consumer 分级队列的一个消费阶段。结果对象在消费者之间共享，只读
type Consumer interface {
	Name() string
	Consume(ctx context.Context, res *collect.Result)
}

type boundConsumer struct {
	Consumer
	id queue.ConsumerID
}

// Pipeline 每个消费者一个协程循环 Poll
type Pipeline struct {
	results   *queue.StagedQueue[*collect.Result]
	consumers []boundConsumer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        conc.WaitGroup
}

// NewPipeline 队列中的每个消费者名称都必须有且只有一个实现
func NewPipeline(results *queue.StagedQueue[*collect.Result], consumers ...Consumer) (*Pipeline, error) {
	byName := make(map[string]Consumer, len(consumers))
	for _, c := range consumers {
		if _, dup := byName[c.Name()]; dup {
			return nil, fmt.Errorf("pipeline: consumer %q bound twice", c.Name())
		}
		byName[c.Name()] = c
	}
	bound := make([]boundConsumer, 0, len(consumers))
	for _, name := range results.Consumers() {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("pipeline: no implementation for queue consumer %q", name)
		}
		id, err := results.Consumer(name)
		if err != nil {
			return nil, err
		}
		bound = append(bound, boundConsumer{Consumer: c, id: id})
		delete(byName, name)
	}
	if len(byName) > 0 {
		extra := make([]string, 0, len(byName))
		for name := range byName {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return nil, fmt.Errorf("pipeline: %w: %s", queue.ErrUnknownConsumer, strings.Join(extra, ","))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{results: results, consumers: bound, ctx: ctx, cancel: cancel}, nil
}

func (p *Pipeline) Start() {
	for _, c := range p.consumers {
		p.wg.Go(func() { p.run(c) })
	}
	logger.Info("result pipeline started", zap.Strings("consumers", p.results.Consumers()))
}

func (p *Pipeline) run(c boundConsumer) {
	for p.ctx.Err() == nil {
		res, ok, err := p.results.Poll(p.ctx, c.id)
		if err != nil {
			logger.Error("pipeline poll failed", zap.String("consumer", c.Name()), zap.Error(err))
			return
		}
		if !ok {
			continue
		}
		c.Consume(p.ctx, res)
	}
}

// Stop 停止全部消费协程并等待退出
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Exporter 记录结果并计数
type Exporter struct {
	metrics *metrics.CollectMetrics
}

func NewExporter(m *metrics.CollectMetrics) *Exporter { return &Exporter{metrics: m} }

func (e *Exporter) Name() string { return "exporter" }

func (e *Exporter) Consume(_ context.Context, res *collect.Result) {
	e.metrics.Exported(res.Protocol)
	logger.Debug("collect result",
		zap.Int64("job_id", res.JobID), zap.String("protocol", res.Protocol),
		zap.Int("code", int(res.Code)), zap.Int("fields", len(res.Fields)))
}

// Sender 发送通道，由 remoting.Client 实现
type Sender interface {
	SendAsync(msg *remoting.Message) error
}

// Transmitter 把周期任务结果回传 manager。未连接时丢弃并记录
type Transmitter struct {
	sender Sender
}

func NewTransmitter(sender Sender) *Transmitter { return &Transmitter{sender: sender} }

func (t *Transmitter) Name() string { return "transmitter" }

func (t *Transmitter) Consume(_ context.Context, res *collect.Result) {
	payload, err := res.Encode()
	if err != nil {
		logger.Error("encode collect result failed", zap.Int64("job_id", res.JobID), zap.Error(err))
		return
	}
	if err := t.sender.SendAsync(remoting.NewRequest(remoting.TypeResponseCyclicTaskData, payload)); err != nil {
		logger.Warn("failed to transmit collect result", zap.Int64("job_id", res.JobID), zap.Error(err))
	}
}
