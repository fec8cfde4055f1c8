package collect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
)

var (
	ErrUnknownProtocol = errors.New("collect: unknown protocol")
	ErrProtocolPanic   = errors.New("collect: protocol panicked")
)

// Protocol 采集协议：job -> 指标字段。新增协议只需实现该接口并注册
type Protocol interface {
	Name() string
	Collect(ctx context.Context, job *Job) (map[string]string, error)
}

// ProtocolFunc 函数适配器
type ProtocolFunc struct {
	ProtocolName string
	Fn           func(ctx context.Context, job *Job) (map[string]string, error)
}

func (p ProtocolFunc) Name() string { return p.ProtocolName }

func (p ProtocolFunc) Collect(ctx context.Context, job *Job) (map[string]string, error) {
	return p.Fn(ctx, job)
}

// Registry 协议名 -> 实现
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
	metrics   *metrics.CollectMetrics
}

// NewRegistry m 可为 nil
func NewRegistry(m *metrics.CollectMetrics) *Registry {
	return &Registry{protocols: make(map[string]Protocol), metrics: m}
}

// Register 同名协议重复注册返回错误
func (r *Registry) Register(p Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.protocols[p.Name()]; ok {
		return fmt.Errorf("collect: protocol %q already registered", p.Name())
	}
	r.protocols[p.Name()] = p
	logger.Debug("registered collect protocol", zap.String("protocol", p.Name()))
	return nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run 执行一次采集，失败（含协议 panic）时结果码为 CodeFail / CodeTimeout，不返回错误
func (r *Registry) Run(ctx context.Context, collector string, job *Job) *Result {
	res := &Result{
		JobID:     job.ID,
		MonitorID: job.MonitorID,
		App:       job.App,
		Protocol:  job.Protocol,
		Collector: collector,
		Time:      time.Now().UnixMilli(),
	}
	r.mu.RLock()
	p, ok := r.protocols[job.Protocol]
	r.mu.RUnlock()
	if !ok {
		res.Code = CodeUnavailable
		res.Message = fmt.Sprintf("%v: %s", ErrUnknownProtocol, job.Protocol)
		r.metrics.Observe(job.Protocol, 0, ErrUnknownProtocol)
		return res
	}

	start := time.Now()
	fields, err := collectSafe(ctx, p, job)
	r.metrics.Observe(job.Protocol, time.Since(start), err)
	switch {
	case err == nil:
		res.Code = CodeSuccess
		res.Fields = fields
	case errors.Is(err, context.DeadlineExceeded):
		res.Code = CodeTimeout
		res.Message = err.Error()
	default:
		res.Code = CodeFail
		res.Message = err.Error()
	}
	if err != nil {
		logger.Warn("collection failed", zap.Int64("job_id", job.ID), zap.String("protocol", job.Protocol), zap.Error(err))
	}
	return res
}

// collectSafe 协议实现的 panic 转为 ErrProtocolPanic，调用方总能拿到结果
func collectSafe(ctx context.Context, p Protocol, job *Job) (fields map[string]string, err error) {
	var pc panics.Catcher
	pc.Try(func() { fields, err = p.Collect(ctx, job) })
	if rec := pc.Recovered(); rec != nil {
		logger.Error("collection protocol panicked",
			zap.Int64("job_id", job.ID), zap.String("protocol", job.Protocol), zap.String("panic", rec.String()))
		return nil, fmt.Errorf("%w: %v", ErrProtocolPanic, rec.Value)
	}
	return fields, err
}
