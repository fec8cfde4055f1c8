// Package dispatch collector 侧的任务调度粘合层：处理 manager 下发的消息，
// 执行采集任务，把结果写入分级队列，由流水线消费者导出和回传。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/queue"
)

var (
	ErrOffline         = errors.New("dispatch: collector is offline")
	ErrServiceShutdown = errors.New("dispatch: job service shut down")
)

// cyclicJob 一个周期任务的运行句柄
type cyclicJob struct {
	job    *collect.Job
	cancel context.CancelFunc
}

// JobService 执行周期任务与一次性任务。采集在有界协程池中执行
type JobService struct {
	name      string
	oneTime   time.Duration
	protocols *collect.Registry
	results   *queue.StagedQueue[*collect.Result]
	exec      *pool.Pool

	mu     sync.Mutex
	cyclic map[int64]*cyclicJob
	closed bool
	online atomic.Bool

	// execMu 保证 Shutdown 等待执行池时没有新的投递
	execMu     sync.RWMutex
	execClosed bool

	ctx    context.Context
	cancel context.CancelFunc
	loops  conc.WaitGroup
}

// NewJobService 创建任务服务，初始为在线状态
func NewJobService(cfg *config.CollectorConfig, protocols *collect.Registry, results *queue.StagedQueue[*collect.Result]) *JobService {
	ctx, cancel := context.WithCancel(context.Background())
	oneTime := cfg.OneTimeTimeout
	if oneTime <= 0 {
		oneTime = config.DefaultOneTimeTimeout
	}
	s := &JobService{
		name:      cfg.Name,
		oneTime:   oneTime,
		protocols: protocols,
		results:   results,
		exec:      pool.New().WithMaxGoroutines(cfg.Workers),
		cyclic:    make(map[int64]*cyclicJob),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.online.Store(true)
	return s
}

func (s *JobService) IsOnline() bool { return s.online.Load() }

// OnJobReceived 周期任务加入调度，一次性任务异步执行后写入结果队列
func (s *JobService) OnJobReceived(job *collect.Job) error {
	if job.Cyclic {
		return s.AddCyclicJob(job)
	}
	if !s.IsOnline() {
		return ErrOffline
	}
	return s.submit(func() { s.appendResult(s.run(job)) })
}

// AddCyclicJob 加入周期任务；同 ID 的任务被替换
func (s *JobService) AddCyclicJob(job *collect.Job) error {
	if job.Interval() <= 0 {
		return fmt.Errorf("dispatch: cyclic job %d needs a positive interval", job.ID)
	}
	if !s.IsOnline() {
		return ErrOffline
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceShutdown
	}
	if !s.IsOnline() {
		return ErrOffline
	}
	if prev, ok := s.cyclic[job.ID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cyclic[job.ID] = &cyclicJob{job: job, cancel: cancel}
	s.loops.Go(func() { s.loop(ctx, job) })
	logger.Info("cyclic job scheduled",
		zap.Int64("job_id", job.ID), zap.String("protocol", job.Protocol), zap.Duration("interval", job.Interval()))
	return nil
}

// CancelCyclicJob 取消周期任务，任务不存在时返回 false
func (s *JobService) CancelCyclicJob(id int64) bool {
	s.mu.Lock()
	cj, ok := s.cyclic[id]
	if ok {
		delete(s.cyclic, id)
	}
	s.mu.Unlock()
	if ok {
		cj.cancel()
		logger.Info("cyclic job cancelled", zap.Int64("job_id", id))
	}
	return ok
}

// CyclicJobs 当前调度中的周期任务 ID
func (s *JobService) CyclicJobs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.cyclic))
	for id := range s.cyclic {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RunOneTimeJob 同步执行一次性任务，离线时返回 CodeUnavailable 结果
func (s *JobService) RunOneTimeJob(job *collect.Job) *collect.Result {
	done := make(chan *collect.Result, 1)
	s.RunOneTimeJobAsync(job, func(res *collect.Result) { done <- res })
	return <-done
}

// RunOneTimeJobAsync 在执行池中运行一次性任务，完成后调用 reply。
// 离线或已关闭时 reply 在当前协程内以 CodeUnavailable 结果调用
func (s *JobService) RunOneTimeJobAsync(job *collect.Job, reply func(*collect.Result)) {
	if !s.IsOnline() {
		reply(s.unavailable(job, ErrOffline))
		return
	}
	if err := s.submit(func() { reply(s.run(job)) }); err != nil {
		reply(s.unavailable(job, err))
	}
}

// Offline 停止采集并取消全部周期任务，与 manager 的连接保持不变
func (s *JobService) Offline() {
	if !s.online.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	jobs := s.cyclic
	s.cyclic = make(map[int64]*cyclicJob)
	s.mu.Unlock()
	for _, cj := range jobs {
		cj.cancel()
	}
	logger.Info("collector offline, collection stopped", zap.String("collector", s.name), zap.Int("cancelled_jobs", len(jobs)))
}

// Online 重新开启采集
func (s *JobService) Online() {
	if s.online.CompareAndSwap(false, true) {
		logger.Info("collector online, collection enabled", zap.String("collector", s.name))
	}
}

// Shutdown 取消全部任务并等待执行中的采集结束；可重复调用
func (s *JobService) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cyclic = make(map[int64]*cyclicJob)
	s.mu.Unlock()

	s.cancel()
	s.loops.Wait()
	s.execMu.Lock()
	s.execClosed = true
	s.execMu.Unlock()
	s.exec.Wait()
	logger.Info("job service shutdown", zap.String("collector", s.name))
}

// submit 投递到执行池；池满时阻塞
func (s *JobService) submit(task func()) error {
	s.execMu.RLock()
	defer s.execMu.RUnlock()
	if s.execClosed {
		return ErrServiceShutdown
	}
	s.exec.Go(task)
	return nil
}

// loop 先立即采集一次，之后按间隔采集，直到任务被取消
func (s *JobService) loop(ctx context.Context, job *collect.Job) {
	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()
	for {
		if err := s.submit(func() {
			if ctx.Err() == nil {
				s.appendResult(s.runWithContext(ctx, job))
			}
		}); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (s *JobService) run(job *collect.Job) *collect.Result {
	return s.runWithContext(s.ctx, job)
}

// runWithContext 单次采集超时取采集间隔，没有间隔的任务取 oneTime
func (s *JobService) runWithContext(ctx context.Context, job *collect.Job) *collect.Result {
	d := job.Interval()
	if d <= 0 {
		d = s.oneTime
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return s.protocols.Run(ctx, s.name, job)
}

func (s *JobService) appendResult(res *collect.Result) {
	if err := s.results.Append(res); err != nil {
		logger.Warn("collect result dropped", zap.Int64("job_id", res.JobID), zap.Error(err))
	}
}

func (s *JobService) unavailable(job *collect.Job, err error) *collect.Result {
	return &collect.Result{
		JobID:     job.ID,
		MonitorID: job.MonitorID,
		App:       job.App,
		Protocol:  job.Protocol,
		Collector: s.name,
		Code:      collect.CodeUnavailable,
		Message:   err.Error(),
		Time:      time.Now().UnixMilli(),
	}
}
