package dispatch

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/remoting"
)

// RegisterProcessors 注册 collector 侧全部消息处理器。onClose 在收到 GO_CLOSE 后异步调用
func RegisterProcessors(reg *remoting.Registry, jobs *JobService, onClose func()) {
	reg.RegisterFunc(remoting.TypeHeartbeat, handleHeartbeat)
	reg.Register(remoting.TypeIssueCyclicTask, &cyclicTaskProcessor{jobs: jobs})
	reg.Register(remoting.TypeDeleteCyclicTask, &deleteTaskProcessor{jobs: jobs})
	reg.Register(remoting.TypeIssueOneTimeTask, &oneTimeTaskProcessor{jobs: jobs})
	reg.RegisterFunc(remoting.TypeGoOffline, func(conn *remoting.Connection, _ *remoting.Message) *remoting.Message {
		jobs.Offline()
		return nil
	})
	reg.RegisterFunc(remoting.TypeGoOnline, func(conn *remoting.Connection, _ *remoting.Message) *remoting.Message {
		jobs.Online()
		return nil
	})
	reg.RegisterFunc(remoting.TypeGoClose, func(conn *remoting.Connection, _ *remoting.Message) *remoting.Message {
		logger.Warn("manager requested collector close", zap.String("conn_id", conn.ID()))
		jobs.Offline()
		if onClose != nil {
			go onClose()
		}
		return nil
	})
}

// handleHeartbeat 请求原样应答，应答本身无需处理
func handleHeartbeat(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
	if msg.Direction == remoting.DirectionResponse {
		return nil
	}
	return remoting.ResponseTo(msg, remoting.TypeHeartbeat, nil)
}

type cyclicTaskProcessor struct {
	jobs *JobService
}

func (p *cyclicTaskProcessor) Handle(conn *remoting.Connection, msg *remoting.Message) *remoting.Message {
	job, err := collect.DecodeJob(msg.Payload)
	if err != nil {
		logger.Error("collector receive invalid cyclic task", zap.String("conn_id", conn.ID()), zap.Error(err))
		return nil
	}
	job.Cyclic = true
	if err := p.jobs.OnJobReceived(job); err != nil {
		logger.Warn("cyclic task rejected", zap.Int64("job_id", job.ID), zap.Error(err))
	}
	return nil
}

type deleteTaskProcessor struct {
	jobs *JobService
}

// Handle 载荷为任务 ID 的 JSON 数组
func (p *deleteTaskProcessor) Handle(conn *remoting.Connection, msg *remoting.Message) *remoting.Message {
	var ids []int64
	if err := json.Unmarshal(msg.Payload, &ids); err != nil {
		logger.Error("collector receive invalid delete task", zap.String("conn_id", conn.ID()), zap.Error(err))
		return nil
	}
	for _, id := range ids {
		if !p.jobs.CancelCyclicJob(id) {
			logger.Debug("delete of unknown cyclic job ignored", zap.Int64("job_id", id))
		}
	}
	return nil
}

type oneTimeTaskProcessor struct {
	jobs *JobService
}

// Handle 采集在任务执行池中进行，不占用消息处理协程；
// 结果作为响应异步写回，沿用请求 identity，与 manager 的同步调用对应
func (p *oneTimeTaskProcessor) Handle(conn *remoting.Connection, msg *remoting.Message) *remoting.Message {
	job, err := collect.DecodeJob(msg.Payload)
	if err != nil {
		logger.Error("collector receive invalid one-time task", zap.String("conn_id", conn.ID()), zap.Error(err))
		return oneTimeResponse(msg, &collect.Result{Code: collect.CodeFail, Message: err.Error(), Collector: p.jobs.name, Time: time.Now().UnixMilli()})
	}
	job.Cyclic = false
	p.jobs.RunOneTimeJobAsync(job, func(res *collect.Result) {
		resp := oneTimeResponse(msg, res)
		if resp == nil {
			return
		}
		if err := conn.SendAsync(resp); err != nil {
			logger.Warn("send one-time result failed",
				zap.String("conn_id", conn.ID()), zap.Int64("job_id", job.ID), zap.Error(err))
		}
	})
	return nil
}

func oneTimeResponse(req *remoting.Message, res *collect.Result) *remoting.Message {
	payload, err := res.Encode()
	if err != nil {
		logger.Error("encode one-time result failed", zap.Int64("job_id", res.JobID), zap.Error(err))
		return nil
	}
	return remoting.ResponseTo(req, remoting.TypeResponseOneTimeTaskData, payload)
}
