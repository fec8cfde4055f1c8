// Package collect 采集任务与结果模型、采集协议注册表。
package collect

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job manager 下发的采集任务
type Job struct {
	ID        int64  `json:"id"`
	MonitorID int64  `json:"monitorId"`
	App       string `json:"app"`
	// Protocol 执行该任务的采集协议名称
	Protocol string `json:"protocol"`
	// IntervalSeconds 周期任务的采集间隔（秒）
	IntervalSeconds int64             `json:"interval"`
	Cyclic          bool              `json:"isCyclic"`
	Params          map[string]string `json:"params,omitempty"`
}

// Interval 采集间隔，未设置时为 0
func (j *Job) Interval() time.Duration {
	return time.Duration(j.IntervalSeconds) * time.Second
}

// Validate 下发任务的基本校验
func (j *Job) Validate() error {
	if j.ID == 0 {
		return fmt.Errorf("job id is required")
	}
	if j.Protocol == "" {
		return fmt.Errorf("job %d: protocol is required", j.ID)
	}
	if j.Cyclic && j.IntervalSeconds <= 0 {
		return fmt.Errorf("job %d: cyclic job needs a positive interval", j.ID)
	}
	return nil
}

// DecodeJob 解析消息载荷中的任务
func DecodeJob(payload []byte) (*Job, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty job payload")
	}
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func (j *Job) Encode() ([]byte, error) { return json.Marshal(j) }

// Code 采集结果状态码
type Code int

const (
	CodeSuccess Code = iota
	CodeUnavailable
	CodeUnreachable
	CodeUnconnectable
	CodeFail
	CodeTimeout
)

// Result 一次采集的结果，进入分级队列后各消费者只读
type Result struct {
	JobID     int64             `json:"jobId"`
	MonitorID int64             `json:"monitorId"`
	App       string            `json:"app"`
	Protocol  string            `json:"protocol"`
	Collector string            `json:"collector"`
	Code      Code              `json:"code"`
	Message   string            `json:"msg,omitempty"`
	Time      int64             `json:"time"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func (r *Result) Encode() ([]byte, error) { return json.Marshal(r) }

func DecodeResult(payload []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// CollectorInfo GO_ONLINE 时上报的采集器信息
type CollectorInfo struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Version  string `json:"version"`
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Platform string `json:"platform"`
}

func (c *CollectorInfo) Encode() ([]byte, error) { return json.Marshal(c) }

func DecodeCollectorInfo(payload []byte) (*CollectorInfo, error) {
	var c CollectorInfo
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode collector info: %w", err)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("collector info without name")
	}
	return &c, nil
}
