// Package queue 采集结果的分级多消费者队列。
//
// 每个消费者对应一个阶段，数据从阶段 0 进入，被某个消费者取走后移入下一阶段，
// 最后一个阶段取走后丢弃，因此每条数据被每个消费者各消费一次，且单个消费者内保持追加顺序。
// 消费者看到的是同一份数据，不能修改。
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultPollTimeout 单次 Poll 的默认最长等待
const DefaultPollTimeout = 2 * time.Second

var (
	ErrNoConsumers       = errors.New("queue: at least one consumer is required")
	ErrDuplicateConsumer = errors.New("queue: duplicate consumer name")
	ErrUnknownConsumer   = errors.New("queue: unknown consumer")
	ErrQueueFull         = errors.New("queue: stage 0 is full")
	ErrClosed            = errors.New("queue: closed")
)

// ConsumerID 构造时由消费者名称解析出的编号
type ConsumerID int

// StagedQueue 阶段数 == 消费者数
type StagedQueue[T any] struct {
	mu          sync.Mutex
	names       []string
	ids         map[string]ConsumerID
	stages      []fifo[T]
	offsets     []uint64
	capacity    int
	pollTimeout time.Duration
	// notify 每次有数据进入任一阶段时关闭并替换，唤醒所有等待者
	notify chan struct{}
	closed bool
	done   chan struct{}
}

// New 创建队列。capacity 限制阶段 0 的长度，0 表示不限制；pollTimeout <= 0 使用默认值
func New[T any](pollTimeout time.Duration, capacity int, consumers ...string) (*StagedQueue[T], error) {
	if len(consumers) == 0 {
		return nil, ErrNoConsumers
	}
	if capacity < 0 {
		return nil, fmt.Errorf("queue: negative capacity %d", capacity)
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	ids := make(map[string]ConsumerID, len(consumers))
	for i, name := range consumers {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("queue: consumer %d has an empty name", i)
		}
		if _, dup := ids[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateConsumer, name)
		}
		ids[name] = ConsumerID(i)
	}
	return &StagedQueue[T]{
		names:       append([]string(nil), consumers...),
		ids:         ids,
		stages:      make([]fifo[T], len(consumers)),
		offsets:     make([]uint64, len(consumers)),
		capacity:    capacity,
		pollTimeout: pollTimeout,
		notify:      make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Consumer 按名称查找消费者编号
func (q *StagedQueue[T]) Consumer(name string) (ConsumerID, error) {
	id, ok := q.ids[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownConsumer, name)
	}
	return id, nil
}

// Consumers 按编号顺序返回消费者名称
func (q *StagedQueue[T]) Consumers() []string {
	return append([]string(nil), q.names...)
}

// Append 追加到阶段 0
func (q *StagedQueue[T]) Append(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.capacity > 0 && q.stages[0].len() >= q.capacity {
		return ErrQueueFull
	}
	q.stages[0].push(item)
	q.wakeLocked()
	return nil
}

// Poll 为消费者取下一条数据，最多等待 pollTimeout。
// 超时、ctx 结束或队列关闭时返回 ok=false 且 err 为 nil
func (q *StagedQueue[T]) Poll(ctx context.Context, id ConsumerID) (item T, ok bool, err error) {
	if int(id) < 0 || int(id) >= len(q.offsets) {
		return item, false, fmt.Errorf("%w: id %d", ErrUnknownConsumer, id)
	}
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return item, false, nil
		}
		if item, ok = q.takeLocked(id); ok {
			q.mu.Unlock()
			return item, true, nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return item, false, nil
		case <-ctx.Done():
			return item, false, nil
		case <-q.done:
			return item, false, nil
		}
	}
}

// takeLocked 从消费者当前所在阶段取一条，移入下一阶段或在末阶段丢弃
func (q *StagedQueue[T]) takeLocked(id ConsumerID) (T, bool) {
	pos := q.positionLocked(id)
	item, ok := q.stages[pos].pop()
	if !ok {
		return item, false
	}
	q.offsets[id]++
	if next := pos + 1; next < len(q.stages) {
		q.stages[next].push(item)
		q.wakeLocked()
	}
	return item, true
}

// positionLocked 偏移量大于自己的其他消费者个数
func (q *StagedQueue[T]) positionLocked(id ConsumerID) int {
	mine := q.offsets[id]
	pos := 0
	for j, off := range q.offsets {
		if ConsumerID(j) != id && off > mine {
			pos++
		}
	}
	return pos
}

func (q *StagedQueue[T]) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Metrics 每个消费者尚未取走的数量：缓冲总数 - 自身偏移 + 最小偏移
func (q *StagedQueue[T]) Metrics() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for i := range q.stages {
		total += q.stages[i].len()
	}
	minOffset := q.offsets[0]
	for _, off := range q.offsets[1:] {
		minOffset = min(minOffset, off)
	}
	out := make(map[string]int, len(q.names))
	for i, name := range q.names {
		out[name] = total - int(q.offsets[i]-minOffset)
	}
	return out
}

// Close 唤醒所有等待中的 Poll，之后 Append 返回 ErrClosed；可重复调用
func (q *StagedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
