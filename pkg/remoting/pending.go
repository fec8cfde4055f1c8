package remoting

import (
	"sync"

	"github.com/collector-remoting/pkg/metrics"
)

// pendingRequest 同步调用的等待槽，done 容量为 1，完成方写入后不阻塞
type pendingRequest struct {
	identity uint64
	done     chan *Message
}

// pendingTable 单连接的关联表：identity -> 等待中的请求
type pendingTable struct {
	mu       sync.Mutex
	next     uint64
	inflight map[uint64]*pendingRequest
	metrics  *metrics.RemotingMetrics
}

func newPendingTable(m *metrics.RemotingMetrics) *pendingTable {
	return &pendingTable{inflight: make(map[uint64]*pendingRequest), metrics: m}
}

// add 分配一个当前未被占用的非零 identity
func (t *pendingTable) add() (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for tries := 0; ; tries++ {
		if tries > len(t.inflight)+1 {
			return nil, ErrIdentityExhausted
		}
		t.next++
		if t.next == 0 {
			continue
		}
		if _, used := t.inflight[t.next]; !used {
			break
		}
	}
	p := &pendingRequest{identity: t.next, done: make(chan *Message, 1)}
	t.inflight[p.identity] = p
	t.metrics.PendingAdded()
	return p, nil
}

// complete 把响应交给等待方；identity 已超时移除时返回 false
func (t *pendingTable) complete(msg *Message) bool {
	t.mu.Lock()
	p, ok := t.inflight[msg.Identity]
	if ok {
		delete(t.inflight, msg.Identity)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	t.metrics.PendingRemoved()
	p.done <- msg
	return true
}

// remove 放弃等待；返回 false 说明响应已先一步完成
func (t *pendingTable) remove(identity uint64) bool {
	t.mu.Lock()
	_, ok := t.inflight[identity]
	if ok {
		delete(t.inflight, identity)
	}
	t.mu.Unlock()
	if ok {
		t.metrics.PendingRemoved()
	}
	return ok
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
