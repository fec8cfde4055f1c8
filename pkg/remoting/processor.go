package remoting

import (
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/logger"
)

// Processor 按消息类型注册的处理器。返回非 nil 时作为响应写回同一连接
type Processor interface {
	Handle(conn *Connection, msg *Message) *Message
}

// ProcessorFunc 函数适配器
type ProcessorFunc func(conn *Connection, msg *Message) *Message

func (f ProcessorFunc) Handle(conn *Connection, msg *Message) *Message { return f(conn, msg) }

// Registry 消息类型 -> 处理器。端点启动后冻结，只读访问
type Registry struct {
	mu         sync.RWMutex
	processors map[MessageType]Processor
	frozen     bool
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[MessageType]Processor)}
}

// Register 注册处理器；同一类型重复注册或端点启动后注册均 panic
func (r *Registry) Register(t MessageType, p Processor) {
	if p == nil {
		panic(fmt.Sprintf("remoting: nil processor for %s", t))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("remoting: register %s after endpoint start", t))
	}
	if _, ok := r.processors[t]; ok {
		panic(fmt.Sprintf("remoting: processor for %s already registered", t))
	}
	r.processors[t] = p
}

func (r *Registry) RegisterFunc(t MessageType, fn func(conn *Connection, msg *Message) *Message) {
	r.Register(t, ProcessorFunc(fn))
}

// Lookup 查找处理器
func (r *Registry) Lookup(t MessageType) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[t]
	return p, ok
}

func (r *Registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Dispatch 执行 msg 对应的处理器并返回可选响应。
// 未注册的类型记录日志后丢弃，返回 found=false；处理器 panic 被捕获并记录
func (r *Registry) Dispatch(conn *Connection, msg *Message) (reply *Message, found bool) {
	p, ok := r.Lookup(msg.Type)
	if !ok {
		logger.Warn("no processor registered, message dropped",
			connFields(conn, zap.Stringer("type", msg.Type), zap.Stringer("direction", msg.Direction))...)
		return nil, false
	}
	var pc panics.Catcher
	pc.Try(func() { reply = p.Handle(conn, msg) })
	if rec := pc.Recovered(); rec != nil {
		logger.Error("processor panicked",
			connFields(conn, zap.Stringer("type", msg.Type), zap.String("panic", rec.String()))...)
		return nil, true
	}
	return reply, true
}

func connFields(conn *Connection, fields ...zap.Field) []zap.Field {
	if conn == nil {
		return fields
	}
	return append(fields, zap.String("conn_id", conn.ID()), zap.String("remote", conn.RemoteAddr()))
}
