package remoting

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
)

// EventListener 连接事件回调，均在连接自己的协程上执行
type EventListener interface {
	// OnChannelActive 连接建立后、开始读帧前调用
	OnChannelActive(conn *Connection)
	// OnChannelIdle 客户端连接空闲超时时调用（每个连接至多一次）
	OnChannelIdle(conn *Connection)
}

// endpoint client/server 共享的运行时依赖
type endpoint struct {
	side     string
	codec    *FrameCodec
	registry *Registry
	workers  *workerPool
	listener EventListener
	metrics  *metrics.RemotingMetrics
}

// Connection 一条物理连接。关闭后不可复用，重连产生新的 Connection
type Connection struct {
	id         string
	raw        net.Conn
	remote     string
	ep         *endpoint
	pending    *pendingTable
	writeMu    sync.Mutex
	lastActive atomic.Int64
	idle       *idleDetector
	closeOnce  sync.Once
	closed     chan struct{}
}

func newConnection(raw net.Conn, ep *endpoint, idleTimeout time.Duration, onIdle func(*Connection)) *Connection {
	if tc, ok := raw.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c := &Connection{
		id:      uuid.NewString(),
		raw:     raw,
		remote:  raw.RemoteAddr().String(),
		ep:      ep,
		pending: newPendingTable(ep.metrics),
		closed:  make(chan struct{}),
	}
	c.touch()
	c.idle = newIdleDetector(idleTimeout, &c.lastActive, func() { onIdle(c) })
	ep.metrics.ConnOpened()
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) RemoteAddr() string { return c.remote }

func (c *Connection) LocalAddr() string { return c.raw.LocalAddr().String() }

// Done 连接关闭时关闭
func (c *Connection) Done() <-chan struct{} { return c.closed }

func (c *Connection) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// PendingRequests 等待响应的同步请求数
func (c *Connection) PendingRequests() int { return c.pending.len() }

func (c *Connection) touch() { c.lastActive.Store(time.Now().UnixNano()) }

// Close 关闭连接，可重复调用。等待中的同步请求按各自超时结束
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.idle.stop()
		err = c.raw.Close()
		c.ep.metrics.ConnClosed()
		logger.Info("connection closed", zap.String("side", c.ep.side), zap.String("conn_id", c.id), zap.String("remote", c.remote))
	})
	return err
}

// SendAsync 发送消息，不建立关联状态。写失败时关闭连接
func (c *Connection) SendAsync(msg *Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	frame, err := c.ep.codec.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	_, err = c.raw.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		logger.Warn("failed to send message, closing connection",
			zap.String("side", c.ep.side), zap.String("conn_id", c.id), zap.String("remote", c.remote),
			zap.Stringer("type", msg.Type), zap.Error(err))
		_ = c.Close()
		return errors.Join(ErrConnectionClosed, err)
	}
	c.touch()
	c.ep.metrics.FrameSent(msg.Type.String())
	return nil
}

// SendSync 发送请求并等待同 identity 的响应，超时返回 *TimeoutError。
// req 本身不会被修改
func (c *Connection) SendSync(req *Message, timeout time.Duration) (*Message, error) {
	p, err := c.pending.add()
	if err != nil {
		return nil, err
	}
	out := *req
	out.Direction = DirectionRequest
	out.Identity = p.identity
	if err := c.SendAsync(&out); err != nil {
		c.pending.remove(p.identity)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-p.done:
		return resp, nil
	case <-timer.C:
		if c.pending.remove(p.identity) {
			c.ep.metrics.SyncTimeout()
			logger.Warn("sync request timed out",
				zap.String("side", c.ep.side), zap.String("conn_id", c.id),
				zap.Stringer("type", req.Type), zap.Uint64("identity", p.identity), zap.Duration("timeout", timeout))
			return nil, &TimeoutError{Identity: p.identity, Type: req.Type, After: timeout}
		}
		// 响应与超时同时到达，响应已写入 done
		return <-p.done, nil
	}
}

// serve 读循环，直到连接关闭或出现帧错误
func (c *Connection) serve() {
	defer c.Close()
	if c.ep.listener != nil {
		c.ep.listener.OnChannelActive(c)
	}
	c.idle.start()

	r := bufio.NewReader(c.raw)
	for {
		msg, err := c.ep.codec.ReadMessage(r)
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.touch()
		c.ep.metrics.FrameReceived(msg.Type.String())

		if msg.Direction == DirectionResponse && msg.Identity != 0 {
			if !c.pending.complete(msg) {
				logger.Debug("late response dropped",
					zap.String("side", c.ep.side), zap.String("conn_id", c.id),
					zap.Stringer("type", msg.Type), zap.Uint64("identity", msg.Identity))
			}
			continue
		}
		if !c.ep.workers.submit(func() { c.dispatch(msg) }) {
			return
		}
	}
}

func (c *Connection) dispatch(msg *Message) {
	reply, found := c.ep.registry.Dispatch(c, msg)
	if !found {
		c.ep.metrics.DispatchMiss(msg.Type.String())
		return
	}
	if reply == nil || msg.Direction == DirectionResponse {
		return
	}
	reply.Direction = DirectionResponse
	reply.Identity = msg.Identity
	if err := c.SendAsync(reply); err != nil {
		logger.Warn("failed to send reply",
			zap.String("side", c.ep.side), zap.String("conn_id", c.id),
			zap.Stringer("type", reply.Type), zap.Uint64("identity", reply.Identity), zap.Error(err))
	}
}

func (c *Connection) handleReadError(err error) {
	var fde *FrameDecodeError
	switch {
	case errors.As(err, &fde):
		c.ep.metrics.DecodeError()
		logger.Error("malformed frame, closing connection",
			zap.String("side", c.ep.side), zap.String("conn_id", c.id), zap.String("remote", c.remote), zap.Error(err))
	case c.IsClosed(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.Debug("connection read finished", zap.String("side", c.ep.side), zap.String("conn_id", c.id), zap.Error(err))
	default:
		logger.Warn("connection read failed",
			zap.String("side", c.ep.side), zap.String("conn_id", c.id), zap.String("remote", c.remote), zap.Error(err))
	}
}
