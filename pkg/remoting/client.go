package remoting

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/metrics"
)

// ClientState 客户端状态：Idle -> Connecting -> Connected -> (Idle|Closed)
type ClientState int32

const (
	ClientIdle ClientState = iota
	ClientConnecting
	ClientConnected
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "connecting"
	case ClientConnected:
		return "connected"
	case ClientClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Client collector 侧端点：维持一条到 manager 的连接，断开后按固定间隔无限重连
type Client struct {
	cfg    config.RemotingClientConfig
	ep     *endpoint
	dialer net.Dialer

	state atomic.Int32
	mu    sync.RWMutex
	conn  *Connection

	ctx      context.Context
	cancel   context.CancelFunc
	wg       conc.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
}

// NewClient 创建客户端；listener 与 m 可为 nil
func NewClient(cfg config.RemotingClientConfig, registry *Registry, listener EventListener, m *metrics.RemotingMetrics) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg: cfg,
		ep: &endpoint{
			side:     "collector",
			codec:    NewFrameCodec(cfg.Compress, cfg.MaxFrameSize),
			registry: registry,
			listener: listener,
			metrics:  m,
		},
		dialer: net.Dialer{Timeout: cfg.ConnectTimeout},
		ctx:    ctx,
		cancel: cancel,
	}
	return c
}

// Start 冻结处理器注册表并启动重连守护协程，立即返回
func (c *Client) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.ep.registry.freeze()
	c.ep.workers = newWorkerPool(c.cfg.Workers)
	c.wg.Go(c.supervise)
	if c.cfg.HeartbeatInterval > 0 {
		c.wg.Go(c.heartbeat)
	}
	logger.Info("remoting client started",
		zap.String("manager_addr", c.cfg.ManagerAddr),
		zap.Duration("reconnect_interval", c.cfg.ReconnectInterval),
		zap.Duration("idle_timeout", c.cfg.IdleTimeout))
}

func (c *Client) State() ClientState { return ClientState(c.state.Load()) }

// Connection 当前连接，未连接时返回 nil
func (c *Client) Connection() *Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// SendAsync 通过当前连接发送
func (c *Client) SendAsync(msg *Message) error {
	conn := c.Connection()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendAsync(msg)
}

// SendSync 通过当前连接同步调用
func (c *Client) SendSync(msg *Message, timeout time.Duration) (*Message, error) {
	conn := c.Connection()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn.SendSync(msg, timeout)
}

// Shutdown 关闭连接、停止守护协程和处理协程；可重复调用
func (c *Client) Shutdown() {
	c.stopOnce.Do(func() {
		c.cancel()
		if conn := c.Connection(); conn != nil {
			_ = conn.Close()
		}
		c.wg.Wait()
		if c.ep.workers != nil {
			c.ep.workers.stop()
		}
		c.state.Store(int32(ClientClosed))
		logger.Info("remoting client shutdown", zap.String("manager_addr", c.cfg.ManagerAddr))
	})
}

func (c *Client) supervise() {
	for c.ctx.Err() == nil {
		c.state.Store(int32(ClientConnecting))
		raw, err := c.dialer.DialContext(c.ctx, "tcp", c.cfg.ManagerAddr)
		if err != nil {
			if c.ctx.Err() != nil {
				break
			}
			c.ep.metrics.ConnectFailed()
			cerr := &ConnectError{Addr: c.cfg.ManagerAddr, Err: err}
			logger.Error("client connect to server error, retrying",
				zap.Error(cerr), zap.Duration("retry_after", c.cfg.ReconnectInterval))
			c.state.Store(int32(ClientIdle))
			if !c.wait(c.cfg.ReconnectInterval) {
				break
			}
			continue
		}

		conn := newConnection(raw, c.ep, c.cfg.IdleTimeout, c.onIdle)
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		if c.ctx.Err() != nil {
			_ = conn.Close()
			break
		}
		c.state.Store(int32(ClientConnected))
		logger.Info("connected to manager",
			zap.String("conn_id", conn.ID()), zap.String("remote", conn.RemoteAddr()), zap.String("local", conn.LocalAddr()))

		conn.serve()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		c.state.Store(int32(ClientIdle))
		if c.ctx.Err() != nil {
			break
		}
		logger.Warn("connection to manager lost, reconnecting",
			zap.String("conn_id", conn.ID()), zap.Duration("retry_after", c.cfg.ReconnectInterval))
		if !c.wait(c.cfg.ReconnectInterval) {
			break
		}
	}
	c.state.Store(int32(ClientClosed))
	logger.Info("client shutdown now", zap.String("manager_addr", c.cfg.ManagerAddr))
}

// wait 等待 d 或关闭信号，关闭时返回 false
func (c *Client) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// onIdle 交给监听器处理；没有监听器时关闭连接，由守护协程重连
func (c *Client) onIdle(conn *Connection) {
	logger.Warn("connection idle",
		zap.String("side", c.ep.side), zap.String("conn_id", conn.ID()), zap.Duration("idle_timeout", c.cfg.IdleTimeout))
	if c.ep.listener != nil {
		c.ep.listener.OnChannelIdle(conn)
		return
	}
	_ = conn.Close()
}

func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn := c.Connection()
			if conn == nil {
				continue
			}
			if err := conn.SendAsync(NewRequest(TypeHeartbeat, nil)); err != nil {
				logger.Debug("heartbeat send failed", zap.String("conn_id", conn.ID()), zap.Error(err))
			}
		case <-c.ctx.Done():
			return
		}
	}
}
