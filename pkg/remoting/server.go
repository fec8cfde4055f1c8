package remoting

import (
	"errors"
	"fmt"
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

// ServerState 服务端状态：Idle -> Listening -> Closed
type ServerState int32

const (
	ServerIdle ServerState = iota
	ServerListening
	ServerClosed
)

func (s ServerState) String() string {
	switch s {
	case ServerListening:
		return "listening"
	case ServerClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Server manager 侧端点，每个接入连接独立读写
type Server struct {
	cfg config.RemotingServerConfig
	ep  *endpoint

	state atomic.Int32
	mu    sync.Mutex
	ln    net.Listener
	conns map[string]*Connection

	wg       conc.WaitGroup
	stopOnce sync.Once
}

// NewServer 创建服务端；listener 与 m 可为 nil
func NewServer(cfg config.RemotingServerConfig, registry *Registry, listener EventListener, m *metrics.RemotingMetrics) *Server {
	return &Server{
		cfg: cfg,
		ep: &endpoint{
			side:     "manager",
			codec:    NewFrameCodec(cfg.Compress, cfg.MaxFrameSize),
			registry: registry,
			listener: listener,
			metrics:  m,
		},
		conns: make(map[string]*Connection),
	}
}

// Start 监听地址并在后台接收连接
func (s *Server) Start() error {
	if !s.state.CompareAndSwap(int32(ServerIdle), int32(ServerListening)) {
		return fmt.Errorf("remoting server already %s", s.State())
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.state.Store(int32(ServerIdle))
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.ep.registry.freeze()
	s.ep.workers = newWorkerPool(s.cfg.Workers)
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	// Go runtime 网络轮询在 Linux 上即 epoll，配置项仅做记录
	logger.Info("remoting server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("use_epoll", s.cfg.UseEpoll),
		zap.Bool("compress", s.cfg.Compress),
		zap.Duration("idle_timeout", s.cfg.IdleTimeout))
	s.wg.Go(func() { s.acceptLoop(ln) })
	return nil
}

func (s *Server) State() ServerState { return ServerState(s.state.Load()) }

// Addr 实际监听地址，未启动时返回 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Connections 当前存活连接的快照
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) acceptLoop(ln net.Listener) {
	var backoff time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if s.State() == ServerClosed || errors.Is(err, net.ErrClosed) {
				return
			}
			// 单次 accept 失败不影响监听
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			logger.Warn("accept failed", zap.Error(err), zap.Duration("retry_after", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		conn := newConnection(raw, s.ep, s.cfg.IdleTimeout, s.onIdle)
		s.mu.Lock()
		if s.State() == ServerClosed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn.ID()] = conn
		s.mu.Unlock()
		logger.Info("collector connected", zap.String("conn_id", conn.ID()), zap.String("remote", conn.RemoteAddr()))

		s.wg.Go(func() {
			conn.serve()
			s.mu.Lock()
			delete(s.conns, conn.ID())
			s.mu.Unlock()
		})
	}
}

// onIdle 服务端空闲直接关闭连接
func (s *Server) onIdle(conn *Connection) {
	logger.Warn("connection idle, closing",
		zap.String("side", s.ep.side), zap.String("conn_id", conn.ID()),
		zap.String("remote", conn.RemoteAddr()), zap.Duration("idle_timeout", s.cfg.IdleTimeout))
	if s.ep.listener != nil {
		s.ep.listener.OnChannelIdle(conn)
	}
	_ = conn.Close()
}

// SendAsync 向指定连接发送
func (s *Server) SendAsync(conn *Connection, msg *Message) error {
	if s.State() == ServerClosed {
		return ErrEndpointShutdown
	}
	return conn.SendAsync(msg)
}

// SendSync 向指定连接同步调用
func (s *Server) SendSync(conn *Connection, msg *Message, timeout time.Duration) (*Message, error) {
	if s.State() == ServerClosed {
		return nil, ErrEndpointShutdown
	}
	return conn.SendSync(msg, timeout)
}

// Shutdown 停止接收、关闭全部连接并等待处理协程退出；可重复调用
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		prev := ServerState(s.state.Swap(int32(ServerClosed)))
		s.mu.Lock()
		ln := s.ln
		conns := make([]*Connection, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		if ln != nil {
			_ = ln.Close()
		}
		for _, c := range conns {
			_ = c.Close()
		}
		s.wg.Wait()
		if s.ep.workers != nil {
			s.ep.workers.stop()
		}
		if prev != ServerIdle {
			logger.Info("remoting server shutdown", zap.String("addr", s.cfg.Addr), zap.Int("closed_connections", len(conns)))
		}
	})
}
