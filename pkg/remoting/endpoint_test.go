package remoting_test

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/remoting"
)

func serverConfig() config.RemotingServerConfig {
	return config.RemotingServerConfig{
		Addr:         "127.0.0.1:0",
		IdleTimeout:  30 * time.Second,
		Compress:     true,
		Workers:      4,
		MaxFrameSize: 1 << 20,
	}
}

func clientConfig(addr string) config.RemotingClientConfig {
	return config.RemotingClientConfig{
		ManagerAddr:       addr,
		ConnectTimeout:    time.Second,
		ReconnectInterval: 100 * time.Millisecond,
		IdleTimeout:       30 * time.Second,
		SyncTimeout:       time.Second,
		Compress:          true,
		Workers:           4,
		MaxFrameSize:      1 << 20,
	}
}

// idleRecorder 按连接记录事件次数
type idleRecorder struct {
	mu     sync.Mutex
	active map[string]int
	idle   map[string]int
}

func newIdleRecorder() *idleRecorder {
	return &idleRecorder{active: map[string]int{}, idle: map[string]int{}}
}

func (r *idleRecorder) OnChannelActive(conn *remoting.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[conn.ID()]++
}

func (r *idleRecorder) OnChannelIdle(conn *remoting.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idle[conn.ID()]++
}

func (r *idleRecorder) idleCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.idle))
	for k, v := range r.idle {
		out[k] = v
	}
	return out
}

func echoRegistry() *remoting.Registry {
	r := remoting.NewRegistry()
	r.RegisterFunc(remoting.TypeHeartbeat, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		if msg.Direction == remoting.DirectionResponse {
			return nil
		}
		return remoting.ResponseTo(msg, remoting.TypeHeartbeat, nil)
	})
	r.RegisterFunc(remoting.TypeIssueOneTimeTask, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		return remoting.ResponseTo(msg, remoting.TypeResponseOneTimeTaskData, msg.Payload)
	})
	r.RegisterFunc(remoting.TypeIssueCyclicTask, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		time.Sleep(300 * time.Millisecond)
		return remoting.ResponseTo(msg, remoting.TypeResponse, []byte("slow"))
	})
	return r
}

type pair struct {
	server *remoting.Server
	client *remoting.Client
}

func startPair(t *testing.T, scfg config.RemotingServerConfig, serverListener remoting.EventListener,
	tweak func(*config.RemotingClientConfig), clientRegistry *remoting.Registry, clientListener remoting.EventListener) *pair {
	t.Helper()
	server := remoting.NewServer(scfg, echoRegistry(), serverListener, nil)
	require.NoError(t, server.Start())
	t.Cleanup(server.Shutdown)

	ccfg := clientConfig(server.Addr().String())
	if tweak != nil {
		tweak(&ccfg)
	}
	if clientRegistry == nil {
		clientRegistry = remoting.NewRegistry()
	}
	client := remoting.NewClient(ccfg, clientRegistry, clientListener, nil)
	client.Start()
	t.Cleanup(client.Shutdown)

	require.Eventually(t, func() bool {
		return client.State() == remoting.ClientConnected && len(server.Connections()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	return &pair{server: server, client: client}
}

func TestSendSyncRoundTrip(t *testing.T) {
	p := startPair(t, serverConfig(), nil, nil, nil, nil)

	req := remoting.NewRequest(remoting.TypeIssueOneTimeTask, []byte(`{"app":"linux"}`))
	resp, err := p.client.SendSync(req, time.Second)
	require.NoError(t, err)
	assert.Equal(t, remoting.TypeResponseOneTimeTaskData, resp.Type)
	assert.Equal(t, remoting.DirectionResponse, resp.Direction)
	assert.NotZero(t, resp.Identity)
	assert.Equal(t, []byte(`{"app":"linux"}`), resp.Payload)
	assert.Zero(t, req.Identity, "request passed in must not be modified")
}

func TestServerToClientSendSync(t *testing.T) {
	clientRegistry := remoting.NewRegistry()
	clientRegistry.RegisterFunc(remoting.TypeIssueOneTimeTask, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		return remoting.ResponseTo(msg, remoting.TypeResponseOneTimeTaskData, append([]byte("result:"), msg.Payload...))
	})
	p := startPair(t, serverConfig(), nil, nil, clientRegistry, nil)

	conn := p.server.Connections()[0]
	resp, err := p.server.SendSync(conn, remoting.NewRequest(remoting.TypeIssueOneTimeTask, []byte("job-1")), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "result:job-1", string(resp.Payload))
}

func TestConcurrentSendSyncCorrelation(t *testing.T) {
	p := startPair(t, serverConfig(), nil, nil, nil, nil)

	const callers = 50
	var mu sync.Mutex
	identities := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("req-%d", i))
			resp, err := p.client.SendSync(remoting.NewRequest(remoting.TypeIssueOneTimeTask, payload), 2*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, payload, resp.Payload)
			mu.Lock()
			identities[resp.Identity] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Len(t, identities, callers)
	assert.Equal(t, 0, p.client.Connection().PendingRequests())
}

func TestSendSyncTimeoutKeepsConnectionUsable(t *testing.T) {
	logs := observeLogs(t, zapcore.DebugLevel)
	p := startPair(t, serverConfig(), nil, nil, nil, nil)
	conn := p.client.Connection()

	_, err := p.client.SendSync(remoting.NewRequest(remoting.TypeIssueCyclicTask, nil), 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, remoting.IsTimeout(err))
	var te *remoting.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, remoting.TypeIssueCyclicTask, te.Type)
	assert.Equal(t, 50*time.Millisecond, te.After)
	assert.True(t, te.Timeout())
	assert.Contains(t, te.Error(), "timed out after 50ms")

	require.Eventually(t, func() bool {
		return logs.FilterMessage("late response dropped").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := p.client.SendSync(remoting.NewRequest(remoting.TypeIssueOneTimeTask, []byte("after")), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after", string(resp.Payload))
	assert.Same(t, conn, p.client.Connection())
	assert.Equal(t, 0, conn.PendingRequests())
}

func TestServerIdleClosesExactlyOnce(t *testing.T) {
	scfg := serverConfig()
	scfg.IdleTimeout = 150 * time.Millisecond
	rec := newIdleRecorder()
	p := startPair(t, scfg, rec, func(c *config.RemotingClientConfig) {
		c.ReconnectInterval = time.Hour
	}, nil, nil)
	conn := p.server.Connections()[0]

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle server connection was not closed")
	}
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, map[string]int{conn.ID(): 1}, rec.idleCounts())
	assert.Eventually(t, func() bool { return p.client.State() == remoting.ClientIdle }, time.Second, 10*time.Millisecond)
}

func TestClientIdleNotifiesListenerOnce(t *testing.T) {
	rec := newIdleRecorder()
	p := startPair(t, serverConfig(), nil, func(c *config.RemotingClientConfig) {
		c.IdleTimeout = 150 * time.Millisecond
	}, nil, rec)
	conn := p.client.Connection()

	require.Eventually(t, func() bool { return rec.idleCounts()[conn.ID()] == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, map[string]int{conn.ID(): 1}, rec.idleCounts())
	assert.False(t, conn.IsClosed(), "listener decides what to do with an idle connection")

	rec.mu.Lock()
	assert.Equal(t, 1, rec.active[conn.ID()])
	rec.mu.Unlock()
}

func TestClientIdleWithoutListenerReconnects(t *testing.T) {
	p := startPair(t, serverConfig(), nil, func(c *config.RemotingClientConfig) {
		c.IdleTimeout = 150 * time.Millisecond
	}, nil, nil)
	first := p.client.Connection()

	require.Eventually(t, func() bool {
		cur := p.client.Connection()
		return first.IsClosed() && cur != nil && cur != first
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHeartbeatKeepsConnectionAlive(t *testing.T) {
	scfg := serverConfig()
	scfg.IdleTimeout = 200 * time.Millisecond
	var beats atomic.Int32
	clientRegistry := remoting.NewRegistry()
	clientRegistry.RegisterFunc(remoting.TypeHeartbeat, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		if msg.Direction == remoting.DirectionResponse {
			beats.Add(1)
		}
		return nil
	})
	p := startPair(t, scfg, nil, func(c *config.RemotingClientConfig) {
		c.HeartbeatInterval = 50 * time.Millisecond
	}, clientRegistry, nil)
	conn := p.client.Connection()

	time.Sleep(600 * time.Millisecond)
	assert.False(t, conn.IsClosed())
	assert.Same(t, conn, p.client.Connection())
	assert.GreaterOrEqual(t, beats.Load(), int32(3))
}

func TestReconnectAfterServerClose(t *testing.T) {
	p := startPair(t, serverConfig(), nil, func(c *config.RemotingClientConfig) {
		c.ReconnectInterval = 200 * time.Millisecond
	}, nil, nil)
	first := p.client.Connection()
	_, err := p.client.SendSync(remoting.NewRequest(remoting.TypeIssueOneTimeTask, []byte("1")), time.Second)
	require.NoError(t, err)

	require.NoError(t, p.server.Connections()[0].Close())
	require.Eventually(t, func() bool { return first.IsClosed() }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		cur := p.client.Connection()
		return p.client.State() == remoting.ClientConnected && cur != nil && cur != first
	}, 3*time.Second, 10*time.Millisecond)

	resp, err := p.client.SendSync(remoting.NewRequest(remoting.TypeIssueOneTimeTask, []byte("2")), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2", string(resp.Payload))
}

func TestClientRetriesUnreachableManager(t *testing.T) {
	logs := observeLogs(t, zapcore.InfoLevel)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := clientConfig(addr)
	cfg.ReconnectInterval = 30 * time.Millisecond
	client := remoting.NewClient(cfg, remoting.NewRegistry(), nil, nil)
	client.Start()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("client connect to server error, retrying").Len() >= 3
	}, 3*time.Second, 10*time.Millisecond)
	_, err = client.SendSync(remoting.NewRequest(remoting.TypeHeartbeat, nil), 10*time.Millisecond)
	assert.ErrorIs(t, err, remoting.ErrNotConnected)

	var cerr *remoting.ConnectError
	entry := logs.FilterMessage("client connect to server error, retrying").All()[0]
	for _, f := range entry.Context {
		if f.Key == "error" {
			cerr, _ = f.Interface.(*remoting.ConnectError)
		}
	}
	require.NotNil(t, cerr)
	assert.Equal(t, addr, cerr.Addr)

	done := make(chan struct{})
	go func() {
		client.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown blocked on reconnect backoff")
	}
	assert.Equal(t, remoting.ClientClosed, client.State())
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	server := remoting.NewServer(serverConfig(), echoRegistry(), nil, nil)
	require.NoError(t, server.Start())
	defer server.Shutdown()

	raw, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	frame := make([]byte, 4, 9)
	binary.BigEndian.PutUint32(frame, 5)
	frame = append(frame, []byte("junk!")...)
	_, err = raw.Write(frame)
	require.NoError(t, err)

	_ = raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = raw.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool { return len(server.Connections()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestDispatchMissIsLoggedAndDropped(t *testing.T) {
	logs := observeLogs(t, zapcore.WarnLevel)
	p := startPair(t, serverConfig(), nil, nil, nil, nil)

	require.NoError(t, p.client.SendAsync(remoting.NewRequest(remoting.TypeGoClose, nil)))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("no processor registered, message dropped").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// 未匹配的消息不产生响应，连接保持可用
	_, err := p.client.SendSync(remoting.NewRequest(remoting.TypeIssueOneTimeTask, nil), time.Second)
	require.NoError(t, err)
}

func TestShutdownIdempotent(t *testing.T) {
	p := startPair(t, serverConfig(), nil, nil, nil, nil)
	conn := p.server.Connections()[0]

	p.client.Shutdown()
	p.client.Shutdown()
	p.server.Shutdown()
	p.server.Shutdown()

	assert.Equal(t, remoting.ClientClosed, p.client.State())
	assert.Equal(t, remoting.ServerClosed, p.server.State())
	assert.ErrorIs(t, p.server.SendAsync(conn, remoting.NewRequest(remoting.TypeHeartbeat, nil)), remoting.ErrEndpointShutdown)
	assert.ErrorIs(t, p.client.SendAsync(remoting.NewRequest(remoting.TypeHeartbeat, nil)), remoting.ErrNotConnected)
	assert.Error(t, p.server.Start())
}

func TestRegisterAfterStartPanics(t *testing.T) {
	registry := remoting.NewRegistry()
	server := remoting.NewServer(serverConfig(), registry, nil, nil)
	require.NoError(t, server.Start())
	defer server.Shutdown()

	assert.Panics(t, func() {
		registry.RegisterFunc(remoting.TypeGoOnline, func(*remoting.Connection, *remoting.Message) *remoting.Message { return nil })
	})
}
