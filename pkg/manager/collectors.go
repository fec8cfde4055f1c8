package manager

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/remoting"
)

// session 一个在线采集器及其连接
type session struct {
	info     *collect.CollectorInfo
	conn     *remoting.Connection
	onlineAt time.Time
}

// collectorTable 在线采集器表，按采集器名称索引
type collectorTable struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newCollectorTable() *collectorTable {
	return &collectorTable{sessions: make(map[string]*session)}
}

// register 登记采集器；返回 true 表示 conn 为新连接，调用方需负责监听其关闭
func (t *collectorTable) register(info *collect.CollectorInfo, conn *remoting.Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.sessions[info.Name]
	if ok && old.conn == conn {
		old.info = info
		return false
	}
	if ok {
		logger.Warn("collector re-registered on a new connection",
			zap.String("collector", info.Name), zap.String("old_conn_id", old.conn.ID()), zap.String("conn_id", conn.ID()))
	}
	t.sessions[info.Name] = &session{info: info, conn: conn, onlineAt: time.Now()}
	return true
}

// unregister 仅当 name 仍绑定在 conn 上时移除，避免旧连接关闭时误删重连后的会话
func (t *collectorTable) unregister(name string, conn *remoting.Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[name]
	if !ok || s.conn != conn {
		return false
	}
	delete(t.sessions, name)
	return true
}

func (t *collectorTable) get(name string) (*session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[name]
	return s, ok
}

// nameOf 反查连接上登记的采集器
func (t *collectorTable) nameOf(conn *remoting.Connection) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for name, s := range t.sessions {
		if s.conn == conn {
			return name, true
		}
	}
	return "", false
}

func (t *collectorTable) list() []*collect.CollectorInfo {
	t.mu.RLock()
	out := make([]*collect.CollectorInfo, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.info)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
