package manager

import (
	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/collect"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/remoting"
)

func (m *Manager) registerProcessors(reg *remoting.Registry) {
	reg.RegisterFunc(remoting.TypeHeartbeat, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		if msg.Direction == remoting.DirectionResponse {
			return nil
		}
		return remoting.ResponseTo(msg, remoting.TypeHeartbeat, nil)
	})
	reg.RegisterFunc(remoting.TypeGoOnline, m.handleGoOnline)
	reg.RegisterFunc(remoting.TypeGoOffline, m.handleGoOffline)
	reg.RegisterFunc(remoting.TypeResponseCyclicTaskData, m.handleCyclicData)
}

func (m *Manager) handleGoOnline(conn *remoting.Connection, msg *remoting.Message) *remoting.Message {
	info, err := collect.DecodeCollectorInfo(msg.Payload)
	if err != nil {
		logger.Error("manager receive invalid collector info", zap.String("conn_id", conn.ID()), zap.Error(err))
		return nil
	}
	if m.collectors.register(info, conn) {
		m.watchers.Go(func() {
			<-conn.Done()
			if m.collectors.unregister(info.Name, conn) {
				logger.Info("collector disconnected", zap.String("collector", info.Name), zap.String("conn_id", conn.ID()))
			}
		})
	}
	logger.Info("collector online",
		zap.String("collector", info.Name), zap.String("ip", info.IP),
		zap.String("version", info.Version), zap.String("conn_id", conn.ID()))
	return nil
}

func (m *Manager) handleGoOffline(conn *remoting.Connection, _ *remoting.Message) *remoting.Message {
	name, ok := m.collectors.nameOf(conn)
	if !ok {
		logger.Debug("offline from unregistered connection", zap.String("conn_id", conn.ID()))
		return nil
	}
	m.collectors.unregister(name, conn)
	logger.Info("collector offline", zap.String("collector", name), zap.String("conn_id", conn.ID()))
	return nil
}

func (m *Manager) handleCyclicData(conn *remoting.Connection, msg *remoting.Message) *remoting.Message {
	res, err := collect.DecodeResult(msg.Payload)
	if err != nil {
		logger.Error("manager receive invalid cyclic data", zap.String("conn_id", conn.ID()), zap.Error(err))
		return nil
	}
	name := res.Collector
	if name == "" {
		name, _ = m.collectors.nameOf(conn)
	}
	if m.sink != nil {
		m.sink(name, res)
	}
	return nil
}
