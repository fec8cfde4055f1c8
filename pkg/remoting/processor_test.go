package remoting_test

import (
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
	"github.com/collector-remoting/pkg/remoting"
)

func observeLogs(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	t.Cleanup(logger.ReplaceLogger(zap.New(core)))
	return logs
}

func TestRegistryDoubleRegistrationPanics(t *testing.T) {
	r := remoting.NewRegistry()
	noop := func(*remoting.Connection, *remoting.Message) *remoting.Message { return nil }
	r.RegisterFunc(remoting.TypeHeartbeat, noop)
	assert.Panics(t, func() { r.RegisterFunc(remoting.TypeHeartbeat, noop) })
	assert.Panics(t, func() { r.Register(remoting.TypeGoOnline, nil) })
	assert.NotPanics(t, func() { r.RegisterFunc(remoting.TypeGoOnline, noop) })
}

func TestRegistryDispatch(t *testing.T) {
	logs := observeLogs(t, zapcore.WarnLevel)
	r := remoting.NewRegistry()
	r.RegisterFunc(remoting.TypeHeartbeat, func(_ *remoting.Connection, msg *remoting.Message) *remoting.Message {
		return remoting.ResponseTo(msg, remoting.TypeHeartbeat, nil)
	})
	r.RegisterFunc(remoting.TypeGoClose, func(*remoting.Connection, *remoting.Message) *remoting.Message {
		panic("boom")
	})

	reply, found := r.Dispatch(nil, &remoting.Message{Type: remoting.TypeHeartbeat, Identity: 4})
	require.True(t, found)
	require.NotNil(t, reply)
	assert.Equal(t, uint64(4), reply.Identity)
	assert.Equal(t, remoting.DirectionResponse, reply.Direction)

	reply, found = r.Dispatch(nil, remoting.NewRequest(remoting.TypeIssueCyclicTask, nil))
	assert.False(t, found)
	assert.Nil(t, reply)
	missed := logs.FilterMessage("no processor registered, message dropped").All()
	require.Len(t, missed, 1)
	assert.Equal(t, "ISSUE_CYCLIC_TASK", missed[0].ContextMap()["type"])

	assert.NotPanics(t, func() {
		reply, found = r.Dispatch(nil, remoting.NewRequest(remoting.TypeGoClose, nil))
	})
	assert.True(t, found)
	assert.Nil(t, reply)
	assert.Equal(t, 1, logs.FilterMessage("processor panicked").Len())
}

func TestRegistryLookupDuringRegistration(t *testing.T) {
	r := remoting.NewRegistry()
	noop := func(*remoting.Connection, *remoting.Message) *remoting.Message { return nil }
	types := []remoting.MessageType{
		remoting.TypeHeartbeat, remoting.TypeGoOnline, remoting.TypeGoOffline, remoting.TypeGoClose,
		remoting.TypeIssueCyclicTask, remoting.TypeDeleteCyclicTask, remoting.TypeIssueOneTimeTask,
	}

	var wg conc.WaitGroup
	for _, mt := range types {
		wg.Go(func() { r.RegisterFunc(mt, noop) })
		wg.Go(func() {
			for range 100 {
				r.Lookup(mt)
			}
		})
	}
	wg.Wait()
	for _, mt := range types {
		_, ok := r.Lookup(mt)
		assert.True(t, ok, mt.String())
	}
}

func TestRegistryFrozenAfterStart(t *testing.T) {
	r := remoting.NewRegistry()
	r.RegisterFunc(remoting.TypeHeartbeat, func(*remoting.Connection, *remoting.Message) *remoting.Message { return nil })
	server := remoting.NewServer(config.RemotingServerConfig{
		Addr: "127.0.0.1:0", IdleTimeout: 30 * time.Second, Workers: 2,
	}, r, nil, nil)
	require.NoError(t, server.Start())
	t.Cleanup(server.Shutdown)

	assert.Panics(t, func() {
		r.RegisterFunc(remoting.TypeGoOnline, func(*remoting.Connection, *remoting.Message) *remoting.Message { return nil })
	})
	_, ok := r.Lookup(remoting.TypeHeartbeat)
	assert.True(t, ok)
	_, ok = r.Lookup(remoting.TypeGoOnline)
	assert.False(t, ok)
}
