package signal_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/collector-remoting/pkg/signal"
)

func TestShutdownResult(t *testing.T) {
	assert.NoError(t, signal.Shutdown(time.Second, func() error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, signal.Shutdown(time.Second, func() error { return boom }), boom)
}

func TestShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	start := time.Now()
	err := signal.Shutdown(50*time.Millisecond, func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, signal.ErrShutdownTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForShutdownOnStop(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	called := false
	err := signal.WaitForShutdown(stop, time.Second, func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
