package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/collector-remoting/pkg/config"
	"github.com/collector-remoting/pkg/logger"
)

// mockFatalHook 捕获 fatal 日志（不退出进程）
type mockFatalHook struct {
	called bool
}

func (h *mockFatalHook) Hook(e zapcore.Entry) error {
	if e.Level == zapcore.FatalLevel {
		h.called = true
	}
	return nil
}

func TestLoggerLevels(t *testing.T) {
	cfg := &config.ZapLogConfig{
		Level:  "debug",
		Format: "console",
		Path:   t.TempDir(),
	}

	l, err := logger.InitLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, l)

	logger.Debug("debug msg")
	logger.Info("info msg", zap.String("k", "v"))
	logger.Warn("warn msg")
	logger.Error("error msg")

	assert.Panics(t, func() { logger.Panic("panic msg") })

	// Fatal 测试（使用 WriteThenPanic，不触发 os.Exit）
	hook := &mockFatalHook{}
	fl := logger.GetGlobalLogger().WithOptions(zap.Hooks(hook.Hook), zap.WithFatalHook(zapcore.WriteThenPanic))
	assert.Panics(t, func() { fl.Fatal("fatal msg") })
	assert.True(t, hook.called, "fatal hook was not triggered")

	_ = logger.Sync()
}

func TestReplaceLoggerRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.ReplaceLogger(zap.New(core))

	logger.Info("observed", zap.Int("n", 1))
	logger.Debug("below level")
	restore()
	logger.Info("not observed")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "observed", entry.Message)
	assert.Equal(t, int64(1), entry.ContextMap()["n"])
}
