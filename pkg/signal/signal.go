package signal

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/collector-remoting/pkg/logger"
)

// DefaultTimeout 优雅关闭的总预算
const DefaultTimeout = 5 * time.Second

var ErrShutdownTimeout = errors.New("graceful shutdown timed out")

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或 stop 被关闭，然后在 timeout 内执行 shutdownFunc
func WaitForShutdown(stop <-chan struct{}, timeout time.Duration, shutdownFunc func() error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("service running, waiting for SIGINT/SIGTERM...")
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-stop:
		logger.Info("shutdown requested")
	}
	return Shutdown(timeout, shutdownFunc)
}

// Shutdown 超时控制下执行关闭逻辑；超时后不再等待 shutdownFunc 返回
func Shutdown(timeout time.Duration, shutdownFunc func() error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- shutdownFunc() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("graceful shutdown completed successfully")
		return nil
	case <-ctx.Done():
		logger.Warn("graceful shutdown timed out", zap.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}
