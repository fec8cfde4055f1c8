package remoting

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotConnected      = errors.New("remoting: not connected")
	ErrConnectionClosed  = errors.New("remoting: connection closed")
	ErrEndpointShutdown  = errors.New("remoting: endpoint shut down")
	ErrFrameTooLarge     = errors.New("remoting: frame too large")
	ErrIdentityExhausted = errors.New("remoting: no free identity")
)

// FrameDecodeError 帧数据损坏（长度不符、压缩数据损坏、消息结构非法），连接必须关闭
type FrameDecodeError struct {
	Reason string
	Err    error
}

func (e *FrameDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remoting: frame decode failed: %s: %v", e.Reason, e.Err)
	}
	return "remoting: frame decode failed: " + e.Reason
}

func (e *FrameDecodeError) Unwrap() error { return e.Err }

// TimeoutError 同步调用超时，连接本身仍可用
type TimeoutError struct {
	Identity uint64
	Type     MessageType
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("remoting: %s request %d timed out after %s", e.Type, e.Identity, e.After)
}

// Timeout 兼容 net.Error 风格的判断
func (e *TimeoutError) Timeout() bool { return true }

// ConnectError 连接建立失败，客户端按固定间隔无限重试
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("remoting: connect to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsTimeout 判断 err 是否为同步调用超时
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
