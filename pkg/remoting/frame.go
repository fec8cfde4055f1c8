package remoting

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

const (
	frameHeaderLen = 4
	// DefaultMaxFrameSize 单帧上限（压缩前后均适用）
	DefaultMaxFrameSize = 16 * 1024 * 1024
)

var gzipWriterPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// FrameCodec 长度前缀帧：4 字节大端长度 + 帧体；开启压缩时帧体为 GZIP 数据。
// 两端的压缩开关必须一致
type FrameCodec struct {
	compress     bool
	maxFrameSize int
}

// NewFrameCodec 创建帧编解码器，maxFrameSize <= 0 时使用默认上限
func NewFrameCodec(compress bool, maxFrameSize int) *FrameCodec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameCodec{compress: compress, maxFrameSize: maxFrameSize}
}

// Encode 将消息编码为一个完整帧（含长度头）
func (c *FrameCodec) Encode(m *Message) ([]byte, error) {
	body := EncodeMessage(m)
	if c.compress {
		var err error
		if body, err = gzipBytes(body); err != nil {
			return nil, fmt.Errorf("compress frame: %w", err)
		}
	}
	if len(body) > c.maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), c.maxFrameSize)
	}
	frame := make([]byte, frameHeaderLen+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[frameHeaderLen:], body)
	return frame, nil
}

// ReadMessage 从 r 读取一个完整帧并解码。
// 连接层错误（EOF、读超时）原样返回；帧内容非法返回 *FrameDecodeError
func (c *FrameCodec) ReadMessage(r io.Reader) (*Message, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint32(header))
	if length > c.maxFrameSize {
		return nil, &FrameDecodeError{Reason: fmt.Sprintf("frame length %d exceeds %d", length, c.maxFrameSize), Err: ErrFrameTooLarge}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	if c.compress {
		var err error
		if body, err = gunzipBytes(body, c.maxFrameSize); err != nil {
			return nil, err
		}
	}
	return DecodeMessage(body)
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte, limit int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &FrameDecodeError{Reason: "bad gzip header", Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)+1))
	if err != nil {
		return nil, &FrameDecodeError{Reason: "corrupt gzip body", Err: err}
	}
	if len(out) > limit {
		return nil, &FrameDecodeError{Reason: "inflated frame too large", Err: ErrFrameTooLarge}
	}
	return out, nil
}
