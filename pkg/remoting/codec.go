package remoting

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message 的 protobuf 字段号（与 ClusterMsg.Message 的布局保持一致）
const (
	fieldType      protowire.Number = 1
	fieldDirection protowire.Number = 2
	fieldIdentity  protowire.Number = 3
	fieldPayload   protowire.Number = 4
)

// EncodeMessage 将 Message 编码为 protobuf 线格式
func EncodeMessage(m *Message) []byte {
	b := make([]byte, 0, 16+len(m.Payload))
	if m.Type != 0 {
		b = protowire.AppendTag(b, fieldType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Type))
	}
	if m.Direction != 0 {
		b = protowire.AppendTag(b, fieldDirection, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Direction))
	}
	if m.Identity != 0 {
		b = protowire.AppendTag(b, fieldIdentity, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Identity)
	}
	if len(m.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Payload)
	}
	return b
}

// DecodeMessage 解析 protobuf 线格式；未知字段跳过，结构错误返回 *FrameDecodeError
func DecodeMessage(b []byte) (*Message, error) {
	m := &Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &FrameDecodeError{Reason: "bad tag", Err: protowire.ParseError(n)}
		}
		b = b[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, &FrameDecodeError{Reason: "bad type field", Err: protowire.ParseError(n)}
			}
			m.Type = MessageType(int32(v))
			b = b[n:]
		case num == fieldDirection && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, &FrameDecodeError{Reason: "bad direction field", Err: protowire.ParseError(n)}
			}
			m.Direction = Direction(int32(v))
			b = b[n:]
		case num == fieldIdentity && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, &FrameDecodeError{Reason: "bad identity field", Err: protowire.ParseError(n)}
			}
			m.Identity = v
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, &FrameDecodeError{Reason: "bad payload field", Err: protowire.ParseError(n)}
			}
			m.Payload = append([]byte(nil), v...)
			b = b[n:]
		case num == fieldType || num == fieldDirection || num == fieldIdentity || num == fieldPayload:
			return nil, &FrameDecodeError{Reason: fmt.Sprintf("field %d has wire type %d", num, typ)}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, &FrameDecodeError{Reason: "bad unknown field", Err: protowire.ParseError(n)}
			}
			b = b[n:]
		}
	}
	if m.Direction != DirectionRequest && m.Direction != DirectionResponse {
		return nil, &FrameDecodeError{Reason: fmt.Sprintf("invalid direction %d", m.Direction)}
	}
	return m, nil
}
