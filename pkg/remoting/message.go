// Package remoting 实现 manager 与 collector 之间的自定义 RPC 通信：
// 帧编解码、请求/响应关联、心跳与空闲检测、按消息类型分发。
package remoting

import "fmt"

// MessageType 消息类型标签，决定消息语义
type MessageType int32

const (
	TypeHeartbeat MessageType = iota
	TypeGoOnline
	TypeGoOffline
	TypeGoClose
	TypeIssueCyclicTask
	TypeDeleteCyclicTask
	TypeIssueOneTimeTask
	TypeResponseCyclicTaskData
	TypeResponseOneTimeTaskData
	TypeResponse
)

var messageTypeNames = map[MessageType]string{
	TypeHeartbeat:               "HEARTBEAT",
	TypeGoOnline:                "GO_ONLINE",
	TypeGoOffline:               "GO_OFFLINE",
	TypeGoClose:                 "GO_CLOSE",
	TypeIssueCyclicTask:         "ISSUE_CYCLIC_TASK",
	TypeDeleteCyclicTask:        "DELETE_CYCLIC_TASK",
	TypeIssueOneTimeTask:        "ISSUE_ONE_TIME_TASK",
	TypeResponseCyclicTaskData:  "RESPONSE_CYCLIC_TASK_DATA",
	TypeResponseOneTimeTaskData: "RESPONSE_ONE_TIME_TASK_DATA",
	TypeResponse:                "RESPONSE",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(t))
}

// Direction 请求或响应
type Direction int32

const (
	DirectionRequest Direction = iota
	DirectionResponse
)

func (d Direction) String() string {
	if d == DirectionResponse {
		return "RESPONSE"
	}
	return "REQUEST"
}

// Message 通信信封。Payload 为业务对象的编码字节（如 job / 采集结果），传输层不解析
type Message struct {
	Type      MessageType
	Direction Direction
	// Identity 同步调用的关联ID，同一连接上在途请求之间不重复；异步消息为 0
	Identity uint64
	Payload  []byte
}

// NewRequest 构造请求消息
func NewRequest(t MessageType, payload []byte) *Message {
	return &Message{Type: t, Direction: DirectionRequest, Payload: payload}
}

// ResponseTo 构造对 req 的响应，沿用请求的 Identity
func ResponseTo(req *Message, t MessageType, payload []byte) *Message {
	return &Message{Type: t, Direction: DirectionResponse, Identity: req.Identity, Payload: payload}
}
