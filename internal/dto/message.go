// Package dto 定义了 WebSocket 线上协议的消息结构。
// 入站和出站消息都使用 {"event": ..., "data": ...} 信封，
// data 按 event 的类型再做一次解码（带标签的联合类型）。
package dto

import "encoding/json"

// 入站事件名。
const (
	EventJoin        = "join"
	EventCallExpert  = "call-expert"
	EventAcceptCall  = "accept-call"
	EventDeclineCall = "decline-call"
	EventJoinRoom    = "join-room"
	EventSignal      = "signal"
	EventEndCall     = "end-call"
)

// 出站事件名。
const (
	EventJoined       = "joined"
	EventIncomingCall = "incoming-call"
	EventCallFailed   = "call-failed"
	EventCallAccepted = "call-accepted"
	EventCallDeclined = "call-declined"
	EventUserJoined   = "user-joined"
	EventCallEnded    = "call-ended"
	EventError        = "error"
)

// ClientEnvelope 是所有入站消息的信封。
// Data 保持原始字节，由分发器按 Event 解码。
type ClientEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload join 事件：出示 bearer token 完成身份解析。
// Role 仅在 token 未携带角色声明时作为后备。
type JoinPayload struct {
	Token string `json:"token"`
	Role  string `json:"role,omitempty"`
}

// CallExpertPayload call-expert 事件：向指定专家发起呼叫。
type CallExpertPayload struct {
	ExpertID   string `json:"expertId"`
	CallerName string `json:"callerName"`
	RoomID     string `json:"roomId"`
	CallerID   string `json:"callerId"`
}

// RoomPayload accept-call / decline-call / join-room / end-call 事件共用。
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// SignalPayload signal 事件：不透明的协商载荷。
// To 为空时按房间广播（排除发送者）。
type SignalPayload struct {
	RoomID string          `json:"roomId"`
	Signal json.RawMessage `json:"signal"`
	To     string          `json:"to,omitempty"`
}

// ServerEnvelope 是所有出站消息的信封。
type ServerEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// JoinedPayload join 成功的确认，携带本连接被分配的通道句柄，
// 客户端用它来填写 signal 的 to 字段。
type JoinedPayload struct {
	ConnID string `json:"connId"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// IncomingCallPayload 通知被叫方有新呼叫。
type IncomingCallPayload struct {
	RoomID     string `json:"roomId"`
	CallerName string `json:"callerName"`
	CallerID   string `json:"callerId"`
	From       string `json:"from"` // 主叫方通道句柄
}

// CallFailedPayload 呼叫失败，只发给主叫方。
type CallFailedPayload struct {
	RoomID string `json:"roomId,omitempty"`
	Reason string `json:"reason"`
}

// CallAcceptedPayload 呼叫被接受，发给双方。
type CallAcceptedPayload struct {
	RoomID string `json:"roomId"`
}

// CallDeclinedPayload 呼叫被拒绝，发给主叫方。
type CallDeclinedPayload struct {
	RoomID string `json:"roomId"`
}

// UserJoinedPayload 通知房间现有成员有新成员加入。
type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	From   string `json:"from"` // 加入者的通道句柄
}

// SignalForwardPayload 转发给目标的信令，附带发送者句柄。
type SignalForwardPayload struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
	RoomID string          `json:"roomId"`
}

// CallEndedPayload 呼叫结束通知。
type CallEndedPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// ErrorPayload 面向客户端的错误通知。
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope 将事件和载荷封装为可写入连接的 JSON 字节。
func NewEnvelope(event string, data interface{}) ([]byte, error) {
	return json.Marshal(ServerEnvelope{Event: event, Data: data})
}
