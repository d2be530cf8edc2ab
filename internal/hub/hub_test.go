package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afifrh/PFEproject/internal/dto"
	"github.com/afifrh/PFEproject/internal/service"
)

const testJWTSecret = "hub-test-secret"

// newTestHub 构造一个不启动事件循环的 Hub，测试直接驱动 dispatch。
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	authService, err := service.NewAuthService(testJWTSecret)
	require.NoError(t, err)
	return NewHub(authService)
}

// issueToken 签发一个测试用 bearer token。
func issueToken(t *testing.T, userID, role, name string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	if name != "" {
		claims["name"] = name
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// inbound 将事件和载荷封装为入站信封字节。
func inbound(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(dto.ClientEnvelope{Event: event, Data: data})
	require.NoError(t, err)
	return raw
}

// joinAs 让一条新连接走完 register + join 流程并消费 joined 确认。
func joinAs(t *testing.T, h *Hub, userID, role, name string) *Client {
	t.Helper()
	c := NewClient(h, nil)
	h.registerClient(c)
	h.dispatch(c, inbound(t, dto.EventJoin, dto.JoinPayload{Token: issueToken(t, userID, role, name)}))

	env := recvEvent(t, c)
	require.Equal(t, dto.EventJoined, env.Event)
	return c
}

// --- join 认证流程 ---

func TestHub_Join_Success(t *testing.T) {
	// Arrange
	h := newTestHub(t)
	c := NewClient(h, nil)
	h.registerClient(c)

	// Act
	h.dispatch(c, inbound(t, dto.EventJoin, dto.JoinPayload{
		Token: issueToken(t, "tech-1", "technician", "Bob"),
	}))

	// Assert: joined 确认携带分配的通道句柄
	env := recvEvent(t, c)
	assert.Equal(t, dto.EventJoined, env.Event)
	var joined dto.JoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, c.ID(), joined.ConnID)
	assert.Equal(t, "tech-1", joined.UserID)
	assert.Equal(t, "technician", joined.Role)

	assert.True(t, c.authed)
	resolved, ok := h.registry.ResolveByUser("tech-1")
	require.True(t, ok)
	assert.Same(t, c, resolved)
}

func TestHub_Join_InvalidToken(t *testing.T) {
	// Arrange
	h := newTestHub(t)
	c := NewClient(h, nil)
	h.registerClient(c)

	// Act
	h.dispatch(c, inbound(t, dto.EventJoin, dto.JoinPayload{Token: "garbage"}))

	// Assert: error 通知，连接未进入注册表
	env := recvEvent(t, c)
	assert.Equal(t, dto.EventError, env.Event)
	var errPayload dto.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "authentication failed", errPayload.Message)

	assert.False(t, c.authed)
	assert.Equal(t, 0, h.registry.Count())
}

func TestHub_Dispatch_RejectsUnauthenticated(t *testing.T) {
	// Arrange: 未 join 的连接直接发业务事件
	h := newTestHub(t)
	c := NewClient(h, nil)
	h.registerClient(c)

	// Act
	h.dispatch(c, inbound(t, dto.EventCallExpert, dto.CallExpertPayload{ExpertID: "expert-9", RoomID: "room-1"}))

	// Assert
	env := recvEvent(t, c)
	assert.Equal(t, dto.EventError, env.Event)
	var errPayload dto.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "not authenticated", errPayload.Message)
	assert.Equal(t, 0, h.rooms.RoomCount())
}

func TestHub_Dispatch_MalformedEnvelope(t *testing.T) {
	// Arrange
	h := newTestHub(t)
	c := NewClient(h, nil)
	h.registerClient(c)

	// Act
	h.dispatch(c, []byte("{not json"))

	// Assert
	env := recvEvent(t, c)
	assert.Equal(t, dto.EventError, env.Event)
	var errPayload dto.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &errPayload))
	assert.Equal(t, "malformed message", errPayload.Message)
}

func TestHub_Dispatch_UnknownEventIgnored(t *testing.T) {
	// Arrange
	h := newTestHub(t)
	c := joinAs(t, h, "tech-1", "technician", "Bob")

	// Act
	h.dispatch(c, inbound(t, "frobnicate", struct{}{}))

	// Assert: 不回错误也不崩溃
	assertNoEvent(t, c)
}

// --- 端到端呼叫流程 ---

func TestHub_CallLifecycle(t *testing.T) {
	// Arrange: 双方都已 join
	h := newTestHub(t)
	caller := joinAs(t, h, "tech-1", "technician", "Bob")
	callee := joinAs(t, h, "expert-9", "expert", "Alice")

	// Act 1: 发起呼叫
	h.dispatch(caller, inbound(t, dto.EventCallExpert, dto.CallExpertPayload{
		ExpertID: "expert-9", CallerName: "Bob", RoomID: "room-1", CallerID: "tech-1",
	}))

	// Assert 1: 被叫方收到 incoming-call
	env := recvEvent(t, callee)
	assert.Equal(t, dto.EventIncomingCall, env.Event)
	var incoming dto.IncomingCallPayload
	require.NoError(t, json.Unmarshal(env.Data, &incoming))
	assert.Equal(t, caller.ID(), incoming.From)

	// Act 2: 接听
	h.dispatch(callee, inbound(t, dto.EventAcceptCall, dto.RoomPayload{RoomID: "room-1"}))

	// Assert 2: 双方收到 call-accepted
	assert.Equal(t, dto.EventCallAccepted, recvEvent(t, caller).Event)
	assert.Equal(t, dto.EventCallAccepted, recvEvent(t, callee).Event)

	// Act 3: 交换协商载荷
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	h.dispatch(caller, inbound(t, dto.EventSignal, dto.SignalPayload{RoomID: "room-1", Signal: offer}))

	// Assert 3: 载荷原样到达被叫方
	env = recvEvent(t, callee)
	assert.Equal(t, dto.EventSignal, env.Event)
	var fwd dto.SignalForwardPayload
	require.NoError(t, json.Unmarshal(env.Data, &fwd))
	assert.Equal(t, caller.ID(), fwd.From)
	assert.JSONEq(t, string(offer), string(fwd.Signal))

	// Act 4: 主叫方断线
	h.unregisterClient(caller)

	// Assert 4: 被叫方收到恰好一条 call-ended，资源全部回收
	env = recvEvent(t, callee)
	assert.Equal(t, dto.EventCallEnded, env.Event)
	var ended dto.CallEndedPayload
	require.NoError(t, json.Unmarshal(env.Data, &ended))
	assert.Equal(t, "room-1", ended.RoomID)
	assertNoEvent(t, callee)

	assert.Equal(t, 0, h.rooms.RoomCount())
	_, ok := h.registry.Get(caller.ID())
	assert.False(t, ok)
	_, ok = h.registry.ResolveByUser("tech-1")
	assert.False(t, ok)
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	// Arrange
	h := newTestHub(t)
	c := joinAs(t, h, "tech-1", "technician", "Bob")

	// Act: readPump 和 writePump 都可能触发注销
	h.unregisterClient(c)
	h.unregisterClient(c)

	// Assert
	assert.Equal(t, 0, h.registry.Count())
}

func TestHub_DeclineFlow(t *testing.T) {
	// Arrange
	h := newTestHub(t)
	caller := joinAs(t, h, "tech-1", "technician", "Bob")
	callee := joinAs(t, h, "expert-9", "expert", "Alice")
	h.dispatch(caller, inbound(t, dto.EventCallExpert, dto.CallExpertPayload{
		ExpertID: "expert-9", RoomID: "room-1",
	}))
	recvEvent(t, callee)

	// Act
	h.dispatch(callee, inbound(t, dto.EventDeclineCall, dto.RoomPayload{RoomID: "room-1"}))

	// Assert: 主叫方收到 call-declined，房间销毁
	env := recvEvent(t, caller)
	assert.Equal(t, dto.EventCallDeclined, env.Event)
	assert.Equal(t, 0, h.rooms.RoomCount())
	assertNoEvent(t, callee)
}
