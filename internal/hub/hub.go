// Package hub 实现信令中继的核心：连接注册表、呼叫状态机
// 和事件分发循环。所有来自连接的事件都经由单一通道串行处理，
// 每个处理器不被抢占地运行到结束，状态转换因此天然原子；
// 周期清扫在事件循环之外运行，依赖 RoomManager 的锁获得
// 同样的互斥保证。
package hub

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afifrh/PFEproject/internal/dto"
	"github.com/afifrh/PFEproject/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用。
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// SDP offer/answer 可以达到数 KB，留足余量。
	maxMessageSize = 16 * 1024
)

// Hub 内部事件类型。
const (
	MsgRegister   = "register"
	MsgUnregister = "unregister"
	MsgInbound    = "inbound"
)

// HubMessage 定义了在 Hub 内部通道传递的事件。
type HubMessage struct {
	Type    string  // register / unregister / inbound
	Client  *Client // 事件来源连接
	RawData []byte  // 仅用于 inbound：原始 WebSocket 消息
}

// Hub 维护存活连接集合并把入站事件分发到呼叫状态机。
type Hub struct {
	// 内部通道，处理所有来自连接的事件
	messageChan chan HubMessage

	// 所有存活连接（含尚未通过 join 认证的）
	clients map[*Client]bool

	registry    *ConnectionRegistry
	rooms       *RoomManager
	authService *service.AuthService
}

// NewHub 创建并返回一个新的 Hub 实例。
func NewHub(authService *service.AuthService) *Hub {
	if authService == nil {
		panic("AuthService cannot be nil for Hub")
	}
	registry := NewConnectionRegistry()
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		clients:     make(map[*Client]bool),
		registry:    registry,
		rooms:       NewRoomManager(registry),
		authService: authService,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行；messageChan 关闭后退出。
// 事件严格串行处理：同一房间上竞争的 accept 和 end 不会都成功。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case MsgRegister:
			h.registerClient(msg.Client)
		case MsgUnregister:
			h.unregisterClient(msg.Client)
		case MsgInbound:
			h.dispatch(msg.Client, msg.RawData)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// Stop 关闭事件通道，使 Run 退出。只应在进程关闭时调用一次。
func (h *Hub) Stop() {
	close(h.messageChan)
}

// QueueMessage 将事件放入 Hub 的处理队列（非阻塞）。
// 返回 false 表示队列已满，事件被丢弃。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).
			Warn("Hub message channel full, dropping message")
		return false
	}
}

// SweepStaleRooms 删除超龄房间，由周期任务调用。
// 走 RoomManager 的锁，与事件处理器互斥。
func (h *Hub) SweepStaleRooms(maxAge time.Duration) int {
	return h.rooms.SweepStale(maxAge)
}

// Rooms 返回呼叫状态机，供诊断和测试使用。
func (h *Hub) Rooms() *RoomManager { return h.rooms }

// Registry 返回连接注册表，供诊断和测试使用。
func (h *Hub) Registry() *ConnectionRegistry { return h.registry }

// registerClient 记录一条新升级的连接。
// 此时连接尚未认证，只有 join 成功后才进入注册表。
func (h *Hub) registerClient(c *Client) {
	if c == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.clients[c] = true
	logrus.WithField("conn_id", c.ID()).Info("Client registered to Hub")
}

// unregisterClient 处理连接断开：
// 先从注册表删除映射，再清理其所属房间并通知剩余参与者。
// 两步在同一个事件中完成，与并发的呼叫请求保持一致视图。
func (h *Hub) unregisterClient(c *Client) {
	if c == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	if !h.clients[c] {
		// readPump 和 writePump 都可能触发注销，只处理一次
		return
	}
	delete(h.clients, c)

	if c.authed {
		h.registry.Remove(c)
		h.rooms.DropConnection(c)
	}

	// 关闭 send 通道使 WritePump 退出；防御重复关闭
	select {
	case <-c.send:
		logrus.WithField("conn_id", c.ID()).
			Warn("Client send channel already closed or has data during unregister")
	default:
		close(c.send)
	}
	logrus.WithFields(logrus.Fields{"conn_id": c.ID(), "user_id": c.UserID()}).
		Info("Client unregistered from Hub")
}

// dispatch 解析入站信封并路由到对应的状态转换。
// 未认证的连接只允许 join；协议错误降级为 error 通知或日志，
// 绝不导致中继本身失败。
func (h *Hub) dispatch(c *Client, raw []byte) {
	var envelope dto.ClientEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logrus.WithFields(logrus.Fields{"conn_id": c.ID()}).WithError(err).
			Warn("Failed to parse inbound envelope")
		h.sendError(c, "malformed message")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.ID(), "event": envelope.Event})

	if !c.authed && envelope.Event != dto.EventJoin {
		logCtx.Warn("Event from unauthenticated connection, rejecting")
		h.sendError(c, "not authenticated")
		return
	}

	switch envelope.Event {
	case dto.EventJoin:
		h.handleJoin(c, envelope.Data)

	case dto.EventCallExpert:
		var p dto.CallExpertPayload
		if !h.decode(c, envelope.Data, &p) {
			return
		}
		h.rooms.InitiateCall(c, p)

	case dto.EventAcceptCall:
		var p dto.RoomPayload
		if !h.decode(c, envelope.Data, &p) {
			return
		}
		h.rooms.AcceptCall(c, p.RoomID)

	case dto.EventDeclineCall:
		var p dto.RoomPayload
		if !h.decode(c, envelope.Data, &p) {
			return
		}
		h.rooms.DeclineCall(c, p.RoomID)

	case dto.EventJoinRoom:
		var p dto.RoomPayload
		if !h.decode(c, envelope.Data, &p) {
			return
		}
		h.rooms.JoinRoom(c, p.RoomID)

	case dto.EventSignal:
		var p dto.SignalPayload
		if !h.decode(c, envelope.Data, &p) {
			return
		}
		h.rooms.Relay(c, p)

	case dto.EventEndCall:
		var p dto.RoomPayload
		if !h.decode(c, envelope.Data, &p) {
			return
		}
		h.rooms.EndCall(c, p.RoomID)

	default:
		logCtx.Warn("Unknown event, ignoring")
	}
}

// handleJoin 验证 bearer token 并把身份绑定到连接。
// 这是唯一可能触及外部协作者（token 验证）的处理器。
// 认证失败对连接是致命的：通知 error 后关闭通道。
func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	logCtx := logrus.WithField("conn_id", c.ID())

	var p dto.JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		logCtx.WithError(err).Warn("Malformed join payload")
		h.sendError(c, "malformed join payload")
		c.CloseConn()
		return
	}
	if c.authed {
		logCtx.Debug("Duplicate join on authenticated connection, ignoring")
		return
	}

	identity, err := h.authService.VerifyToken(p.Token, p.Role)
	if err != nil {
		logCtx.WithError(err).Warn("Join rejected: authentication failed")
		h.sendError(c, "authentication failed")
		c.CloseConn()
		return
	}

	c.userID = identity.UserID
	c.role = identity.Role
	c.name = identity.Name
	c.authed = true
	h.registry.Register(c)

	ack, err := dto.NewEnvelope(dto.EventJoined, dto.JoinedPayload{
		ConnID: c.ID(),
		UserID: c.UserID(),
		Role:   string(c.Role()),
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal joined ack")
		return
	}
	c.Enqueue(ack)
	logCtx.WithFields(logrus.Fields{"user_id": c.UserID(), "role": c.Role()}).
		Info("Connection joined")
}

// decode 解析事件载荷，失败时通知客户端并返回 false。
func (h *Hub) decode(c *Client, data json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		logrus.WithField("conn_id", c.ID()).WithError(err).
			Warn("Failed to decode event payload")
		h.sendError(c, "malformed payload")
		return false
	}
	return true
}

// sendError 向客户端发送 error 事件，封包失败只记日志。
func (h *Hub) sendError(c *Client, message string) {
	out, err := dto.NewEnvelope(dto.EventError, dto.ErrorPayload{Message: message})
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal error envelope")
		return
	}
	c.Enqueue(out)
}
