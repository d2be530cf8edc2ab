package hub

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afifrh/PFEproject/internal/domain"
	"github.com/afifrh/PFEproject/internal/dto"
)

// RoomManager 拥有房间索引并实现呼叫状态机。
// 所有多步操作（查找并创建、扫描并删除）都在同一次持锁中完成，
// 避免跨事件处理器的 read-then-write 竞争；周期清扫任务在
// Hub 事件循环之外运行，走同样的锁。
type RoomManager struct {
	mu       sync.Mutex
	rooms    map[string]*domain.Room
	registry *ConnectionRegistry
	log      *logrus.Entry
}

// NewRoomManager 创建 RoomManager 实例。
func NewRoomManager(registry *ConnectionRegistry) *RoomManager {
	if registry == nil {
		panic("ConnectionRegistry cannot be nil for RoomManager")
	}
	return &RoomManager{
		rooms:    make(map[string]*domain.Room),
		registry: registry,
		log:      logrus.WithField("component", "room_manager"),
	}
}

// InitiateCall 处理呼叫请求：解析目标用户并创建 waiting 房间。
// 目标离线或房间 ID 冲突时只通知主叫方 call-failed，不创建房间。
func (m *RoomManager) InitiateCall(caller *Client, p dto.CallExpertPayload) {
	logCtx := m.log.WithFields(logrus.Fields{
		"room_id":   p.RoomID,
		"caller":    caller.UserID(),
		"expert_id": p.ExpertID,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.registry.ResolveByUser(p.ExpertID)
	if !ok {
		// 目标当前离线：只报告给主叫方，对中继不是错误
		logCtx.Info("Call target is offline, notifying caller")
		m.sendTo(caller.ID(), dto.EventCallFailed, dto.CallFailedPayload{
			RoomID: p.RoomID,
			Reason: "target-unavailable",
		})
		return
	}
	if _, exists := m.rooms[p.RoomID]; exists {
		// 房间 ID 由主叫方生成，冲突说明客户端有 bug
		logCtx.Warn("Room id already in use, rejecting call request")
		m.sendTo(caller.ID(), dto.EventCallFailed, dto.CallFailedPayload{
			RoomID: p.RoomID,
			Reason: "room-exists",
		})
		return
	}

	room := domain.NewWaitingRoom(p.RoomID, caller.ID(), target.ID(), p.ExpertID)
	m.rooms[p.RoomID] = room
	logCtx.WithField("callee_conn", target.ID()).Info("Call initiated, room created in waiting state")

	m.sendTo(target.ID(), dto.EventIncomingCall, dto.IncomingCallPayload{
		RoomID:     p.RoomID,
		CallerName: p.CallerName,
		CallerID:   p.CallerID,
		From:       caller.ID(),
	})
}

// AcceptCall 处理被叫方接受呼叫。
// 只有房间存在、处于 waiting 且接受者就是指定被叫用户时才生效；
// 其余情况（重复 accept、陌生房间、非被叫用户）都是记日志的 no-op。
// 按用户而非句柄匹配，这样被叫方在响铃期间重连也能接听。
func (m *RoomManager) AcceptCall(callee *Client, roomID string) {
	logCtx := m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": callee.UserID()})

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		logCtx.Debug("Accept for unknown room, ignoring")
		return
	}
	if room.Status != domain.RoomWaiting {
		logCtx.WithField("status", room.Status).Debug("Accept for non-waiting room, ignoring")
		return
	}
	if room.CalleeUserID != callee.UserID() {
		logCtx.WithField("designated_callee", room.CalleeUserID).
			Warn("Accept from a connection that is not the designated callee, ignoring")
		return
	}

	room.Activate(callee.ID())
	logCtx.Info("Call accepted, room is now active")

	accepted := dto.CallAcceptedPayload{RoomID: roomID}
	m.sendTo(room.CallerConn, dto.EventCallAccepted, accepted)
	m.sendTo(callee.ID(), dto.EventCallAccepted, accepted)
}

// DeclineCall 处理被叫方拒绝呼叫：通知主叫方并销毁房间。
// 房间不存在时是 no-op。
func (m *RoomManager) DeclineCall(callee *Client, roomID string) {
	logCtx := m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": callee.UserID()})

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		logCtx.Debug("Decline for unknown room, ignoring")
		return
	}

	m.sendTo(room.CallerConn, dto.EventCallDeclined, dto.CallDeclinedPayload{RoomID: roomID})
	m.destroyLocked(room)
	logCtx.Info("Call declined, room destroyed")
}

// JoinRoom 处理显式的房间加入（独立于呼叫握手的 WebRTC 入房）。
// 房间存在时把连接加入参与者并通知其他成员 user-joined；
// 房间不存在时退化为 createDirectRoomLocked。
// 已满的房间拒绝第三个加入者，保证参与者数不超过 2。
func (m *RoomManager) JoinRoom(c *Client, roomID string) {
	logCtx := m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": c.UserID(), "conn_id": c.ID()})

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		m.createDirectRoomLocked(c, roomID)
		return
	}
	if room.HasParticipant(c.ID()) {
		logCtx.Debug("Connection already in room, ignoring duplicate join")
		return
	}
	if !room.AddParticipant(c.ID()) {
		logCtx.Warn("Room is full, rejecting join")
		return
	}
	logCtx.WithField("status", room.Status).Info("Connection joined room")

	joined := dto.UserJoinedPayload{UserID: c.UserID(), Name: c.Name(), From: c.ID()}
	for _, other := range room.OthersOf(c.ID()) {
		m.sendTo(other, dto.EventUserJoined, joined)
	}
}

// createDirectRoomLocked 为未知房间 ID 的加入创建一个 direct 房间。
// 这是对 ad hoc 对等流程的刻意宽容：标准的 offer/accept 序列被绕过。
// 单独命名并用 Warn 级别记录，使错误的房间 ID 在运维上可见，
// 而不是被静默吞掉。调用方必须已持有 m.mu。
func (m *RoomManager) createDirectRoomLocked(c *Client, roomID string) {
	room := domain.NewDirectRoom(roomID, c.ID())
	m.rooms[roomID] = room
	m.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": c.UserID(),
		"conn_id": c.ID(),
	}).Warn("Join for unknown room id, created ad hoc direct room")
}

// EndCall 处理任一方结束呼叫：通知其余参与者并销毁房间。
// 不区分主叫/被叫；重复 end 是 no-op，不会产生重复通知。
func (m *RoomManager) EndCall(c *Client, roomID string) {
	logCtx := m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": c.UserID()})

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		logCtx.Debug("End for unknown room, ignoring")
		return
	}

	ended := dto.CallEndedPayload{RoomID: roomID, Reason: domain.ReasonPeerEnded}
	for _, other := range room.OthersOf(c.ID()) {
		m.sendTo(other, dto.EventCallEnded, ended)
	}
	m.destroyLocked(room)
	logCtx.Info("Call ended by participant, room destroyed")
}

// DropConnection 清理断开连接涉及的所有房间：
// 通知剩余参与者 call-ended (peer-disconnected) 并销毁房间。
// 与注册表删除在同一个 Hub 事件中完成，并发的呼叫请求
// 不会观察到中间状态。
func (m *RoomManager) DropConnection(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, room := range m.rooms {
		if !room.HasParticipant(c.ID()) && room.CalleeConn != c.ID() {
			continue
		}
		ended := dto.CallEndedPayload{RoomID: room.ID, Reason: domain.ReasonPeerDisconnected}
		for _, other := range room.OthersOf(c.ID()) {
			m.sendTo(other, dto.EventCallEnded, ended)
		}
		m.destroyLocked(room)
		m.log.WithFields(logrus.Fields{
			"room_id": room.ID,
			"conn_id": c.ID(),
			"user_id": c.UserID(),
		}).Info("Participant disconnected, room destroyed")
	}
}

// Relay 转发不透明的协商载荷。
// 发送者必须是房间成员；指定了 to 时直接转发给该句柄，
// 否则按房间广播（排除发送者）。目标不在线时丢弃并记日志。
func (m *RoomManager) Relay(from *Client, p dto.SignalPayload) {
	kind := domain.SniffSignalKind(p.Signal)
	logCtx := m.log.WithFields(logrus.Fields{
		"room_id":     p.RoomID,
		"from":        from.ID(),
		"signal_kind": kind,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[p.RoomID]
	if !ok {
		// 房间已不存在（例如 endCall 和迟到的 signal 竞争）：直接丢弃
		logCtx.Debug("Signal for unknown room, dropping")
		return
	}
	if !room.HasParticipant(from.ID()) {
		logCtx.Warn("Signal from a connection that is not a room participant, dropping")
		return
	}

	forward := dto.SignalForwardPayload{From: from.ID(), Signal: p.Signal, RoomID: p.RoomID}
	if p.To != "" {
		m.sendTo(p.To, dto.EventSignal, forward)
		logCtx.WithField("to", p.To).Debug("Signal relayed to explicit target")
		return
	}
	for _, other := range room.OthersOf(from.ID()) {
		m.sendTo(other, dto.EventSignal, forward)
	}
	logCtx.Debug("Signal relayed to room participants")
}

// SweepStale 删除超过最大存活时长的房间，无论其状态。
// 不向参与者发通知：这是兜底的卫生清理，不替代断开触发的清理。
// 返回删除的房间数。
func (m *RoomManager) SweepStale(maxAge time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, room := range m.rooms {
		if !room.IsStale(maxAge, now) {
			continue
		}
		m.log.WithFields(logrus.Fields{
			"room_id":    room.ID,
			"status":     room.Status,
			"created_at": room.CreatedAt,
		}).Info("Sweeping stale room")
		m.destroyLocked(room)
		removed++
	}
	return removed
}

// Lookup 按 ID 返回房间的快照副本，供测试和诊断使用。
func (m *RoomManager) Lookup(roomID string) (domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return domain.Room{}, false
	}
	snapshot := *room
	snapshot.Participants = append([]string(nil), room.Participants...)
	return snapshot, true
}

// RoomCount 返回存活房间数，仅用于日志。
func (m *RoomManager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// destroyLocked 将房间置为 ended 并从索引中移除。
// 房间 ID 一旦销毁绝不复活：之后的查找必须 miss。
// 调用方必须已持有 m.mu。
func (m *RoomManager) destroyLocked(room *domain.Room) {
	room.Status = domain.RoomEnded
	delete(m.rooms, room.ID)
}

// sendTo 将事件封包后放入目标连接的发送队列。
// 目标已不在注册表中（RelayMiss）时丢弃并记日志，绝不报错给客户端。
func (m *RoomManager) sendTo(connID string, event string, data interface{}) {
	target, ok := m.registry.Get(connID)
	if !ok {
		m.log.WithFields(logrus.Fields{"conn_id": connID, "event": event}).
			Debug("Notification target no longer connected, dropping")
		return
	}
	message, err := dto.NewEnvelope(event, data)
	if err != nil {
		m.log.WithError(err).WithField("event", event).Error("Failed to marshal outbound envelope")
		return
	}
	target.Enqueue(message)
}
