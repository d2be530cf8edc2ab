package domain

import "time"

// RoomStatus 表示一次呼叫所处的状态。
type RoomStatus string

const (
	// RoomWaiting 初始状态：呼叫请求已发出，被叫方尚未确认。
	RoomWaiting RoomStatus = "waiting"
	// RoomActive 被叫方已接受，双方可以交换信令。
	RoomActive RoomStatus = "active"
	// RoomDirect 绕过标准呼叫握手、通过 join-room 直接建立的房间。
	RoomDirect RoomStatus = "direct"
	// RoomEnded 终结状态。进入该状态的房间会立即从索引中移除，
	// 因此只会在审计日志中短暂出现，绝不会出现在存活索引里。
	RoomEnded RoomStatus = "ended"
)

// 呼叫结束原因，随 call-ended 通知下发。
const (
	ReasonPeerEnded        = "peer-ended"
	ReasonPeerDisconnected = "peer-disconnected"
)

// MaxParticipants 一个房间最多容纳的参与者数量。
const MaxParticipants = 2

// Room 表示一次呼叫尝试或进行中的呼叫。
// Room 只通过通道句柄弱引用连接，不持有连接本身。
type Room struct {
	ID           string // 由主叫方生成，全局唯一
	Status       RoomStatus
	CallerConn   string    // 主叫方通道句柄
	CalleeConn   string    // 被叫方通道句柄，接受前为空
	CalleeUserID string    // 指定被叫用户；accept 校验依据（句柄可能因重连而变化）
	Participants []string  // 当前已加入的通道句柄，有序，<=2
	CreatedAt    time.Time // 用于超龄清扫
}

// NewWaitingRoom 创建一个等待被叫确认的呼叫房间。
func NewWaitingRoom(id, callerConn, calleeConn, calleeUserID string) *Room {
	return &Room{
		ID:           id,
		Status:       RoomWaiting,
		CallerConn:   callerConn,
		CalleeConn:   calleeConn,
		CalleeUserID: calleeUserID,
		Participants: []string{callerConn},
		CreatedAt:    time.Now(),
	}
}

// NewDirectRoom 为 ad hoc 加入创建一个 direct 状态的房间。
func NewDirectRoom(id, connID string) *Room {
	return &Room{
		ID:           id,
		Status:       RoomDirect,
		CallerConn:   connID,
		Participants: []string{connID},
		CreatedAt:    time.Now(),
	}
}

// HasParticipant 报告指定通道句柄是否已加入该房间。
func (r *Room) HasParticipant(connID string) bool {
	for _, p := range r.Participants {
		if p == connID {
			return true
		}
	}
	return false
}

// AddParticipant 将通道句柄加入房间（去重）。
// 超出容量时返回 false，房间不变。
func (r *Room) AddParticipant(connID string) bool {
	if r.HasParticipant(connID) {
		return true
	}
	if len(r.Participants) >= MaxParticipants {
		return false
	}
	r.Participants = append(r.Participants, connID)
	return true
}

// OthersOf 返回除指定句柄外的所有参与者句柄。
func (r *Room) OthersOf(connID string) []string {
	others := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p != connID {
			others = append(others, p)
		}
	}
	return others
}

// Activate 记录被叫方加入并将房间置为 active。
// 只应在 waiting 状态下、完成被叫校验后调用。
func (r *Room) Activate(calleeConn string) {
	r.CalleeConn = calleeConn
	r.AddParticipant(calleeConn)
	r.Status = RoomActive
}

// IsStale 报告房间是否已超过最大存活时长。
func (r *Room) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(r.CreatedAt) > maxAge
}
