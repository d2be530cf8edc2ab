package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/afifrh/PFEproject/internal/domain"
)

func TestRoom_AddParticipant_Capacity(t *testing.T) {
	// Arrange
	room := domain.NewDirectRoom("room-1", "conn-a")

	// Act & Assert: 第二人可加入，第三人被拒，重复加入幂等
	assert.True(t, room.AddParticipant("conn-b"))
	assert.False(t, room.AddParticipant("conn-c"), "超出容量的加入应被拒绝")
	assert.True(t, room.AddParticipant("conn-a"), "重复加入应是幂等的成功")
	assert.Len(t, room.Participants, domain.MaxParticipants)
}

func TestRoom_OthersOf(t *testing.T) {
	// Arrange
	room := domain.NewDirectRoom("room-1", "conn-a")
	room.AddParticipant("conn-b")

	// Act & Assert
	assert.Equal(t, []string{"conn-b"}, room.OthersOf("conn-a"))
	assert.Equal(t, []string{"conn-a"}, room.OthersOf("conn-b"))
	assert.Len(t, room.OthersOf("conn-x"), 2, "非成员视角下所有参与者都是 others")
}

func TestRoom_Activate(t *testing.T) {
	// Arrange: waiting 房间只有主叫方
	room := domain.NewWaitingRoom("room-1", "conn-caller", "conn-callee", "expert-9")
	assert.Equal(t, domain.RoomWaiting, room.Status)
	assert.False(t, room.HasParticipant("conn-callee"))

	// Act: 被叫方用重连后的新句柄接听
	room.Activate("conn-callee-2")

	// Assert
	assert.Equal(t, domain.RoomActive, room.Status)
	assert.Equal(t, "conn-callee-2", room.CalleeConn)
	assert.True(t, room.HasParticipant("conn-callee-2"))
}

func TestRoom_IsStale(t *testing.T) {
	// Arrange
	room := domain.NewDirectRoom("room-1", "conn-a")
	now := room.CreatedAt

	// Act & Assert
	assert.False(t, room.IsStale(time.Hour, now.Add(time.Hour)), "恰好到期不算超龄")
	assert.True(t, room.IsStale(time.Hour, now.Add(time.Hour+time.Second)))
}

func TestParseRole(t *testing.T) {
	// Act & Assert
	role, ok := domain.ParseRole("technician")
	assert.True(t, ok)
	assert.Equal(t, domain.RoleTechnician, role)

	role, ok = domain.ParseRole("expert")
	assert.True(t, ok)
	assert.Equal(t, domain.RoleExpert, role)

	_, ok = domain.ParseRole("admin")
	assert.False(t, ok)
}

func TestSniffSignalKind(t *testing.T) {
	// Act & Assert: 探测只看判别字段，不解析载荷其余内容
	assert.Equal(t, domain.SignalOffer, domain.SniffSignalKind(json.RawMessage(`{"type":"offer","sdp":"v=0"}`)))
	assert.Equal(t, domain.SignalAnswer, domain.SniffSignalKind(json.RawMessage(`{"type":"answer"}`)))
	assert.Equal(t, domain.SignalCandidate, domain.SniffSignalKind(json.RawMessage(`{"candidate":{"sdpMid":"0"}}`)))
	assert.Equal(t, domain.SignalUnknown, domain.SniffSignalKind(json.RawMessage(`{"foo":1}`)))
	assert.Equal(t, domain.SignalUnknown, domain.SniffSignalKind(json.RawMessage(`not-json`)))
}
