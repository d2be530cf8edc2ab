// Package tasks 定义后台任务类型及其载荷。
package tasks

import "encoding/json"

// 任务类型常量。
const (
	// TypeRoomSweep 周期性的超龄房间清扫任务。
	// 整个进程只注册一个调度条目，不随连接事件重复注册。
	TypeRoomSweep = "room:sweep"
)

// RoomSweepPayload 定义了房间清扫任务的数据结构。
// MaxAgeSeconds 为 0 时使用 worker 配置的默认值。
type RoomSweepPayload struct {
	MaxAgeSeconds int `json:"max_age_seconds"`
}

// NewRoomSweepTask 创建一个房间清扫任务的序列化载荷。
func NewRoomSweepTask(maxAgeSeconds int) ([]byte, error) {
	payload := RoomSweepPayload{MaxAgeSeconds: maxAgeSeconds}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}
