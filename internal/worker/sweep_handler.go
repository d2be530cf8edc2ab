package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/afifrh/PFEproject/internal/hub"
	"github.com/afifrh/PFEproject/internal/tasks"
)

// RoomSweepHandler 处理周期性的超龄房间清扫任务。
// 清扫直接走 Hub 的状态机锁，不向剩余参与者发送通知。
type RoomSweepHandler struct {
	hub           *hub.Hub
	defaultMaxAge time.Duration
}

// NewRoomSweepHandler 创建 Handler 实例。
func NewRoomSweepHandler(h *hub.Hub, defaultMaxAge time.Duration) *RoomSweepHandler {
	if h == nil {
		panic("Hub cannot be nil for RoomSweepHandler")
	}
	if defaultMaxAge <= 0 {
		panic("defaultMaxAge must be positive for RoomSweepHandler")
	}
	return &RoomSweepHandler{
		hub:           h,
		defaultMaxAge: defaultMaxAge,
	}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})

	var payload tasks.RoomSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// 载荷损坏无法通过重试修复
		return fmt.Errorf("failed to unmarshal room sweep payload: %v: %w", err, asynq.SkipRetry)
	}

	maxAge := h.defaultMaxAge
	if payload.MaxAgeSeconds > 0 {
		maxAge = time.Duration(payload.MaxAgeSeconds) * time.Second
	}

	removed := h.hub.SweepStaleRooms(maxAge)
	if removed > 0 {
		logCtx.WithFields(logrus.Fields{"removed": removed, "max_age": maxAge}).
			Info("Room sweep removed stale rooms")
	} else {
		logCtx.Debug("Room sweep found no stale rooms")
	}
	return nil
}
