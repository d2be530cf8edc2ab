package service

import "errors"

// 业务层错误。对应的处理策略见各调用方：
// 认证失败对连接是致命的，其余都降级为通知或静默忽略。
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTargetUnavailable    = errors.New("target user is not connected")
	ErrUnknownRoom          = errors.New("room not found")
	ErrInternalServer       = errors.New("internal server error")
)
