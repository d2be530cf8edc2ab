// Package domain 定义了信令中继使用的核心数据结构。
package domain

// Role 表示连接背后用户的角色。
type Role string

const (
	RoleTechnician Role = "technician" // 发起求助呼叫的现场技术员
	RoleExpert     Role = "expert"     // 接听呼叫的远程专家
)

// ParseRole 将字符串解析为 Role。
// 未知角色返回 false，由调用方决定如何处理。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleTechnician:
		return RoleTechnician, true
	case RoleExpert:
		return RoleExpert, true
	default:
		return "", false
	}
}

// Connection 表示一条已认证的物理连接到用户身份的映射。
// 生命周期从 join 成功开始，到连接断开为止；由 ConnectionRegistry 独占管理。
type Connection struct {
	ConnID string // 通道句柄，每条物理连接唯一（由传输层分配）
	UserID string // 来自 Identity Resolver 的稳定用户标识
	Role   Role
	Name   string // 显示名，用于 incoming-call 通知
}
