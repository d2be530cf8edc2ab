package hub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ConnectionRegistry 拥有"通道句柄 → 已认证连接"的映射，
// 并维护反向索引"用户 → 当前连接"用于按用户路由呼叫。
// 同一用户重连时后写胜出：新连接覆盖旧映射。
type ConnectionRegistry struct {
	mu     sync.RWMutex
	byConn map[string]*Client // conn_id -> client
	byUser map[string]*Client // user_id -> client（最近一次注册的连接）
}

// NewConnectionRegistry 创建空的注册表。
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byConn: make(map[string]*Client),
		byUser: make(map[string]*Client),
	}
}

// Register 记录一条已认证连接的身份映射。
// 对同一句柄幂等；同一用户的旧连接映射被覆盖（last write wins）。
func (r *ConnectionRegistry) Register(c *Client) {
	r.mu.Lock()
	r.byConn[c.id] = c
	r.byUser[c.userID] = c
	r.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"conn_id": c.id,
		"user_id": c.userID,
		"role":    c.role,
	}).Info("Connection registered")
}

// Remove 删除连接的映射，每次断开恰好调用一次。
// 只有当反向索引仍指向本连接时才清除它，
// 避免误删同一用户重连后建立的新映射。
func (r *ConnectionRegistry) Remove(c *Client) {
	r.mu.Lock()
	delete(r.byConn, c.id)
	if cur, ok := r.byUser[c.userID]; ok && cur == c {
		delete(r.byUser, c.userID)
	}
	r.mu.Unlock()
	logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
		Debug("Connection removed from registry")
}

// ResolveByUser 按用户标识查找其当前连接。
// 未找到表示"目标当前离线"，调用方据此通知主叫，不是致命错误。
func (r *ConnectionRegistry) ResolveByUser(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Get 按通道句柄查找连接。
func (r *ConnectionRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

// Count 返回当前已认证连接数，仅用于日志。
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
