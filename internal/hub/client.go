package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/afifrh/PFEproject/internal/domain"
)

// Client 代表一条连接到 Hub 的 WebSocket 连接。
// 身份字段在 join 认证成功前为零值，且只在 Hub 的事件循环中读写。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string      // 通道句柄，每条物理连接唯一
	send chan []byte // 向此客户端发送消息的缓冲通道

	// 由 Hub 事件循环在 join 成功后填充
	userID string
	role   domain.Role
	name   string
	authed bool
}

// NewClient 创建一个新的 Client 实例并分配通道句柄。
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ID 返回本连接的通道句柄。
func (c *Client) ID() string { return c.id }

// UserID 返回认证后的用户标识，未认证时为空串。
func (c *Client) UserID() string { return c.userID }

// Role 返回认证后的用户角色。
func (c *Client) Role() domain.Role { return c.role }

// Name 返回认证后的显示名。
func (c *Client) Name() string { return c.name }

// Enqueue 将消息放入客户端发送队列（非阻塞）。
// 队列满说明客户端读取过慢或已断开，消息被丢弃并返回 false。
func (c *Client) Enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
			Warn("Client send channel full, dropping message")
		return false
	}
}

// CloseConn 关闭底层 WebSocket 连接。
func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的事件通道。
// 它在自己的 goroutine 中运行；退出时向 Hub 请求注销。
func (c *Client) ReadPump() {
	defer func() {
		unregisterMsg := HubMessage{Type: MsgUnregister, Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
				Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
			Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logrus.WithField("conn_id", c.id).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		inbound := HubMessage{Type: MsgInbound, Client: c, RawData: message}
		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- inbound:
		default:
			logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
				Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 send 通道泵送到 WebSocket 连接，
// 并定期发送 Ping 以保活和检测断开。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
					WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(logrus.Fields{"conn_id": c.id, "user_id": c.userID}).
					WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
