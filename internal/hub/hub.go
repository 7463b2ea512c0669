// Package hub 实现了事件扇出：按主题管理 WebSocket 订阅者并广播事件。
// 投递语义是对当前在线订阅者的 at-most-once；事件不落盘，
// 断线的客户端依靠历史/已读接口在重连后补齐状态。
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"heartalk-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second

	// Redis Pub/Sub 频道前缀，用于多实例间的事件桥接。
	bridgePrefix = "fanout:"
)

// Publisher 是服务层看到的扇出入口。
type Publisher interface {
	Publish(topic string, event interface{})
}

// RoomTopic 返回房间消息事件的主题名。
func RoomTopic(roomID uint) string {
	return fmt.Sprintf("topic.chat.%d", roomID)
}

// SessionTopic 返回会话消息事件的主题名。
func SessionTopic(sessionID uint) string {
	return fmt.Sprintf("topic.aichat.session.%d", sessionID)
}

// UserTopic 返回用户个人主题名，承载未读变更与会话生命周期事件。
func UserTopic(userID uint) string {
	return fmt.Sprintf("topic.user.%d", userID)
}

// Client 代表一条已注册的 WebSocket 连接。
type Client struct {
	ID     string
	UserID uint
	conn   *websocket.Conn
	Send   chan []byte
	topics map[string]bool
	mu     sync.Mutex
}

type topicMessage struct {
	topic string
	data  []byte
}

// Hub 管理全部连接与主题订阅。
type Hub struct {
	clients map[string]*Client
	// topics 维护主题到订阅者连接 ID 的映射
	topics map[string]map[string]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *topicMessage

	// rdb 非空时启用 Redis Pub/Sub 桥接，事件经 Redis 广播到所有实例
	rdb *redis.Client

	mu sync.RWMutex
}

// NewHub 创建一个新的 Hub。rdb 传 nil 时仅做本地投递。
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicMessage, 256),
		rdb:        rdb,
	}
}

// Run 启动 Hub 的主循环。
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			for topic := range client.topics {
				if h.topics[topic] == nil {
					h.topics[topic] = make(map[string]bool)
				}
				h.topics[topic][client.ID] = true
			}
			h.mu.Unlock()
			log.Infow("WebSocket 连接已注册", "connId", client.ID, "userId", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				for topic := range client.topics {
					if subs := h.topics[topic]; subs != nil {
						delete(subs, client.ID)
						if len(subs) == 0 {
							delete(h.topics, topic)
						}
					}
				}
				close(client.Send)
			}
			h.mu.Unlock()
			log.Infow("WebSocket 连接已注销", "connId", client.ID, "userId", client.UserID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for clientID := range h.topics[msg.topic] {
				client, ok := h.clients[clientID]
				if !ok {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// 发送缓冲已满，放弃本条投递（at-most-once）
					log.Warnw("订阅者缓冲已满，丢弃事件", "connId", clientID, "topic", msg.topic)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// RunBridge 订阅 Redis 桥接频道，把其它实例发布的事件转投给本地订阅者。
// 仅在启用桥接时由 main 以 goroutine 方式启动。
func (h *Hub) RunBridge(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, bridgePrefix+"*")
	defer pubsub.Close()
	log.Info("扇出桥接已启动，监听 Redis Pub/Sub")

	for msg := range pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, bridgePrefix)
		h.broadcast <- &topicMessage{topic: topic, data: []byte(msg.Payload)}
	}
}

// NewClient 为一条升级完成的 WebSocket 连接创建客户端。
func (h *Hub) NewClient(conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool),
	}
}

// Subscribe 把客户端加入给定主题。注册之前调用时只记录在客户端本地，
// 注册时一并写入 Hub 的订阅表。
func (h *Hub) Subscribe(client *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		client.topics[topic] = true
		if _, registered := h.clients[client.ID]; registered {
			if h.topics[topic] == nil {
				h.topics[topic] = make(map[string]bool)
			}
			h.topics[topic][client.ID] = true
		}
	}
}

// Register 注册一条连接。
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销一条连接。
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish 把事件广播给主题的全部订阅者。
// 启用 Redis 桥接时事件只经 Redis 走一遍，由桥接循环统一投递本地，
// 避免本地订阅者收到重复事件。
func (h *Hub) Publish(topic string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorw("事件序列化失败", "topic", topic, "error", err)
		return
	}
	if h.rdb != nil {
		if err := h.rdb.Publish(context.Background(), bridgePrefix+topic, data).Err(); err != nil {
			log.Errorw("事件桥接发布失败，降级为本地投递", "topic", topic, "error", err)
			h.broadcast <- &topicMessage{topic: topic, data: data}
		}
		return
	}
	h.broadcast <- &topicMessage{topic: topic, data: data}
}

// SendDirect 把事件直接发给单条连接（用于错误帧回执）。
func (h *Hub) SendDirect(client *Client, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorw("事件序列化失败", "connId", client.ID, "error", err)
		return
	}
	select {
	case client.Send <- data:
	default:
		log.Warnw("订阅者缓冲已满，丢弃直发事件", "connId", client.ID)
	}
}

// WritePump 消费发送缓冲并写入底层连接，同时按固定间隔发送 ping。
// 每条连接启动一个 goroutine 运行它。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 已关闭该连接的发送通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WriteMessage 带锁向底层连接写入一条消息。
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}
