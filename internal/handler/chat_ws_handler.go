package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"heartalk-go/internal/hub"
	"heartalk-go/internal/model"
	"heartalk-go/internal/service"
	"heartalk-go/pkg/log"
	"heartalk-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// wsTicketTTL 是一次性连接票据的有效期。票据只能兑换一次，
// 过期或重复使用一律拒绝升级。
const wsTicketTTL = 60 * time.Second

const wsTicketKeyPrefix = "ws:ticket:"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatWSHandler 负责 WebSocket 入口：票据兑换、连接升级、
// 帧分发以及把业务结果交还给连接中心。
type ChatWSHandler struct {
	chatService    service.ChatService
	sessionService service.SessionService
	historyService service.HistoryService
	hub            *hub.Hub
	rdb            *redis.Client
}

// NewChatWSHandler 创建一个新的 ChatWSHandler。
func NewChatWSHandler(
	chatService service.ChatService,
	sessionService service.SessionService,
	historyService service.HistoryService,
	h *hub.Hub,
	rdb *redis.Client,
) *ChatWSHandler {
	return &ChatWSHandler{
		chatService:    chatService,
		sessionService: sessionService,
		historyService: historyService,
		hub:            h,
		rdb:            rdb,
	}
}

// GetWSTicket 为已认证用户签发一次性 WebSocket 连接票据。
// 浏览器的 WebSocket API 无法携带 Authorization 头，
// 所以先走一次带鉴权的 HTTP，再用票据建立长连接。
func (h *ChatWSHandler) GetWSTicket(c *gin.Context) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证", "data": nil})
		return
	}
	user := userValue.(*model.User)

	ticket := token.GenerateRandomString(16)
	key := wsTicketKeyPrefix + ticket
	if err := h.rdb.Set(c.Request.Context(), key, strconv.FormatUint(uint64(user.ID), 10), wsTicketTTL).Err(); err != nil {
		log.Error("写入 WebSocket 票据失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法签发连接票据", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"ticket":    ticket,
		"expiresIn": int(wsTicketTTL.Seconds()),
	}})
}

// Handle 处理一个传入的 WebSocket 连接。
// 票据通过 GETDEL 原子兑换，保证同一票据最多建立一条连接。
func (h *ChatWSHandler) Handle(c *gin.Context) {
	ticket := c.Param("ticket")
	key := wsTicketKeyPrefix + ticket

	val, err := h.rdb.GetDel(c.Request.Context(), key).Result()
	if err != nil {
		if err == redis.Nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的连接票据", "data": nil})
			return
		}
		log.Error("兑换 WebSocket 票据失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "内部错误", "data": nil})
		return
	}
	userID64, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的连接票据", "data": nil})
		return
	}
	userID := uint(userID64)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}

	client := h.hub.NewClient(conn, userID)

	// 上线即订阅该用户可见的全部主题：个人主题、所有房间与所有会话。
	topics, err := h.historyService.TopicsForUser(userID)
	if err != nil {
		log.Errorw("加载用户订阅主题失败", "userId", userID, "error", err)
		topics = []string{hub.UserTopic(userID)}
	}
	h.hub.Subscribe(client, topics...)
	h.hub.Register(client)
	go client.WritePump()

	log.Infow("WebSocket 连接已建立", "connId", client.ID, "userId", userID)

	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("WebSocket 读取失败: %v", err)
			}
			return
		}
		h.dispatch(c.Request.Context(), client, raw)
	}
}

// dispatch 解析单个入站帧并路由到对应的业务操作。
// 任何一帧的失败都只影响这一帧：记录日志、回发 error 事件，连接保持打开。
func (h *ChatWSHandler) dispatch(ctx context.Context, client *hub.Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.reject(client, raw, fmt.Errorf("帧不是合法的 JSON: %w", err))
		return
	}

	var err error
	switch frame.Action {
	case ActionChatSend:
		err = h.handleChatSend(ctx, client, frame.Data)
	case ActionChatDelete:
		err = h.handleChatDelete(ctx, client, frame.Data)
	case ActionAIChatSend:
		err = h.handleAIChatSend(ctx, client, frame.Data)
	case ActionAIChatResponse:
		err = h.handleAIChatResponse(ctx, client, frame.Data)
	case ActionAIChatDeleteSession:
		err = h.handleAIChatDeleteSession(ctx, client, frame.Data)
	default:
		err = fmt.Errorf("未知的 action: %q", frame.Action)
	}
	if err != nil {
		h.reject(client, raw, err)
	}
}

// reject 记录失败帧并把错误事件直接回发给发送方连接。
func (h *ChatWSHandler) reject(client *hub.Client, raw []byte, err error) {
	log.Errorw("处理 WebSocket 帧失败",
		"connId", client.ID,
		"userId", client.UserID,
		"frame", string(raw),
		"error", err,
	)
	h.hub.SendDirect(client, hub.NewErrorEvent(err.Error()))
}

func (h *ChatWSHandler) handleChatSend(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	var p chatSendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("chat.send 载荷解析失败: %w", err)
	}
	if err := p.validate(); err != nil {
		return err
	}
	if p.SenderID.Uint() != client.UserID {
		return fmt.Errorf("senderId %d 与连接所属用户不符", p.SenderID.Uint())
	}

	_, err := h.chatService.SendRoomMessage(ctx, client.UserID, p.RoomID.Uint(), p.Content)
	return err
}

func (h *ChatWSHandler) handleChatDelete(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	var p chatDeletePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("chat.delete 载荷解析失败: %w", err)
	}
	if err := p.validate(); err != nil {
		return err
	}
	return h.chatService.DeleteRoomMessage(ctx, client.UserID, p.RoomID.Uint(), p.MessageID)
}

func (h *ChatWSHandler) handleAIChatSend(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	var p aiChatSendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("aichat.send 载荷解析失败: %w", err)
	}
	if err := p.validate(); err != nil {
		return err
	}
	if p.UserID.Uint() != client.UserID {
		return fmt.Errorf("userId %d 与连接所属用户不符", p.UserID.Uint())
	}

	var sessionID *uint
	if p.SessionID != nil {
		id := p.SessionID.Uint()
		sessionID = &id
	}

	_, session, err := h.sessionService.SendMessage(ctx, client.UserID, sessionID, p.Content, p.Role)
	if err != nil {
		return err
	}

	// 会话是本帧隐式创建的：当前连接还没订阅它的主题，这里补上，
	// 否则发送方要等到重连才能看到助手的回复。
	if sessionID == nil && session != nil {
		h.hub.Subscribe(client, hub.SessionTopic(session.ID))
	}
	return nil
}

func (h *ChatWSHandler) handleAIChatResponse(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	var p aiChatResponsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("aichat.response 载荷解析失败: %w", err)
	}
	if err := p.validate(); err != nil {
		return err
	}
	if p.UserID.Uint() != client.UserID {
		return fmt.Errorf("userId %d 与连接所属用户不符", p.UserID.Uint())
	}
	_, err := h.sessionService.AppendAssistantReply(ctx, p.SessionID.Uint(), p.UserID.Uint(), p.Content)
	return err
}

func (h *ChatWSHandler) handleAIChatDeleteSession(ctx context.Context, client *hub.Client, data json.RawMessage) error {
	var p aiChatDeleteSessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("aichat.deleteSession 载荷解析失败: %w", err)
	}
	if err := p.validate(); err != nil {
		return err
	}
	if p.UserID.Uint() != client.UserID {
		return fmt.Errorf("userId %d 与连接所属用户不符", p.UserID.Uint())
	}
	return h.sessionService.DeleteSession(ctx, p.SessionID.Uint(), p.UserID.Uint())
}
