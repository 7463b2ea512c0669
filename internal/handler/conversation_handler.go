package handler

import (
	"errors"
	"net/http"
	"strconv"

	"heartalk-go/internal/model"
	"heartalk-go/internal/service"
	"heartalk-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责会话列表、历史消息与已读回执相关的 API。
type ConversationHandler struct {
	historyService service.HistoryService
	chatService    service.ChatService
	sessionService service.SessionService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(
	historyService service.HistoryService,
	chatService service.ChatService,
	sessionService service.SessionService,
) *ConversationHandler {
	return &ConversationHandler{
		historyService: historyService,
		chatService:    chatService,
		sessionService: sessionService,
	}
}

// currentUser 从上下文中取出鉴权中间件写入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证"})
		return nil, false
	}
	return userValue.(*model.User), true
}

// parseIDParam 解析路径中的数字 id 参数。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 " + name})
		return 0, false
	}
	return uint(id), true
}

// Conversations 返回当前用户的会话总览：房间（带未读数与最新消息）和 AI 会话。
func (h *ConversationHandler) Conversations(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.historyService.Conversations(user.ID)
	if err != nil {
		log.Errorw("加载会话总览失败", "userId", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "加载会话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": list})
}

// RoomMessages 按时间升序返回房间内的全部历史消息。
func (h *ConversationHandler) RoomMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "roomId")
	if !ok {
		return
	}

	messages, err := h.historyService.RoomMessages(user.ID, roomID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "房间不存在"})
			return
		}
		log.Errorw("加载房间历史失败", "userId", user.ID, "roomId", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "加载历史消息失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}

// SessionMessages 按时间升序返回某个 AI 会话的全部历史消息。
func (h *ConversationHandler) SessionMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "sessionId")
	if !ok {
		return
	}

	messages, err := h.historyService.SessionMessages(user.ID, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorw("加载会话历史失败", "userId", user.ID, "sessionId", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "加载历史消息失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}

// MarkRead 将当前用户在某房间的未读计数清零。
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "roomId")
	if !ok {
		return
	}

	if err := h.historyService.MarkRoomRead(user.ID, roomID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "房间不存在"})
			return
		}
		log.Errorw("清零未读计数失败", "userId", user.ID, "roomId", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "操作失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// RenameSessionRequest 定义了重命名会话 API 的请求体结构。
type RenameSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// RenameSession 修改会话标题。
func (h *ConversationHandler) RenameSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "sessionId")
	if !ok {
		return
	}

	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：title 不能为空"})
		return
	}

	if err := h.sessionService.UpdateTitle(sessionID, user.ID, req.Title); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorw("重命名会话失败", "userId", user.ID, "sessionId", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "操作失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// DeleteSession 删除会话并级联清理其消息日志。
func (h *ConversationHandler) DeleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "sessionId")
	if !ok {
		return
	}

	if err := h.sessionService.DeleteSession(c.Request.Context(), sessionID, user.ID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorw("删除会话失败", "userId", user.ID, "sessionId", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除会话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// CreateRoomRequest 定义了创建房间 API 的请求体结构。
type CreateRoomRequest struct {
	MemberIDs []uint `json:"memberIds" binding:"required,min=1"`
}

// CreateRoom 创建一个新房间并登记成员。创建者自动加入。
func (h *ConversationHandler) CreateRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：memberIds 不能为空"})
		return
	}

	// 创建者总在成员表里
	memberIDs := req.MemberIDs
	found := false
	for _, id := range memberIDs {
		if id == user.ID {
			found = true
			break
		}
	}
	if !found {
		memberIDs = append([]uint{user.ID}, memberIDs...)
	}

	room, err := h.chatService.CreateRoom(memberIDs)
	if err != nil {
		log.Errorw("创建房间失败", "userId", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建房间失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"roomId": room.ID}})
}

// DeleteRoom 删除房间：先移除注册表中的房间与成员行，再清理消息日志。
func (h *ConversationHandler) DeleteRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "roomId")
	if !ok {
		return
	}

	if err := h.chatService.DeleteRoom(roomID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "房间不存在"})
			return
		}
		log.Errorw("删除房间失败", "userId", user.ID, "roomId", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除房间失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}
