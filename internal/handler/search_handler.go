package handler

import (
	"net/http"
	"strconv"

	"heartalk-go/internal/service"
	"heartalk-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const defaultSearchLimit = 20

// SearchHandler 负责消息全文检索相关的 API。
type SearchHandler struct {
	historyService service.HistoryService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(historyService service.HistoryService) *SearchHandler {
	return &SearchHandler{historyService: historyService}
}

// SearchMessages 在当前用户可见的房间与会话中做关键词检索。
func (h *SearchHandler) SearchMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "查询参数 q 不能为空"})
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := h.historyService.SearchMessages(c.Request.Context(), user.ID, query, limit)
	if err != nil {
		log.Errorw("消息检索失败", "userId", user.ID, "query", query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "检索失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": results})
}
