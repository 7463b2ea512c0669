package handler

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"heartalk-go/pkg/log"
	"heartalk-go/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const presignExpiry = 15 * time.Minute

// UploadHandler 负责为聊天附件签发对象存储的预签名 URL。
// 附件本体不经过本服务，客户端直接与对象存储交互。
type UploadHandler struct {
	bucket string
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(bucket string) *UploadHandler {
	return &UploadHandler{bucket: bucket}
}

// Presign 为上传签发一个预签名 PUT URL，同时返回对应的下载 URL。
// 对象名由服务端生成，避免客户端覆盖他人文件。
func (h *UploadHandler) Presign(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "查询参数 filename 不能为空"})
		return
	}

	objectName := fmt.Sprintf("chat/%d/%s%s", user.ID, uuid.New().String(), path.Ext(filename))

	putURL, err := storage.GetPresignedPutURL(h.bucket, objectName, presignExpiry)
	if err != nil {
		log.Errorw("签发上传 URL 失败", "userId", user.ID, "object", objectName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发上传地址失败"})
		return
	}
	getURL, err := storage.GetPresignedURL(h.bucket, objectName, presignExpiry)
	if err != nil {
		log.Errorw("签发下载 URL 失败", "userId", user.ID, "object", objectName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发下载地址失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"objectName": objectName,
			"uploadUrl":  putURL,
			"getUrl":     getURL,
			"expiresIn":  int(presignExpiry.Seconds()),
		},
	})
}
