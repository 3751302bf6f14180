package handler

import (
	"net/http"

	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理图片上传的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理 POST /upload-image 请求，表单字段名为 image。
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": false,
			"error":  "No file uploaded",
		})
		return
	}

	url, err := h.uploadService.Save(c.Request.Context(), file)
	if err != nil {
		log.Error("Upload: failed to save image", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": false,
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  true,
		"url":     url,
		"message": "Image uploaded successfully",
	})
}
