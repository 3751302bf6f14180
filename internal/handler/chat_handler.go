// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理对话中继的 API 请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理 GET /gemini-chat 请求。
// clear=true 时只清空历史并立即返回；参数校验不通过则不触碰存储。
func (h *ChatHandler) Chat(c *gin.Context) {
	prompt := c.Query("prompt")
	uid := c.Query("uid")
	imgURL := c.Query("imgUrl")

	if c.Query("clear") == "true" {
		if err := h.chatService.Clear(c.Request.Context(), uid); err != nil {
			log.Error("Chat: failed to clear conversation", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status": false,
				"error":  "Failed to clear conversation",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  true,
			"message": "Conversation cleared",
		})
		return
	}

	if prompt == "" || uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   `Both "prompt" and "uid" parameters are required`,
			"example": "/gemini-chat?prompt=hello&uid=123",
		})
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), uid, prompt, imgURL)
	if err != nil {
		log.Error("Gemini Error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": false,
			"error":  "Failed to get response from Gemini API",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       true,
		"response":     result.Reply,
		"conversation": result.Conversation,
	})
}
