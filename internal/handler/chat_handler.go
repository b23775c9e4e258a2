package handler

import (
	"net/http"

	"timetracker/internal/service"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// RegisterRoutes mounts the assistant. The chat service applies its own
// stricter rate limit.
func (h *ChatHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/chat", h.Send)
}

// Send answers the last user message of a conversation
// @Summary      Chat with the assistant
// @Tags         chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ChatRequest  true  "Conversation, oldest first"
// @Success      200      {object}  response.Response{data=service.ChatResponse}
// @Failure      400      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/chat [post]
func (h *ChatHandler) Send(c *gin.Context) {
	var req service.ChatRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.chatService.Send(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
