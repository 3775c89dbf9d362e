package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/service"
)

// MessageHandler handles message history and send requests
type MessageHandler struct {
	service *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(service *service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// List handles GET /api/v1/conversations/:id/messages
// @Summary Message history, newest first
// @Tags messages
// @Produce json
// @Param id path int true "Conversation ID"
// @Param page query int false "Page number (1-based)"
// @Param size query int false "Page size (max 100)"
// @Param before query string false "Only messages older than this RFC3339 timestamp"
// @Success 200 {object} common.Response{data=[]domain.Message,meta=common.Meta}
// @Failure 403 {object} common.Response
// @Security BearerAuth
// @Router /conversations/{id}/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	before, ok := queryTime(c, "before")
	if !ok {
		return
	}

	cursor := domain.PageCursor{Page: queryInt(c, "page"), Size: queryInt(c, "size"), Before: before}
	page, err := h.service.ListPage(c.Request.Context(), id, middleware.GetUserID(c), cursor)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.SuccessWithMeta(c, page.Messages, &common.Meta{Page: page.Page, Size: page.Size, HasMore: page.HasMore})
}

// Send handles POST /api/v1/conversations/:id/messages
// @Summary Send a message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param request body domain.SendMessageRequest true "Message body"
// @Success 201 {object} common.Response{data=domain.Message}
// @Failure 400 {object} common.Response
// @Failure 403 {object} common.Response
// @Failure 429 {object} common.Response "error.retryAfterSeconds tells when to retry"
// @Security BearerAuth
// @Router /conversations/{id}/messages [post]
func (h *MessageHandler) Send(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	msg, err := h.service.Send(c.Request.Context(), id, middleware.GetUserID(c), &req)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Created(c, msg)
}

// Edit handles PATCH /api/v1/messages/:id
// @Summary Edit my text message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path int true "Message ID"
// @Param request body domain.EditMessageRequest true "New content"
// @Success 200 {object} common.Response{data=domain.Message}
// @Failure 403 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /messages/{id} [patch]
func (h *MessageHandler) Edit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	msg, err := h.service.Edit(c.Request.Context(), id, middleware.GetUserID(c), req.Content)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, msg)
}
