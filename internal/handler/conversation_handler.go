package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/service"
)

// ConversationHandler handles conversation and read-receipt requests
type ConversationHandler struct {
	conversations *service.ConversationService
	receipts      *service.ReceiptService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(conversations *service.ConversationService, receipts *service.ReceiptService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, receipts: receipts}
}

// List handles GET /api/v1/conversations
// @Summary List my conversations
// @Tags conversations
// @Produce json
// @Success 200 {object} common.Response{data=[]domain.ConversationResponse}
// @Failure 401 {object} common.Response
// @Security BearerAuth
// @Router /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	items, err := h.conversations.ListForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, items)
}

// Get handles GET /api/v1/conversations/:id
// @Summary Get a conversation
// @Tags conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} common.Response{data=domain.Conversation}
// @Failure 403 {object} common.Response
// @Security BearerAuth
// @Router /conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	conv, err := h.conversations.Get(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, conv)
}

// Create handles POST /api/v1/conversations
// @Summary Create a group or find-or-create a direct conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Param request body domain.CreateConversationRequest true "Participants and type"
// @Success 200 {object} common.Response{data=domain.Conversation} "Existing direct conversation"
// @Success 201 {object} common.Response{data=domain.Conversation}
// @Failure 400 {object} common.Response
// @Security BearerAuth
// @Router /conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	var req domain.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	conv, created, err := h.conversations.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		common.Fail(c, err)
		return
	}
	if created {
		common.Created(c, conv)
		return
	}
	common.Success(c, conv)
}

// AddParticipant handles POST /api/v1/conversations/:id/participants
// @Summary Add a member to a group
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param request body domain.AddParticipantRequest true "User to add"
// @Success 200 {object} common.Response{data=domain.Conversation}
// @Failure 400 {object} common.Response
// @Failure 403 {object} common.Response
// @Security BearerAuth
// @Router /conversations/{id}/participants [post]
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req domain.AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	conv, err := h.conversations.AddParticipant(c.Request.Context(), id, middleware.GetUserID(c), req.UserID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, conv)
}

// Leave handles DELETE /api/v1/conversations/:id/participants/me
// @Summary Leave a group
// @Tags conversations
// @Param id path int true "Conversation ID"
// @Success 204
// @Failure 400 {object} common.Response
// @Failure 403 {object} common.Response
// @Security BearerAuth
// @Router /conversations/{id}/participants/me [delete]
func (h *ConversationHandler) Leave(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.conversations.Leave(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		common.Fail(c, err)
		return
	}
	common.NoContent(c)
}

// MarkRead handles POST /api/v1/conversations/:id/mark-read
// @Summary Move my read cursor to now
// @Tags receipts
// @Param id path int true "Conversation ID"
// @Success 204
// @Failure 403 {object} common.Response
// @Security BearerAuth
// @Router /conversations/{id}/mark-read [post]
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.receipts.MarkRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		common.Fail(c, err)
		return
	}
	common.NoContent(c)
}

// UnreadCount handles GET /api/v1/unread-count
// @Summary Total unread messages across my conversations
// @Tags receipts
// @Produce json
// @Success 200 {object} common.Response{data=domain.UnreadCountResponse}
// @Security BearerAuth
// @Router /unread-count [get]
func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	count, err := h.receipts.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, domain.UnreadCountResponse{Count: count})
}
