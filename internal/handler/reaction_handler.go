package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/service"
)

// ReactionHandler handles reaction HTTP requests
type ReactionHandler struct {
	service *service.ReactionService
}

// NewReactionHandler creates a new ReactionHandler
func NewReactionHandler(service *service.ReactionService) *ReactionHandler {
	return &ReactionHandler{service: service}
}

// Toggle handles POST /api/v1/messages/:id/reactions
// @Summary Toggle a reaction
// @Tags reactions
// @Accept json
// @Produce json
// @Param id path int true "Message ID"
// @Param request body domain.ReactionRequest true "Emoji"
// @Success 200 {object} common.Response{data=domain.Reaction} "Added"
// @Success 204 "Removed"
// @Failure 400 {object} common.Response
// @Failure 403 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /messages/{id}/reactions [post]
func (h *ReactionHandler) Toggle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req domain.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	reaction, err := h.service.Toggle(c.Request.Context(), id, middleware.GetUserID(c), req.Emoji)
	if err != nil {
		common.Fail(c, err)
		return
	}
	if reaction == nil {
		common.NoContent(c)
		return
	}
	common.Success(c, reaction)
}

// List handles GET /api/v1/messages/:id/reactions
// @Summary Reaction summary of a message
// @Tags reactions
// @Produce json
// @Param id path int true "Message ID"
// @Success 200 {object} common.Response{data=[]domain.ReactionSummary}
// @Failure 403 {object} common.Response
// @Failure 404 {object} common.Response
// @Security BearerAuth
// @Router /messages/{id}/reactions [get]
func (h *ReactionHandler) List(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.service.Summarize(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Success(c, summary)
}
