package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/service"
)

// AttachmentHandler handles file uploads referenced by FILE and IMAGE messages
type AttachmentHandler struct {
	service *service.AttachmentService
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(service *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload handles POST /api/v1/attachments
// @Summary Upload an attachment
// @Tags attachments
// @Accept multipart/form-data
// @Produce json
// @Param conversationId formData int true "Conversation the file belongs to"
// @Param file formData file true "File"
// @Success 201 {object} common.Response{data=domain.AttachmentResponse}
// @Failure 400 {object} common.Response
// @Failure 403 {object} common.Response
// @Failure 502 {object} common.Response
// @Security BearerAuth
// @Router /attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	conversationID, err := strconv.ParseUint(c.PostForm("conversationId"), 10, 64)
	if err != nil || conversationID == 0 {
		common.BadRequest(c, "conversationId is required")
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.BadRequest(c, "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		common.BadRequest(c, "cannot read uploaded file")
		return
	}
	defer file.Close()

	result, err := h.service.Upload(
		c.Request.Context(),
		conversationID,
		middleware.GetUserID(c),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		common.Fail(c, err)
		return
	}
	common.Created(c, result)
}
