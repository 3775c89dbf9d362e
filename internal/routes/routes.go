package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/handler"
	"github.com/linguaschool/chat-backend/internal/middleware"
)

// Handlers groups every HTTP handler the chat API exposes
type Handlers struct {
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Reaction     *handler.ReactionHandler
	Attachment   *handler.AttachmentHandler
	WS           *handler.WSHandler
}

// Setup configures all API routes under /api/v1.
// extra runs on authenticated routes after the identity is known.
func Setup(router *gin.Engine, h Handlers, verifier middleware.IdentityVerifier, extra ...gin.HandlerFunc) {
	api := router.Group("/api/v1")

	// socket upgrade accepts anonymous connections; actions are refused per frame
	api.GET("/ws", middleware.OptionalAuth(verifier), h.WS.Connect)

	authed := api.Group("", append([]gin.HandlerFunc{middleware.JWTAuth(verifier)}, extra...)...)

	conversations := authed.Group("/conversations")
	conversations.GET("", h.Conversation.List)
	conversations.POST("", h.Conversation.Create)
	conversations.GET("/:id", h.Conversation.Get)
	conversations.GET("/:id/messages", h.Message.List)
	conversations.POST("/:id/messages", h.Message.Send)
	conversations.POST("/:id/mark-read", h.Conversation.MarkRead)
	conversations.POST("/:id/participants", h.Conversation.AddParticipant)
	conversations.DELETE("/:id/participants/me", h.Conversation.Leave)

	messages := authed.Group("/messages")
	messages.PATCH("/:id", h.Message.Edit)
	messages.POST("/:id/reactions", h.Reaction.Toggle)
	messages.GET("/:id/reactions", h.Reaction.List)

	authed.GET("/unread-count", h.Conversation.UnreadCount)
	authed.POST("/attachments", h.Attachment.Upload)
}
