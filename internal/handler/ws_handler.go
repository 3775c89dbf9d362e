package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/metrics"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/service"
	"github.com/linguaschool/chat-backend/internal/ws"
	"github.com/linguaschool/chat-backend/pkg/logger"
)

const frameTimeout = 10 * time.Second

// Client frame types
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSend        = "send"
	frameTyping      = "typing"
	frameAck         = "ack"
	framePing        = "ping"
)

// inboundFrame is every client-to-server frame; fields apply per type
type inboundFrame struct {
	Type           string             `json:"type" validate:"required,oneof=subscribe unsubscribe send typing ack ping"`
	ConversationID uint64             `json:"conversationId" validate:"required_unless=Type ping"`
	MessageID      uint64             `json:"messageId" validate:"required_if=Type ack"`
	Typing         bool               `json:"typing"`
	Content        string             `json:"content" validate:"max=20000"`
	MessageType    domain.MessageType `json:"messageType" validate:"omitempty,oneof=TEXT FILE IMAGE"`
	FileURL        *string            `json:"fileUrl" validate:"omitempty,url"`
	FileName       *string            `json:"fileName" validate:"omitempty,max=255"`
	FileSize       *int64             `json:"fileSize" validate:"omitempty,gte=0"`
	FileType       *string            `json:"fileType" validate:"omitempty,max=100"`
}

// WSHandler upgrades connections and dispatches client frames
type WSHandler struct {
	hub            *ws.Hub
	conversations  *service.ConversationService
	messages       *service.MessageService
	receipts       *service.ReceiptService
	validate       *validator.Validate
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(
	hub *ws.Hub,
	conversations *service.ConversationService,
	messages *service.MessageService,
	receipts *service.ReceiptService,
	allowedOrigins string,
) *WSHandler {
	h := &WSHandler{
		hub:            hub,
		conversations:  conversations,
		messages:       messages,
		receipts:       receipts,
		validate:       validator.New(),
		allowedOrigins: parseOrigins(allowedOrigins),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// parseOrigins parses comma-separated origins string
func parseOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// checkOrigin allows same-origin requests, and every origin when none are configured
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Connect handles GET /api/v1/ws
// Connections without identity are accepted but every action is refused.
// @Summary Real-time conversation channel
// @Tags realtime
// @Param token query string false "Bearer token when headers cannot be set"
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.GetLogger().Debug().Err(err).Msg("ws: upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	log := logger.WithConn(client.ID(), userID)
	log.Info().Bool("authenticated", client.Authenticated()).Msg("ws: connected")

	go client.WritePump()
	go func() {
		client.ReadPump(h)
		log.Info().Msg("ws: disconnected")
	}()
}

// HandleFrame processes one client frame. Failures are answered with an error frame; the session stays open.
func (h *WSHandler) HandleFrame(client *ws.Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.rejectFrame(client, "malformed frame", err)
		return
	}
	if err := h.validate.Struct(&frame); err != nil {
		h.rejectFrame(client, "invalid "+frame.Type+" frame", err)
		return
	}

	if frame.Type == framePing {
		client.Send(&ws.Event{Type: ws.EventPong})
		return
	}
	if !client.Authenticated() {
		metrics.BadFrames.Inc()
		client.SendError(common.ErrorCode(common.ErrUnauthorized), "authentication required", 0)
		return
	}

	// send and ack outlive a connection dropped mid-frame
	parent := client.Context()
	if frame.Type == frameSend || frame.Type == frameAck {
		parent = context.WithoutCancel(parent)
	}
	ctx, cancel := context.WithTimeout(parent, frameTimeout)
	defer cancel()

	var err error
	switch frame.Type {
	case frameSubscribe:
		err = h.subscribe(ctx, client, frame.ConversationID)
	case frameUnsubscribe:
		h.hub.Unsubscribe(client, frame.ConversationID)
		client.Send(&ws.Event{Type: ws.EventUnsubscribed, ConversationID: frame.ConversationID})
	case frameSend:
		_, err = h.messages.Send(ctx, frame.ConversationID, client.UserID(), &domain.SendMessageRequest{
			Content:     frame.Content,
			MessageType: frame.MessageType,
			FileURL:     frame.FileURL,
			FileName:    frame.FileName,
			FileSize:    frame.FileSize,
			FileType:    frame.FileType,
		})
	case frameTyping:
		err = h.typing(client, frame.ConversationID, frame.Typing)
	case frameAck:
		err = h.receipts.MarkDelivered(ctx, frame.ConversationID, client.UserID(), frame.MessageID)
	}
	if err != nil {
		h.replyError(client, frame.Type, err)
	}
}

func (h *WSHandler) subscribe(ctx context.Context, client *ws.Client, conversationID uint64) error {
	if _, err := h.conversations.Get(ctx, conversationID, client.UserID()); err != nil {
		return err
	}
	h.hub.Subscribe(client, conversationID)
	// a leave that landed between the check and the subscribe would otherwise be missed
	if _, err := h.conversations.Get(ctx, conversationID, client.UserID()); err != nil {
		h.hub.Unsubscribe(client, conversationID)
		return err
	}
	client.Send(&ws.Event{Type: ws.EventSubscribed, ConversationID: conversationID})
	return nil
}

// typing is relayed only within conversations the connection already subscribed to, which implies membership
func (h *WSHandler) typing(client *ws.Client, conversationID uint64, typing bool) error {
	if !h.hub.IsSubscribed(client, conversationID) {
		return common.ErrAccessDenied
	}
	h.hub.Publish(conversationID, ws.EventTyping, &domain.TypingEvent{UserID: client.UserID(), Typing: typing})
	return nil
}

func (h *WSHandler) rejectFrame(client *ws.Client, message string, err error) {
	metrics.BadFrames.Inc()
	log := logger.WithConn(client.ID(), client.UserID())
	log.Warn().Err(err).Msg("ws: bad frame")
	client.SendError(common.ErrorCode(common.ErrValidation), message, 0)
}

func (h *WSHandler) replyError(client *ws.Client, frameType string, err error) {
	code := common.ErrorCode(err)
	message := err.Error()
	if common.HTTPStatus(err) == http.StatusInternalServerError {
		log := logger.WithConn(client.ID(), client.UserID())
		log.Error().Err(err).Str("frame", frameType).Msg("ws: frame failed")
		message = "internal server error"
	}

	retryAfter := 0
	var rl *common.RateLimitError
	if errors.As(err, &rl) {
		retryAfter = rl.RetryAfterSeconds()
	}
	client.SendError(code, message, retryAfter)
}
