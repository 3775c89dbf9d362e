package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/metrics"
	"github.com/linguaschool/chat-backend/internal/ratelimit"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/internal/ws"
	"github.com/linguaschool/chat-backend/pkg/logger"
)

// MessageOptions bounds message bodies and history pages
type MessageOptions struct {
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
}

// MessageService appends to and reads from conversation histories
type MessageService struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	limiter       *ratelimit.Limiter
	publisher     EventPublisher
	locks         *keyedMutex
	opts          MessageOptions
	now           func() time.Time
}

// NewMessageService creates a new MessageService
func NewMessageService(
	messages repository.MessageRepository,
	conversations repository.ConversationRepository,
	limiter *ratelimit.Limiter,
	publisher EventPublisher,
	opts MessageOptions,
) *MessageService {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = 30
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 4000
	}
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		limiter:       limiter,
		publisher:     publisherOrNoop(publisher),
		locks:         newKeyedMutex(),
		opts:          opts,
		now:           time.Now,
	}
}

// Send persists a message and pushes it to the conversation's subscribers.
// Rejected sends (access, validation, rate limit) leave no trace.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID uint64, req *domain.SendMessageRequest) (*domain.Message, error) {
	sender, err := activeMember(ctx, s.conversations, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.buildMessage(conversationID, sender, req)
	if err != nil {
		return nil, err
	}

	if d := s.limiter.Acquire(senderID); !d.Allowed {
		metrics.RateLimited.Inc()
		return nil, &common.RateLimitError{RetryAfter: d.RetryAfter}
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	if err := s.messages.Append(ctx, msg, s.now()); err != nil {
		return nil, err
	}
	msg.Status = domain.StatusSent

	// published under the conversation lock so subscribers see creation order
	s.publisher.Publish(conversationID, ws.EventMessage, msg)
	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()

	logger.GetLogger().Debug().
		Uint64("conversation_id", conversationID).
		Uint64("message_id", msg.ID).
		Uint64("sender_id", senderID).
		Msg("message sent")
	return msg, nil
}

func (s *MessageService) buildMessage(conversationID uint64, sender *domain.Participant, req *domain.SendMessageRequest) (*domain.Message, error) {
	msgType := req.MessageType
	if msgType == "" {
		msgType = domain.MessageText
	}

	content := strings.TrimSpace(req.Content)
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return nil, common.Validationf("content exceeds %d characters", s.opts.MaxContentLength)
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       sender.UserID,
		SenderName:     sender.Name,
		SenderAvatar:   sender.Avatar,
		Content:        content,
		Type:           msgType,
	}

	switch msgType {
	case domain.MessageText:
		if content == "" {
			return nil, common.Validationf("content is required")
		}
	case domain.MessageFile, domain.MessageImage:
		if req.FileURL == nil || strings.TrimSpace(*req.FileURL) == "" {
			return nil, common.Validationf("fileUrl is required for %s messages", msgType)
		}
		msg.FileURL = req.FileURL
		msg.FileName = req.FileName
		msg.FileSize = req.FileSize
		msg.FileType = req.FileType
	default:
		return nil, common.Validationf("unknown message type %q", msgType)
	}
	return msg, nil
}

// ListPage returns one window of history, newest first, each message with its derived status
func (s *MessageService) ListPage(ctx context.Context, conversationID, userID uint64, cursor domain.PageCursor) (*domain.MessagePage, error) {
	if _, err := activeMember(ctx, s.conversations, conversationID, userID); err != nil {
		return nil, err
	}

	page, size := s.normalizePage(cursor.Page, cursor.Size)
	// one extra row tells whether an older page exists
	rows, err := s.messages.ListPage(ctx, conversationID, cursor.Before, (page-1)*size, size+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > size
	if hasMore {
		rows = rows[:size]
	}

	participants, err := s.conversations.Participants(ctx, conversationID, true)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		m.Status = deriveStatus(m, participants)
	}

	return &domain.MessagePage{Messages: rows, Page: page, Size: size, HasMore: hasMore}, nil
}

func (s *MessageService) normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.opts.DefaultPageSize
	}
	if size > s.opts.MaxPageSize {
		size = s.opts.MaxPageSize
	}
	return page, size
}

// Edit replaces the body of the caller's own text message
func (s *MessageService) Edit(ctx context.Context, messageID, userID uint64, content string) (*domain.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	// a missing message is indistinguishable from one in a conversation the caller cannot see
	if msg == nil {
		return nil, common.ErrAccessDenied
	}
	if _, err := activeMember(ctx, s.conversations, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, common.ErrAccessDenied
	}
	if msg.Type != domain.MessageText {
		return nil, common.Validationf("only text messages can be edited")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, common.Validationf("content is required")
	}
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return nil, common.Validationf("content exceeds %d characters", s.opts.MaxContentLength)
	}

	at := s.now().UTC().Truncate(time.Microsecond)
	if err := s.messages.UpdateContent(ctx, messageID, content, at); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.Edited = true
	msg.UpdatedAt = &at

	participants, err := s.conversations.Participants(ctx, msg.ConversationID, true)
	if err != nil {
		return nil, err
	}
	msg.Status = deriveStatus(msg, participants)

	s.publisher.Publish(msg.ConversationID, ws.EventMessageUpdated, msg)
	return msg, nil
}

// deriveStatus computes SENT/DELIVERED/READ from the other members' cursors
func deriveStatus(m *domain.Message, participants []domain.Participant) domain.MessageStatus {
	status := domain.StatusSent
	for _, p := range participants {
		if p.UserID == m.SenderID {
			continue
		}
		if p.LastReadAt != nil && !p.LastReadAt.Before(m.CreatedAt) {
			return domain.StatusRead
		}
		if p.LastDeliveredAt != nil && !p.LastDeliveredAt.Before(m.CreatedAt) {
			status = domain.StatusDelivered
		}
	}
	return status
}

// activeMember returns the caller's membership or ErrAccessDenied
func activeMember(ctx context.Context, repo repository.ConversationRepository, conversationID, userID uint64) (*domain.Participant, error) {
	p, err := repo.FindParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Active {
		return nil, common.ErrAccessDenied
	}
	return p, nil
}
