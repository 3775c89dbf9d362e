package service

import (
	"context"
	"time"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/internal/ws"
)

// ReceiptService moves read and delivery cursors and derives unread counts
type ReceiptService struct {
	receipts      repository.ReceiptRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	publisher     EventPublisher
	now           func() time.Time
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	receipts repository.ReceiptRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	publisher EventPublisher,
) *ReceiptService {
	return &ReceiptService{
		receipts:      receipts,
		conversations: conversations,
		messages:      messages,
		publisher:     publisherOrNoop(publisher),
		now:           time.Now,
	}
}

// MarkRead moves the caller's read cursor to now.
// The cursor never lands before the newest message, whose timestamp may run slightly ahead of the clock.
func (s *ReceiptService) MarkRead(ctx context.Context, conversationID, userID uint64) error {
	if _, err := activeMember(ctx, s.conversations, conversationID, userID); err != nil {
		return err
	}
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return common.ErrAccessDenied
	}

	at := s.now().UTC().Truncate(time.Microsecond)
	if conv.LastMessageAt != nil && conv.LastMessageAt.After(at) {
		at = conv.LastMessageAt.UTC()
	}
	if err := s.receipts.SetLastRead(ctx, conversationID, userID, at); err != nil {
		return err
	}

	s.publisher.Publish(conversationID, ws.EventReceipt, &domain.ReceiptEvent{UserID: userID, LastReadAt: &at})
	return nil
}

// MarkDelivered records that the caller's connection received messageID
func (s *ReceiptService) MarkDelivered(ctx context.Context, conversationID, userID, messageID uint64) error {
	if _, err := activeMember(ctx, s.conversations, conversationID, userID); err != nil {
		return err
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.ConversationID != conversationID {
		return common.NotFoundf("message %d", messageID)
	}
	if msg.SenderID == userID {
		return nil
	}

	at := msg.CreatedAt.UTC()
	if err := s.receipts.AdvanceDelivered(ctx, conversationID, userID, at); err != nil {
		return err
	}
	s.publisher.Publish(conversationID, ws.EventReceipt, &domain.ReceiptEvent{UserID: userID, LastDeliveredAt: &at})
	return nil
}

// UnreadCount sums unread messages over the user's active conversations
func (s *ReceiptService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.receipts.UnreadTotal(ctx, userID)
}

// UnreadByConversation returns unread counts keyed by conversation; zero counts are omitted
func (s *ReceiptService) UnreadByConversation(ctx context.Context, userID uint64) (map[uint64]int64, error) {
	return s.receipts.UnreadByConversation(ctx, userID)
}
