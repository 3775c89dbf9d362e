package repository

import (
	"context"
	"time"

	"github.com/linguaschool/chat-backend/internal/domain"
	"gorm.io/gorm"
)

// ReceiptRepository reads and moves participant cursors
type ReceiptRepository interface {
	SetLastRead(ctx context.Context, conversationID, userID uint64, at time.Time) error
	AdvanceDelivered(ctx context.Context, conversationID, userID uint64, at time.Time) error
	UnreadTotal(ctx context.Context, userID uint64) (int64, error)
	UnreadByConversation(ctx context.Context, userID uint64) (map[uint64]int64, error)
}

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new ReceiptRepository
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

// SetLastRead overwrites the read cursor (last write wins)
func (r *receiptRepository) SetLastRead(ctx context.Context, conversationID, userID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND active = ?", conversationID, userID, true).
		Update("last_read_at", at.UTC()).Error
}

// AdvanceDelivered moves the delivery cursor forward only
func (r *receiptRepository) AdvanceDelivered(ctx context.Context, conversationID, userID uint64, at time.Time) error {
	at = at.UTC()
	return r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND active = ?", conversationID, userID, true).
		Where("(last_delivered_at IS NULL OR last_delivered_at < ?)", at).
		Update("last_delivered_at", at).Error
}

// unreadQuery selects messages from others newer than the user's read cursor in active memberships
func (r *receiptRepository) unreadQuery(ctx context.Context, userID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("chat_messages AS m").
		Joins("JOIN chat_participants AS p ON p.conversation_id = m.conversation_id").
		Where("p.user_id = ? AND p.active = ?", userID, true).
		Where("m.sender_id <> ?", userID).
		Where("(p.last_read_at IS NULL OR m.created_at > p.last_read_at)")
}

func (r *receiptRepository) UnreadTotal(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.unreadQuery(ctx, userID).Count(&count).Error
	return count, err
}

func (r *receiptRepository) UnreadByConversation(ctx context.Context, userID uint64) (map[uint64]int64, error) {
	var rows []struct {
		ConversationID uint64
		Unread         int64
	}
	err := r.unreadQuery(ctx, userID).
		Select("m.conversation_id AS conversation_id, COUNT(*) AS unread").
		Group("m.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uint64]int64, len(rows))
	for _, row := range rows {
		result[row.ConversationID] = row.Unread
	}
	return result, nil
}
