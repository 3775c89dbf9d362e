package repository

import (
	"context"
	"errors"
	"time"

	"github.com/linguaschool/chat-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository message data access interface
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message, now time.Time) error
	FindByID(ctx context.Context, id uint64) (*domain.Message, error)
	ListPage(ctx context.Context, conversationID uint64, before *time.Time, offset, limit int) ([]*domain.Message, error)
	UpdateContent(ctx context.Context, id uint64, content string, at time.Time) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append stores msg and advances the conversation's last activity in one transaction.
// CreatedAt becomes max(now, lastMessageAt+1µs) so it is strictly increasing per conversation.
func (r *messageRepository) Append(ctx context.Context, msg *domain.Message, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv domain.Conversation
		q := tx.Select("id", "last_message_at")
		if supportsRowLock(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("id = ?", msg.ConversationID).First(&conv).Error; err != nil {
			return err
		}

		createdAt := now.UTC().Truncate(time.Microsecond)
		if conv.LastMessageAt != nil && !createdAt.After(*conv.LastMessageAt) {
			createdAt = conv.LastMessageAt.UTC().Add(time.Microsecond)
		}
		msg.CreatedAt = createdAt

		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("last_message_at", createdAt).Error
	})
}

// FindByID returns the message or nil when absent
func (r *messageRepository) FindByID(ctx context.Context, id uint64) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListPage returns messages newest first, optionally strictly older than before
func (r *messageRepository) ListPage(ctx context.Context, conversationID uint64, before *time.Time, offset, limit int) ([]*domain.Message, error) {
	var messages []*domain.Message
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	err := q.Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&messages).Error
	return messages, err
}

// UpdateContent rewrites a message body and flags it as edited
func (r *messageRepository) UpdateContent(ctx context.Context, id uint64, content string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":    content,
			"edited":     true,
			"updated_at": at.UTC(),
		}).Error
}
