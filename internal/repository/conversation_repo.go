package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/linguaschool/chat-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDirectExists is returned by CreateWithParticipants when another writer created the same DIRECT pair first
var ErrDirectExists = errors.New("direct conversation already exists")

// ConversationRepository conversation and membership data access interface
type ConversationRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.Conversation, error)
	FindByDirectKey(ctx context.Context, key string) (*domain.Conversation, error)
	CreateWithParticipants(ctx context.Context, conv *domain.Conversation, participants []domain.Participant) error
	FindParticipant(ctx context.Context, conversationID, userID uint64) (*domain.Participant, error)
	IsActiveParticipant(ctx context.Context, conversationID, userID uint64) (bool, error)
	Participants(ctx context.Context, conversationID uint64, activeOnly bool) ([]domain.Participant, error)
	ListForUser(ctx context.Context, userID uint64) ([]*domain.Conversation, error)
	UpsertParticipant(ctx context.Context, p *domain.Participant) error
	SetActive(ctx context.Context, conversationID, userID uint64, active bool) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindByID returns the conversation with its active participants, or nil when absent
func (r *conversationRepository) FindByID(ctx context.Context, id uint64) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", "active = ?", true).
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindByDirectKey returns the DIRECT conversation for a user pair, or nil when absent
func (r *conversationRepository) FindByDirectKey(ctx context.Context, key string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).Where("direct_key = ?", key).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// CreateWithParticipants inserts the conversation and its members atomically
func (r *conversationRepository) CreateWithParticipants(ctx context.Context, conv *domain.Conversation, participants []domain.Participant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].ConversationID = conv.ID
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		conv.Participants = participants
		return nil
	})
	if err != nil && conv.DirectKey != nil && isDuplicateKey(err) {
		return ErrDirectExists
	}
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// FindParticipant returns the membership row regardless of its active flag, or nil
func (r *conversationRepository) FindParticipant(ctx context.Context, conversationID, userID uint64) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *conversationRepository) IsActiveParticipant(ctx context.Context, conversationID, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND active = ?", conversationID, userID, true).
		Count(&count).Error
	return count > 0, err
}

// Participants lists members in join order
func (r *conversationRepository) Participants(ctx context.Context, conversationID uint64, activeOnly bool) ([]domain.Participant, error) {
	var participants []domain.Participant
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Order("joined_at ASC, id ASC").Find(&participants).Error
	return participants, err
}

// ListForUser returns the user's active conversations, most recent activity first.
// Conversations without messages follow, newest first.
func (r *conversationRepository) ListForUser(ctx context.Context, userID uint64) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("joined_at ASC, id ASC")
		}).
		Where("id IN (?)", r.db.Model(&domain.Participant{}).
			Select("conversation_id").
			Where("user_id = ? AND active = ?", userID, true)).
		Order("last_message_at IS NULL, last_message_at DESC, created_at DESC, id DESC").
		Find(&convs).Error
	return convs, err
}

// UpsertParticipant inserts a membership or reactivates a previous one
func (r *conversationRepository) UpsertParticipant(ctx context.Context, p *domain.Participant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "name", "role", "avatar", "joined_at"}),
	}).Create(p).Error
}

func (r *conversationRepository) SetActive(ctx context.Context, conversationID, userID uint64, active bool) error {
	return r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("active", active).Error
}
