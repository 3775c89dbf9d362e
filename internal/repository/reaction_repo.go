package repository

import (
	"context"
	"errors"
	"time"

	"github.com/linguaschool/chat-backend/internal/domain"
	"gorm.io/gorm"
)

const maxToggleAttempts = 3

// ErrToggleContention is returned when concurrent toggles keep colliding on the same reaction
var ErrToggleContention = errors.New("reaction toggle contention")

// ReactionRepository handles reaction data operations
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID, userID uint64, emoji string, now time.Time) (*domain.Reaction, error)
	ListByMessage(ctx context.Context, messageID uint64) ([]domain.Reaction, error)
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository creates a new ReactionRepository
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

// Toggle removes the reaction if present, otherwise adds it.
// Returns the inserted reaction, or nil when one was removed.
func (r *reactionRepository) Toggle(ctx context.Context, messageID, userID uint64, emoji string, now time.Time) (*domain.Reaction, error) {
	db := r.db.WithContext(ctx)
	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		res := db.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&domain.Reaction{})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			return nil, nil
		}

		reaction := &domain.Reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: now.UTC(),
		}
		err := db.Create(reaction).Error
		if err == nil {
			return reaction, nil
		}
		if !isDuplicateKey(err) {
			return nil, err
		}
	}
	return nil, ErrToggleContention
}

// ListByMessage returns reactions in the order they were made
func (r *reactionRepository) ListByMessage(ctx context.Context, messageID uint64) ([]domain.Reaction, error) {
	var reactions []domain.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC, id ASC").
		Find(&reactions).Error
	return reactions, err
}
