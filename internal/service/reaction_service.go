package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/internal/ws"
)

const maxEmojiBytes = 32

// ReactionService handles reaction business logic
type ReactionService struct {
	reactions     repository.ReactionRepository
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	publisher     EventPublisher
	now           func() time.Time
}

// NewReactionService creates a new ReactionService
func NewReactionService(
	reactions repository.ReactionRepository,
	messages repository.MessageRepository,
	conversations repository.ConversationRepository,
	publisher EventPublisher,
) *ReactionService {
	return &ReactionService{
		reactions:     reactions,
		messages:      messages,
		conversations: conversations,
		publisher:     publisherOrNoop(publisher),
		now:           time.Now,
	}
}

// Toggle adds the reaction, or removes it when the caller already reacted with that emoji.
// Returns the created reaction, or nil when it was removed.
func (s *ReactionService) Toggle(ctx context.Context, messageID, userID uint64, emoji string) (*domain.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, common.Validationf("emoji is required")
	}
	if len(emoji) > maxEmojiBytes {
		return nil, common.Validationf("emoji must be at most %d bytes", maxEmojiBytes)
	}

	msg, err := s.accessibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	reaction, err := s.reactions.Toggle(ctx, messageID, userID, emoji, s.now())
	if err != nil {
		return nil, err
	}

	summary, err := s.summarize(ctx, msg, 0)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(msg.ConversationID, ws.EventReactions, &domain.ReactionsEvent{
		MessageID: messageID,
		Reactions: summary,
	})
	return reaction, nil
}

// Summarize groups a message's reactions by emoji as seen by viewerID
func (s *ReactionService) Summarize(ctx context.Context, messageID, viewerID uint64) ([]domain.ReactionSummary, error) {
	msg, err := s.accessibleMessage(ctx, messageID, viewerID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, msg, viewerID)
}

func (s *ReactionService) accessibleMessage(ctx context.Context, messageID, userID uint64) (*domain.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, common.ErrAccessDenied
	}
	if _, err := activeMember(ctx, s.conversations, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// summarize keeps emojis in first-reaction order. viewerID 0 marks no viewer.
func (s *ReactionService) summarize(ctx context.Context, msg *domain.Message, viewerID uint64) ([]domain.ReactionSummary, error) {
	reactions, err := s.reactions.ListByMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	participants, err := s.conversations.Participants(ctx, msg.ConversationID, false)
	if err != nil {
		return nil, err
	}
	names := make(map[uint64]string, len(participants))
	for _, p := range participants {
		names[p.UserID] = p.Name
	}

	summary := make([]domain.ReactionSummary, 0)
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(summary)
			index[r.Emoji] = i
			summary = append(summary, domain.ReactionSummary{
				Emoji:      r.Emoji,
				ReactedBy:  []string{},
				ReactorIDs: []uint64{},
			})
		}
		item := &summary[i]
		item.Count++
		item.ReactorIDs = append(item.ReactorIDs, r.UserID)
		item.ReactedBy = append(item.ReactedBy, displayName(names, r.UserID))
		if viewerID != 0 && r.UserID == viewerID {
			item.ReactedByCurrentUser = true
		}
	}
	return summary, nil
}

func displayName(names map[uint64]string, userID uint64) string {
	if name := names[userID]; name != "" {
		return name
	}
	return "user " + strconv.FormatUint(userID, 10)
}
