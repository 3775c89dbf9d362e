package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/pkg/logger"
)

// ConversationService finds and creates conversations and manages membership
type ConversationService struct {
	repo         repository.ConversationRepository
	receipts     repository.ReceiptRepository
	profiles     repository.ProfileRepository
	subs         SubscriptionRevoker
	maxGroupSize int
	now          func() time.Time
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	repo repository.ConversationRepository,
	receipts repository.ReceiptRepository,
	profiles repository.ProfileRepository,
	subs SubscriptionRevoker,
	maxGroupSize int,
) *ConversationService {
	return &ConversationService{
		repo:         repo,
		receipts:     receipts,
		profiles:     profiles,
		subs:         revokerOrNoop(subs),
		maxGroupSize: maxGroupSize,
		now:          time.Now,
	}
}

// Create dispatches POST /conversations by type
func (s *ConversationService) Create(ctx context.Context, creatorID uint64, req *domain.CreateConversationRequest) (*domain.Conversation, bool, error) {
	switch req.Type {
	case domain.ConversationDirect:
		others := dedupeExcluding(req.ParticipantIDs, creatorID)
		if len(others) != 1 {
			return nil, false, common.Validationf("a direct conversation needs exactly one other participant")
		}
		return s.FindOrCreateDirect(ctx, creatorID, others[0])
	case domain.ConversationGroup:
		conv, err := s.CreateGroup(ctx, creatorID, req.ParticipantIDs, req.Title)
		return conv, err == nil, err
	default:
		return nil, false, common.Validationf("unknown conversation type %q", req.Type)
	}
}

// FindOrCreateDirect returns the single DIRECT conversation for the pair, creating it on first use.
// The boolean reports whether this call created it.
func (s *ConversationService) FindOrCreateDirect(ctx context.Context, userA, userB uint64) (*domain.Conversation, bool, error) {
	if userA == 0 || userB == 0 {
		return nil, false, common.Validationf("participant id must be positive")
	}
	if userA == userB {
		return nil, false, common.Validationf("cannot start a direct conversation with yourself")
	}
	key := domain.DirectKey(userA, userB)

	existing, err := s.repo.FindByDirectKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		conv, err := s.reopenDirect(ctx, existing.ID, userA, userB)
		return conv, false, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	participants, err := s.buildParticipants(ctx, []uint64{userA, userB}, now)
	if err != nil {
		return nil, false, err
	}
	conv := &domain.Conversation{
		Kind:      domain.ConversationDirect,
		DirectKey: &key,
		CreatedBy: userA,
		CreatedAt: now,
	}

	err = s.repo.CreateWithParticipants(ctx, conv, participants)
	if errors.Is(err, repository.ErrDirectExists) {
		// another request created the pair concurrently
		winner, err := s.repo.FindByDirectKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, fmt.Errorf("direct conversation %s vanished after conflict", key)
		}
		conv, err := s.repo.FindByID(ctx, winner.ID)
		return conv, false, err
	}
	if err != nil {
		return nil, false, err
	}

	logger.GetLogger().Info().
		Uint64("conversation_id", conv.ID).
		Str("direct_key", key).
		Msg("direct conversation created")
	return conv, true, nil
}

// reopenDirect reactivates either side of an existing pair if it was soft-removed
func (s *ConversationService) reopenDirect(ctx context.Context, conversationID uint64, users ...uint64) (*domain.Conversation, error) {
	for _, userID := range users {
		p, err := s.repo.FindParticipant(ctx, conversationID, userID)
		if err != nil {
			return nil, err
		}
		if p != nil && !p.Active {
			if err := s.repo.SetActive(ctx, conversationID, userID, true); err != nil {
				return nil, err
			}
		}
	}
	return s.repo.FindByID(ctx, conversationID)
}

// CreateGroup creates a GROUP conversation with the creator plus the deduplicated participants
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID uint64, participantIDs []uint64, title *string) (*domain.Conversation, error) {
	others := dedupeExcluding(participantIDs, creatorID)
	if len(others) == 0 {
		return nil, common.Validationf("a group needs at least one participant besides the creator")
	}
	if len(others)+1 > s.maxGroupSize {
		return nil, common.Validationf("a group cannot have more than %d members", s.maxGroupSize)
	}
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			title = nil
		} else {
			title = &trimmed
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	participants, err := s.buildParticipants(ctx, append([]uint64{creatorID}, others...), now)
	if err != nil {
		return nil, err
	}

	conv := &domain.Conversation{
		Kind:      domain.ConversationGroup,
		Title:     title,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	if err := s.repo.CreateWithParticipants(ctx, conv, participants); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListForUser returns the caller's active conversations with per-conversation unread counts
func (s *ConversationService) ListForUser(ctx context.Context, userID uint64) ([]domain.ConversationResponse, error) {
	convs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.receipts.UnreadByConversation(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ConversationResponse, 0, len(convs))
	for _, c := range convs {
		result = append(result, domain.ConversationResponse{Conversation: c, UnreadCount: unread[c.ID]})
	}
	return result, nil
}

// Get returns a conversation the caller actively participates in.
// A missing conversation is reported the same way as a forbidden one.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID uint64) (*domain.Conversation, error) {
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !hasActiveMember(conv, userID) {
		return nil, common.ErrAccessDenied
	}
	return conv, nil
}

// AddParticipant adds userID to a group the actor belongs to, reactivating a former member
func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, actorID, userID uint64) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if conv.Kind != domain.ConversationGroup {
		return nil, common.Validationf("participants can only be added to group conversations")
	}
	if hasActiveMember(conv, userID) {
		return conv, nil
	}
	if len(conv.Participants)+1 > s.maxGroupSize {
		return nil, common.Validationf("a group cannot have more than %d members", s.maxGroupSize)
	}

	participants, err := s.buildParticipants(ctx, []uint64{userID}, s.now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, err
	}
	p := participants[0]
	p.ConversationID = conversationID
	if err := s.repo.UpsertParticipant(ctx, &p); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, conversationID)
}

// Leave soft-removes the caller from a group; history stays intact.
// Live connections of the caller stop receiving the group's events.
func (s *ConversationService) Leave(ctx context.Context, conversationID, userID uint64) error {
	conv, err := s.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if conv.Kind == domain.ConversationDirect {
		return common.Validationf("direct conversations cannot be left")
	}
	if err := s.repo.SetActive(ctx, conversationID, userID, false); err != nil {
		return err
	}
	s.subs.UnsubscribeUser(conversationID, userID)
	return nil
}

// buildParticipants denormalizes display fields from the profile lookup
func (s *ConversationService) buildParticipants(ctx context.Context, userIDs []uint64, joinedAt time.Time) ([]domain.Participant, error) {
	profiles, err := s.profiles.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("profile lookup: %w", err)
	}

	participants := make([]domain.Participant, 0, len(userIDs))
	for _, id := range userIDs {
		p := domain.Participant{UserID: id, JoinedAt: joinedAt, Active: true}
		if prof, ok := profiles[id]; ok {
			p.Name = prof.Name
			p.Role = prof.Role
			p.Avatar = prof.Avatar
		}
		participants = append(participants, p)
	}
	return participants, nil
}

func hasActiveMember(conv *domain.Conversation, userID uint64) bool {
	for _, p := range conv.Participants {
		if p.UserID == userID && p.Active {
			return true
		}
	}
	return false
}

// dedupeExcluding drops zero ids, duplicates and exclude, keeping first-seen order
func dedupeExcluding(ids []uint64, exclude uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == exclude {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
