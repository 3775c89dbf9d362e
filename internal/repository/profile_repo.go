package repository

import (
	"context"
	"errors"

	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/pkg/cache"
	"github.com/linguaschool/chat-backend/pkg/logger"
	"gorm.io/gorm"
)

// ProfileRepository resolves display data for users.
// Unknown users are simply missing from the returned map.
type ProfileRepository interface {
	FindByIDs(ctx context.Context, userIDs []uint64) (map[uint64]domain.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a ProfileRepository over the user_profiles view
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) FindByIDs(ctx context.Context, userIDs []uint64) (map[uint64]domain.Profile, error) {
	result := make(map[uint64]domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var profiles []domain.Profile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.UserID] = p
	}
	return result, nil
}

// cachedProfileRepository reads through Redis before hitting the database
type cachedProfileRepository struct {
	next  ProfileRepository
	cache cache.Service
}

// NewCachedProfileRepository wraps next with a read-through cache.
// Cache failures degrade to direct reads.
func NewCachedProfileRepository(next ProfileRepository, c cache.Service) ProfileRepository {
	if c == nil {
		return next
	}
	return &cachedProfileRepository{next: next, cache: c}
}

func (r *cachedProfileRepository) FindByIDs(ctx context.Context, userIDs []uint64) (map[uint64]domain.Profile, error) {
	result := make(map[uint64]domain.Profile, len(userIDs))
	var missing []uint64

	for _, id := range userIDs {
		var p domain.Profile
		err := r.cache.Get(ctx, cache.ProfileKey(id), &p)
		switch {
		case err == nil:
			result[id] = p
		case errors.Is(err, cache.ErrMiss):
			missing = append(missing, id)
		default:
			logger.GetLogger().Warn().Err(err).Uint64("user_id", id).Msg("profile cache read failed")
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	loaded, err := r.next.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range loaded {
		result[id] = p
		if err := r.cache.Set(ctx, cache.ProfileKey(id), p, cache.TTLProfile); err != nil {
			logger.GetLogger().Warn().Err(err).Uint64("user_id", id).Msg("profile cache write failed")
		}
	}
	return result, nil
}
