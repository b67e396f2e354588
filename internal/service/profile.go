package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/slapit/slapit-api/internal/apperror"
	"github.com/slapit/slapit-api/internal/model"
	"github.com/slapit/slapit-api/internal/repository"
	"github.com/slapit/slapit-api/internal/store"
)

// StickerReward is the score a user earns per posted sticker.
const StickerReward = 10

// ProfileService is the Profile Ledger.
type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
	now      func() time.Time

	// Serializes the read-then-write counter fallback per user.
	counterLocks *keyedMutex
}

func NewProfileService(profiles repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		profiles:     profiles,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		counterLocks: newKeyedMutex(),
	}
}

// Provision creates the profile for a newly registered user: no community,
// not an admin, counters at zero.
func (s *ProfileService) Provision(ctx context.Context, authID, username string, avatarURL, bio *string) (*model.Profile, error) {
	var err error
	if authID, err = requireID("auth_id", authID); err != nil {
		return nil, err
	}
	username, err = requireText("username", username, MaxUsernameLength)
	if err != nil {
		return nil, err
	}

	p := &model.Profile{
		AuthID:    authID,
		Username:  username,
		AvatarURL: trimmedOrNil(avatarURL),
		Bio:       trimmedOrNil(bio),
		CreatedAt: s.now(),
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		if store.IsConstraint(err, store.Unique) {
			return nil, apperror.Conflict("profile", authID)
		}
		return nil, classify(s.logger, "creating profile", err)
	}

	s.logger.Info("profile provisioned", slog.String("auth_id", authID))
	return p, nil
}

func (s *ProfileService) Fetch(ctx context.Context, authID string) (*model.Profile, error) {
	var err error
	if authID, err = requireID("auth_id", authID); err != nil {
		return nil, err
	}
	p, err := s.profiles.GetByID(ctx, authID)
	if err != nil {
		return nil, classify(s.logger, "getting profile", err)
	}
	return p, nil
}

// Update applies the supplied fields only. Text is trimmed the same way
// Provision trims it, and a blank avatar_url or bio clears the field. When the update matches no row
// the current row is fetched and returned instead, so a no-change update is
// not an error; a missing profile still ends as NotFound from that fetch.
func (s *ProfileService) Update(ctx context.Context, authID string, patch model.ProfilePatch) (*model.Profile, error) {
	var err error
	if authID, err = requireID("auth_id", authID); err != nil {
		return nil, err
	}
	if patch.Username != nil {
		u, err := requireText("username", *patch.Username, MaxUsernameLength)
		if err != nil {
			return nil, err
		}
		patch.Username = &u
	}
	patch.AvatarURL = trimmed(patch.AvatarURL)
	patch.Bio = trimmed(patch.Bio)
	if patch.Empty() {
		return s.Fetch(ctx, authID)
	}

	p, err := s.profiles.Update(ctx, authID, patch)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.Fetch(ctx, authID)
	}
	if err != nil {
		return nil, classify(s.logger, "updating profile", err)
	}
	return p, nil
}

// RecordSticker credits one sticker: total_stickers +1, score +StickerReward.
//
// With a store that can increment in place this is a single statement and
// concurrent calls never lose an update. Otherwise it is a read followed by
// a write, serialized per user within this process; writers in other
// processes can still interleave.
func (s *ProfileService) RecordSticker(ctx context.Context, authID string) (*model.Profile, error) {
	p, err := s.profiles.IncrementCounters(ctx, authID, 1, StickerReward)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrAtomicIncrementUnsupported) {
		return nil, classify(s.logger, "recording sticker", err)
	}

	unlock := s.counterLocks.lock(authID)
	defer unlock()

	cur, err := s.profiles.GetByID(ctx, authID)
	if err != nil {
		return nil, classify(s.logger, "reading counters", err)
	}
	p, err = s.profiles.SetCounters(ctx, authID, cur.TotalStickers+1, cur.Score+StickerReward)
	if err != nil {
		return nil, classify(s.logger, "writing counters", err)
	}
	return p, nil
}

// trimmedOrNil returns nil for a nil or blank string.
func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// trimmed trims a supplied string and keeps nil as nil.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
